package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Имена сервиса и методов сервиса курсов
const (
	RatesServiceName  = "bank.rates.v1.RatesService"
	methodGetUsdRates = "/" + RatesServiceName + "/GetUsdRates"
	methodGetUsdRate  = "/" + RatesServiceName + "/GetUsdRate"
)

// RatesServiceServer - серверная часть сервиса курсов.
// Сообщения - стандартные типы protobuf, поэтому отдельный .proto не нужен.
type RatesServiceServer interface {
	// GetUsdRates возвращает курсы всех валют к доллару: {"EUR": 1.08, ...}
	GetUsdRates(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// GetUsdRate возвращает курс одной валюты к доллару
	GetUsdRate(context.Context, *wrapperspb.StringValue) (*wrapperspb.DoubleValue, error)
}

// RegisterRatesServiceServer регистрирует реализацию на gRPC сервере
func RegisterRatesServiceServer(s grpc.ServiceRegistrar, srv RatesServiceServer) {
	s.RegisterService(&ratesServiceDesc, srv)
}

func getUsdRatesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RatesServiceServer).GetUsdRates(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetUsdRates}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RatesServiceServer).GetUsdRates(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getUsdRateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RatesServiceServer).GetUsdRate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetUsdRate}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RatesServiceServer).GetUsdRate(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var ratesServiceDesc = grpc.ServiceDesc{
	ServiceName: RatesServiceName,
	HandlerType: (*RatesServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetUsdRates", Handler: getUsdRatesHandler},
		{MethodName: "GetUsdRate", Handler: getUsdRateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bank/rates/v1/rates.proto",
}
