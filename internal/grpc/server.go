package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"gw-bank/internal/storages"
)

// RatesServer реализует RatesServiceServer поверх хранилища курсов
type RatesServer struct {
	storage storages.RatesStorage
	logger  *logrus.Logger
}

// NewRatesServer создает новый экземпляр RatesServer
func NewRatesServer(storage storages.RatesStorage, logger *logrus.Logger) *RatesServer {
	return &RatesServer{
		storage: storage,
		logger:  logger,
	}
}

// GetUsdRates возвращает все курсы к доллару
func (s *RatesServer) GetUsdRates(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	rates, err := s.storage.GetUsdRates(ctx)
	if err != nil {
		s.logger.Errorf("Failed to get exchange rates: %v", err)
		return nil, status.Errorf(codes.Internal, "failed to get exchange rates: %v", err)
	}

	fields := make(map[string]*structpb.Value, len(rates))
	for _, rate := range rates {
		fields[rate.Currency] = structpb.NewNumberValue(rate.UsdRate.InexactFloat64())
	}

	s.logger.Debugf("Successfully retrieved %d exchange rates", len(rates))
	return &structpb.Struct{Fields: fields}, nil
}

// GetUsdRate возвращает курс одной валюты к доллару
func (s *RatesServer) GetUsdRate(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.DoubleValue, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.GetValue()))
	if currency == "" {
		s.logger.Warn("Invalid rate request: empty currency code")
		return nil, status.Error(codes.InvalidArgument, "currency is required")
	}

	if currency == "USD" {
		return wrapperspb.Double(1), nil
	}

	rate, err := s.storage.GetUsdRate(ctx, currency)
	if errors.Is(err, storages.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "exchange rate not found for %s", currency)
	}
	if err != nil {
		s.logger.Errorf("Failed to get exchange rate for %s: %v", currency, err)
		return nil, status.Errorf(codes.Internal, "failed to get exchange rate: %v", err)
	}

	return wrapperspb.Double(rate.UsdRate.InexactFloat64()), nil
}

// LoggingInterceptor логирует каждый unary-вызов с длительностью и результатом
func LoggingInterceptor(log *logrus.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		if err != nil {
			log.Errorf("gRPC method: %s, duration: %v, code: %s, error: %v",
				info.FullMethod, duration, status.Code(err), err)
		} else {
			log.Infof("gRPC method: %s, duration: %v, status: success", info.FullMethod, duration)
		}

		return resp, err
	}
}
