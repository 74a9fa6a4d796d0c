package grpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RatesClient обертка над gRPC соединением с сервисом курсов
type RatesClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	logger  *logrus.Logger
}

// NewRatesClient подключается к сервису курсов
func NewRatesClient(host, port string, timeout time.Duration, logger *logrus.Logger) (*RatesClient, error) {
	address := fmt.Sprintf("%s:%s", host, port)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(ctx, address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rates service: %w", err)
	}

	logger.Infof("Connected to rates service at %s", address)
	return NewRatesClientFromConn(conn, timeout, logger), nil
}

// NewRatesClientFromConn создает клиент поверх готового соединения
func NewRatesClientFromConn(conn *grpc.ClientConn, timeout time.Duration, logger *logrus.Logger) *RatesClient {
	return &RatesClient{
		conn:    conn,
		timeout: timeout,
		logger:  logger,
	}
}

// GetUsdRates получает курсы всех валют к доллару
func (c *RatesClient) GetUsdRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodGetUsdRates, &emptypb.Empty{}, resp); err != nil {
		c.logger.Errorf("Failed to get exchange rates: %v", err)
		return nil, fmt.Errorf("failed to get exchange rates: %w", err)
	}

	rates := make(map[string]decimal.Decimal, len(resp.GetFields()))
	for currency, value := range resp.GetFields() {
		rates[currency] = decimal.NewFromFloat(value.GetNumberValue())
	}

	c.logger.Debugf("Received %d exchange rates", len(rates))
	return rates, nil
}

// GetUsdRate получает курс одной валюты к доллару
func (c *RatesClient) GetUsdRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := new(wrapperspb.DoubleValue)
	err := c.conn.Invoke(ctx, methodGetUsdRate, wrapperspb.String(strings.ToUpper(currency)), resp)
	if err != nil {
		c.logger.Errorf("Failed to get exchange rate for %s: %v", currency, err)
		return decimal.Zero, fmt.Errorf("failed to get exchange rate: %w", err)
	}

	return decimal.NewFromFloat(resp.GetValue()), nil
}

// Close закрывает соединение с gRPC сервером
func (c *RatesClient) Close() error {
	if c.conn != nil {
		c.logger.Info("Closing connection to rates service")
		return c.conn.Close()
	}
	return nil
}
