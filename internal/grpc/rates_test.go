package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"gw-bank/internal/logger"
	"gw-bank/internal/storages"
	"gw-bank/internal/storages/memory"
)

func startRatesServer(t *testing.T, store storages.RatesStorage) *RatesClient {
	t.Helper()
	log := logger.Discard()

	listener := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(log)))
	RegisterRatesServiceServer(srv, NewRatesServer(store, log))

	go func() {
		_ = srv.Serve(listener)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Failed to dial bufnet: %v", err)
	}

	client := NewRatesClientFromConn(conn, time.Second, log)
	t.Cleanup(func() { client.Close() })
	return client
}

func seedRates(t *testing.T) *memory.Storage {
	t.Helper()
	store := memory.New()
	for currency, rate := range map[string]string{"EUR": "1.08", "GBP": "1.27", "USD": "1"} {
		err := store.UpsertUsdRate(context.Background(), &storages.ExchangeRate{
			Currency: currency,
			UsdRate:  decimal.RequireFromString(rate),
		})
		if err != nil {
			t.Fatalf("Failed to seed rate: %v", err)
		}
	}
	return store
}

func TestGetUsdRates(t *testing.T) {
	client := startRatesServer(t, seedRates(t))

	rates, err := client.GetUsdRates(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(rates) != 3 {
		t.Fatalf("Expected 3 rates, got %d", len(rates))
	}
	if !rates["EUR"].Equal(decimal.RequireFromString("1.08")) {
		t.Fatalf("Expected EUR 1.08, got %s", rates["EUR"])
	}
}

func TestGetUsdRate(t *testing.T) {
	client := startRatesServer(t, seedRates(t))
	ctx := context.Background()

	rate, err := client.GetUsdRate(ctx, "gbp")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("1.27")) {
		t.Fatalf("Expected GBP 1.27, got %s", rate)
	}

	if _, err := client.GetUsdRate(ctx, "XYZ"); err == nil {
		t.Fatal("Expected error for unknown currency")
	}
	if _, err := client.GetUsdRate(ctx, ""); err == nil {
		t.Fatal("Expected error for empty currency")
	}
}
