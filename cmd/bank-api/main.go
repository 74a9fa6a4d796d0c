package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gw-bank/internal/api"
	"gw-bank/internal/api/middleware"
	"gw-bank/internal/cache"
	"gw-bank/internal/config"
	"gw-bank/internal/grpc"
	"gw-bank/internal/kafka"
	"gw-bank/internal/logger"
	"gw-bank/internal/service"
	"gw-bank/internal/storages/postgres"
	"gw-bank/internal/transfer"
)

// @title Bank API
// @version 1.0
// @description Demo online bank: accounts, balances, transfers and admin panel
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Парсинг флагов командной строки
	configPath := flag.String("c", "", "Path to config file")
	flag.Parse()

	// Загрузка конфигурации
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.ValidateAPI(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger.Level)
	log.Infof("Starting %s bank-api...", cfg.Service.Name)
	log.Infof("Configuration loaded from: %s", *configPath)

	if cfg.Telemetry.Enabled {
		otelShutdown, err := otelconfig.ConfigureOpenTelemetry(otelconfig.WithServiceName(cfg.Service.Name))
		if err != nil {
			log.Fatalf("Failed to configure OpenTelemetry: %v", err)
		}
		defer otelShutdown()
		log.Info("OpenTelemetry enabled")
	}

	rules, err := transfer.NewRules(cfg.Rules.AccountDigits, cfg.Rules.FeeRestrictedCountry, cfg.Rules.SupportedCurrencies)
	if err != nil {
		log.Fatalf("Invalid transfer rules: %v", err)
	}

	// Подключение к базе данных
	dbConfig := &postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	storage, err := postgres.New(dbConfig, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer storage.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := storage.Ping(ctx); err != nil {
		cancel()
		log.Fatalf("Database ping failed: %v", err)
	}
	cancel()
	log.Info("Database connection established")

	// Сервис курсов необязателен: без него балансы пересчитываются по встроенной таблице
	var rates service.RatesProvider
	ratesClient, err := grpc.NewRatesClient(cfg.Rates.Host, cfg.Rates.Port, cfg.Rates.Timeout, log)
	if err != nil {
		log.Warnf("Rates service unavailable: %v (falling back to built-in rates)", err)
	} else {
		defer ratesClient.Close()
		rates = ratesClient
	}

	ratesCache := cache.NewRatesCache(cfg.Cache.RatesTTL)

	kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	defer kafkaProducer.Close()

	bankService := service.NewBankService(storage, rules, rates, ratesCache, kafkaProducer, cfg.Auth, log)
	log.Info("Bank service initialized")

	jwtMiddleware := middleware.NewJWTMiddleware(cfg.JWT.Secret, cfg.JWT.Expiration, log)
	router := api.SetupRouter(bankService, jwtMiddleware, storage, log, cfg.Server.GinMode)

	var handler http.Handler = router
	if cfg.Telemetry.Enabled {
		handler = otelhttp.NewHandler(router, cfg.Service.Name)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.HTTPPort,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Infof("HTTP server is listening on port %s", cfg.Server.HTTPPort)
		log.Infof("Swagger documentation available at: http://localhost:%s/swagger/index.html", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	<-done
	log.Info("Shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped gracefully")
}
