package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpcServer "google.golang.org/grpc"

	"gw-bank/internal/config"
	"gw-bank/internal/grpc"
	"gw-bank/internal/logger"
	"gw-bank/internal/storages/postgres"
	"gw-bank/internal/transfer"
)

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

	if err := cfg.ValidateExchanger(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger.Level)
	log.Infof("Starting %s exchanger...", cfg.Service.Name)
	log.Infof("Configuration loaded from: %s", *configPath)

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
	if err := storage.SeedUsdRates(ctx, rules.UsdRates()); err != nil {
		cancel()
		log.Fatalf("Failed to seed exchange rates: %v", err)
	}
	cancel()
	log.Info("Database connection established")

	grpcSrv := grpcServer.NewServer(
		grpcServer.UnaryInterceptor(grpc.LoggingInterceptor(log)),
	)
	grpc.RegisterRatesServiceServer(grpcSrv, grpc.NewRatesServer(storage, log))

	listener, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		log.Fatalf("Failed to create listener: %v", err)
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Infof("gRPC server is listening on port %s", cfg.Server.GRPCPort)
		if err := grpcSrv.Serve(listener); err != nil {
			log.Fatalf("Failed to serve gRPC: %v", err)
		}
	}()

	<-done
	log.Info("Shutting down server...")

	grpcSrv.GracefulStop()
	log.Info("Server stopped gracefully")
}
