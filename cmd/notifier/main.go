package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"gw-bank/internal/config"
	"gw-bank/internal/kafka"
	"gw-bank/internal/logger"
	"gw-bank/internal/storages/mongodb"
	"gw-bank/pkg"
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

	if err := cfg.ValidateNotifier(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger.Level)
	log.Infof("Starting %s notifier...", cfg.Service.Name)
	log.Infof("Configuration loaded from: %s", *configPath)

	// Подключение к MongoDB
	mongoConfig := &mongodb.Config{
		URI:         cfg.MongoDB.URI,
		Database:    cfg.MongoDB.Database,
		Collection:  cfg.MongoDB.Collection,
		Timeout:     cfg.MongoDB.Timeout,
		MaxPoolSize: cfg.MongoDB.MaxPoolSize,
		MinPoolSize: cfg.MongoDB.MinPoolSize,
	}

	storage, err := mongodb.New(mongoConfig, log)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		storage.Close(ctx)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := storage.Ping(ctx); err != nil {
		cancel()
		log.Fatalf("MongoDB ping failed: %v", err)
	}
	cancel()
	log.Info("MongoDB connection established")

	kafkaConfig := &kafka.Config{
		Brokers:       cfg.Kafka.Brokers,
		Topic:         cfg.Kafka.Topic,
		GroupID:       cfg.Kafka.GroupID,
		MinBytes:      cfg.Kafka.MinBytes,
		MaxBytes:      cfg.Kafka.MaxBytes,
		MaxWait:       cfg.Kafka.MaxWait,
		BatchSize:     cfg.Processing.BatchSize,
		Workers:       cfg.Processing.Workers,
		FlushInterval: cfg.Processing.FlushInterval,
		RetryAttempts: cfg.Processing.RetryAttempts,
		RetryDelay:    cfg.Processing.RetryDelay,
	}

	consumer := kafka.NewConsumer(kafkaConfig, storage, log)
	defer consumer.Close()

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	consumerErr := make(chan error, 1)
	go func() {
		consumerErr <- consumer.Start(ctx)
	}()

	statsTicker := time.NewTicker(cfg.Processing.StatsInterval)
	defer statsTicker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-statsTicker.C:
				printStatistics(log, consumer, storage)
			}
		}
	}()

	log.Info("Service is running. Press Ctrl+C to stop...")

	consumerStopped := false
	select {
	case <-sigChan:
		log.Info("Received shutdown signal...")
	case err := <-consumerErr:
		consumerStopped = true
		if err != nil {
			log.Errorf("Consumer error: %v", err)
		}
	}

	log.Info("Shutting down service...")
	cancel()

	// Воркеры дописывают накопленные пакеты перед выходом
	if !consumerStopped {
		select {
		case <-time.After(15 * time.Second):
			log.Warn("Shutdown timeout exceeded, forcing exit")
		case <-consumerErr:
		}
	}

	printStatistics(log, consumer, storage)
	log.Info("Service stopped gracefully")
}

// printStatistics выводит статистику consumer и хранилища
func printStatistics(log *logrus.Logger, consumer *kafka.Consumer, storage *mongodb.MongoStorage) {
	stats := consumer.GetStatistics()

	log.Infof("Consumer Statistics: Processed=%d, Failed=%d, Rate=%s, Uptime=%s",
		stats.MessagesProcessed,
		stats.MessagesFailed,
		pkg.FormatRate(stats.MessagesProcessed, stats.Uptime),
		pkg.FormatDuration(stats.Uptime))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	storageStats, err := storage.GetStatistics(ctx)
	if err != nil {
		log.Warnf("Failed to get storage statistics: %v", err)
		return
	}

	log.WithFields(logrus.Fields{
		"total":   storageStats.Total,
		"by_type": storageStats.ByType,
	}).Info("Storage Statistics")
}
