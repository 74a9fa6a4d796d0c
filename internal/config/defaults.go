package config

import "time"

// Server defaults
const (
	DefaultHTTPPort    = "8080"
	DefaultGinMode     = "release"
	DefaultLogLevel    = "info"
	DefaultServiceName = "gw-bank"
)

// Database defaults
const (
	DefaultDBHost            = "localhost"
	DefaultDBPort            = 5432
	DefaultDBUser            = "bank_user"
	DefaultDBPassword        = "bank_password"
	DefaultDBName            = "bank_db"
	DefaultDBSSLMode         = "disable"
	DefaultDBMaxOpenConns    = 25
	DefaultDBMaxIdleConns    = 5
	DefaultDBConnMaxLifetime = 5 * time.Minute
)

// JWT defaults
const (
	DefaultJWTSecret     = "change-me-in-production"
	DefaultJWTExpiration = 24 * time.Hour
)

// Auth defaults
const (
	DefaultOTPTTL            = 10 * time.Minute
	DefaultMinPasswordLength = 8
)

// Rates gRPC defaults
const (
	DefaultRatesGRPCHost    = "localhost"
	DefaultRatesGRPCPort    = "50051"
	DefaultRatesGRPCTimeout = 5 * time.Second
)

// Cache defaults
const (
	DefaultCacheRatesTTL = 5 * time.Minute
)

// Kafka defaults
const (
	DefaultKafkaBrokers  = "localhost:9092"
	DefaultKafkaTopic    = "bank-notifications"
	DefaultKafkaGroupID  = "bank-notifier"
	DefaultKafkaMinBytes = 1
	DefaultKafkaMaxBytes = 10e6
	DefaultKafkaMaxWait  = 500 * time.Millisecond
)

// MongoDB defaults
const (
	DefaultMongoURI         = "mongodb://localhost:27017"
	DefaultMongoDatabase    = "bank_notifications"
	DefaultMongoCollection  = "notifications"
	DefaultMongoTimeout     = 10 * time.Second
	DefaultMongoMaxPoolSize = 100
	DefaultMongoMinPoolSize = 10
)

// Processing defaults
const (
	DefaultBatchSize     = 100
	DefaultWorkers       = 4
	DefaultFlushInterval = 5 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = time.Second
	DefaultStatsInterval = 30 * time.Second
)

// Transfer rules defaults
const (
	DefaultFeeRestrictedCountry = "PL"
)
