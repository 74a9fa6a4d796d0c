package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config содержит конфигурацию всех трех сервисов: bank-api, exchanger и notifier
type Config struct {
	Service    ServiceConfig
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Auth       AuthConfig
	Rates      RatesConfig
	Cache      CacheConfig
	Kafka      KafkaConfig
	MongoDB    MongoDBConfig
	Processing ProcessingConfig
	Rules      RulesConfig
	Telemetry  TelemetryConfig
	Logger     LoggerConfig
}

// ServiceConfig содержит имя сервиса
type ServiceConfig struct {
	Name string
}

// ServerConfig содержит конфигурацию HTTP и gRPC серверов
type ServerConfig struct {
	HTTPPort string
	GRPCPort string
	GinMode  string
}

// DatabaseConfig содержит конфигурацию базы данных
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// JWTConfig содержит конфигурацию JWT
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// AuthConfig содержит параметры регистрации
type AuthConfig struct {
	AdminEmails       []string
	OTPTTL            time.Duration
	MinPasswordLength int
}

// RatesConfig содержит конфигурацию gRPC клиента сервиса курсов
type RatesConfig struct {
	Host    string
	Port    string
	Timeout time.Duration
}

// CacheConfig содержит конфигурацию кеша
type CacheConfig struct {
	RatesTTL time.Duration
}

// KafkaConfig содержит конфигурацию Kafka
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
}

// MongoDBConfig содержит конфигурацию MongoDB
type MongoDBConfig struct {
	URI         string
	Database    string
	Collection  string
	Timeout     time.Duration
	MaxPoolSize uint64
	MinPoolSize uint64
}

// ProcessingConfig содержит конфигурацию обработки уведомлений
type ProcessingConfig struct {
	BatchSize     int
	Workers       int
	FlushInterval time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	StatsInterval time.Duration
}

// RulesConfig содержит переопределения таблицы стран
type RulesConfig struct {
	AccountDigits        string
	FeeRestrictedCountry string
	SupportedCurrencies  []string
}

// TelemetryConfig включает экспорт трейсов OpenTelemetry
type TelemetryConfig struct {
	Enabled bool
}

// LoggerConfig содержит конфигурацию логгера
type LoggerConfig struct {
	Level string
}

// Load загружает конфигурацию из файла окружения
func Load(configPath string) (*Config, error) {
	// Загрузка переменных окружения из файла
	if configPath != "" {
		if err := godotenv.Load(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg := &Config{}

	cfg.Service.Name = getEnv("SERVICE_NAME", DefaultServiceName)

	// Server
	cfg.Server.HTTPPort = getEnv("HTTP_PORT", DefaultHTTPPort)
	cfg.Server.GRPCPort = getEnv("GRPC_PORT", DefaultRatesGRPCPort)
	cfg.Server.GinMode = getEnv("GIN_MODE", DefaultGinMode)

	// Database
	cfg.Database.Host = getEnv("DB_HOST", DefaultDBHost)
	cfg.Database.Port = getEnvInt("DB_PORT", DefaultDBPort)
	cfg.Database.User = getEnv("DB_USER", DefaultDBUser)
	cfg.Database.Password = getEnv("DB_PASSWORD", DefaultDBPassword)
	cfg.Database.DBName = getEnv("DB_NAME", DefaultDBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", DefaultDBSSLMode)
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", DefaultDBMaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", DefaultDBMaxIdleConns)
	cfg.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", DefaultDBConnMaxLifetime)

	// JWT
	cfg.JWT.Secret = getEnv("JWT_SECRET", DefaultJWTSecret)
	cfg.JWT.Expiration = getEnvDuration("JWT_EXPIRATION", DefaultJWTExpiration)

	// Auth
	cfg.Auth.AdminEmails = getEnvList("ADMIN_EMAILS", "")
	cfg.Auth.OTPTTL = getEnvDuration("OTP_TTL", DefaultOTPTTL)
	cfg.Auth.MinPasswordLength = getEnvInt("MIN_PASSWORD_LENGTH", DefaultMinPasswordLength)

	// Rates gRPC
	cfg.Rates.Host = getEnv("RATES_GRPC_HOST", DefaultRatesGRPCHost)
	cfg.Rates.Port = getEnv("RATES_GRPC_PORT", DefaultRatesGRPCPort)
	cfg.Rates.Timeout = getEnvDuration("RATES_GRPC_TIMEOUT", DefaultRatesGRPCTimeout)

	// Cache
	cfg.Cache.RatesTTL = getEnvDuration("CACHE_RATES_TTL", DefaultCacheRatesTTL)

	// Kafka
	cfg.Kafka.Brokers = getEnvList("KAFKA_BROKERS", DefaultKafkaBrokers)
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", DefaultKafkaTopic)
	cfg.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", DefaultKafkaGroupID)
	cfg.Kafka.MinBytes = getEnvInt("KAFKA_MIN_BYTES", DefaultKafkaMinBytes)
	cfg.Kafka.MaxBytes = getEnvInt("KAFKA_MAX_BYTES", DefaultKafkaMaxBytes)
	cfg.Kafka.MaxWait = getEnvDuration("KAFKA_MAX_WAIT", DefaultKafkaMaxWait)

	// MongoDB
	cfg.MongoDB.URI = getEnv("MONGO_URI", DefaultMongoURI)
	cfg.MongoDB.Database = getEnv("MONGO_DATABASE", DefaultMongoDatabase)
	cfg.MongoDB.Collection = getEnv("MONGO_COLLECTION", DefaultMongoCollection)
	cfg.MongoDB.Timeout = getEnvDuration("MONGO_TIMEOUT", DefaultMongoTimeout)
	cfg.MongoDB.MaxPoolSize = uint64(getEnvInt("MONGO_MAX_POOL_SIZE", DefaultMongoMaxPoolSize))
	cfg.MongoDB.MinPoolSize = uint64(getEnvInt("MONGO_MIN_POOL_SIZE", DefaultMongoMinPoolSize))

	// Processing
	cfg.Processing.BatchSize = getEnvInt("BATCH_SIZE", DefaultBatchSize)
	cfg.Processing.Workers = getEnvInt("WORKERS", DefaultWorkers)
	cfg.Processing.FlushInterval = getEnvDuration("FLUSH_INTERVAL", DefaultFlushInterval)
	cfg.Processing.RetryAttempts = getEnvInt("RETRY_ATTEMPTS", DefaultRetryAttempts)
	cfg.Processing.RetryDelay = getEnvDuration("RETRY_DELAY", DefaultRetryDelay)
	cfg.Processing.StatsInterval = getEnvDuration("STATS_INTERVAL", DefaultStatsInterval)

	// Rules
	cfg.Rules.AccountDigits = getEnv("ACCOUNT_DIGITS", "")
	cfg.Rules.FeeRestrictedCountry = strings.ToUpper(getEnv("FEE_RESTRICTED_COUNTRY", DefaultFeeRestrictedCountry))
	cfg.Rules.SupportedCurrencies = getEnvList("SUPPORTED_CURRENCIES", "")

	// Telemetry
	cfg.Telemetry.Enabled = getEnvBool("OTEL_ENABLED", false)

	// Logger
	cfg.Logger.Level = getEnv("LOG_LEVEL", DefaultLogLevel)

	return cfg, nil
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленную переменную окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool получает булеву переменную окружения
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration получает переменную окружения типа duration
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList разбивает переменную окружения по запятой, пропуская пустые элементы
func getEnvList(key, defaultValue string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, defaultValue), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// IsAdminEmail сообщает, получает ли пользователь с этим email роль администратора
func (c *AuthConfig) IsAdminEmail(email string) bool {
	for _, admin := range c.AdminEmails {
		if strings.EqualFold(admin, email) {
			return true
		}
	}
	return false
}

func (c *Config) validateCommon() error {
	if _, err := logrus.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Logger.Level)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	return nil
}

// ValidateAPI проверяет конфигурацию bank-api
func (c *Config) ValidateAPI() error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	if c.Server.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT is required")
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.JWT.Secret == "" || c.JWT.Secret == DefaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set to a secure value")
	}

	if c.Auth.MinPasswordLength < 1 {
		return fmt.Errorf("MIN_PASSWORD_LENGTH must be positive")
	}

	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}

	return nil
}

// ValidateExchanger проверяет конфигурацию сервиса курсов
func (c *Config) ValidateExchanger() error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	if c.Server.GRPCPort == "" {
		return fmt.Errorf("GRPC_PORT is required")
	}

	return c.validateDatabase()
}

// ValidateNotifier проверяет конфигурацию сервиса уведомлений
func (c *Config) ValidateNotifier() error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	if c.MongoDB.URI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}

	if c.MongoDB.Database == "" {
		return fmt.Errorf("MONGO_DATABASE is required")
	}

	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}

	if c.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required")
	}

	if c.Processing.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1")
	}

	if c.Processing.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be at least 1")
	}

	if c.Processing.StatsInterval <= 0 {
		return fmt.Errorf("STATS_INTERVAL must be positive")
	}

	return nil
}
