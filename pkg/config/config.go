package config

import (
	"fmt"
	"os"
	"regexp"
	"slotkeeper/pkg/client"
	kafka_config "slotkeeper/pkg/kafka/config"
	"slotkeeper/pkg/logger"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	StorageDriver string

	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	PostgresURL         string
	PostgresMaxConns    int
	PostgresConnTimeout time.Duration

	Port string

	PoolSize      int
	PendingTTL    time.Duration
	ReapInterval  time.Duration
	ReapBatchSize int

	BookingAmountCents int64
	BookingCurrency    string
	PaymentMode        string

	AuthMode  string
	JWTSecret string

	EventsEnabled bool
	EventsTopic   string
	Kafka         *kafka_config.Config

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	IdempotencyTTL    time.Duration
	RateLimitRequests int
	RateLimitWindow   time.Duration

	OtelEndpoint string

	RequestTimeout time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load(".env")

	cfg := &Config{
		StorageDriver: getEnvStr(EnvStorageDriver, DefaultStorageDriver),

		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		PostgresURL:         getEnvStr(EnvPostgresURL, DefaultPostgresURL),
		PostgresMaxConns:    getEnvNum(EnvPostgresMaxConns, DefaultPostgresMaxConns),
		PostgresConnTimeout: getEnvDuration(EnvPostgresConnTimeout, DefaultPostgresConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		PoolSize:      getEnvNum(EnvPoolSize, DefaultPoolSize),
		PendingTTL:    getEnvDuration(EnvPendingTTL, DefaultPendingTTL),
		ReapInterval:  getEnvDuration(EnvReapInterval, DefaultReapInterval),
		ReapBatchSize: getEnvNum(EnvReapBatchSize, DefaultReapBatchSize),

		BookingAmountCents: int64(getEnvNum(EnvBookingAmountCents, DefaultBookingAmountCents)),
		BookingCurrency:    getEnvStr(EnvBookingCurrency, DefaultBookingCurrency),
		PaymentMode:        getEnvStr(EnvPaymentMode, DefaultPaymentMode),

		AuthMode:  getEnvStr(EnvAuthMode, DefaultAuthMode),
		JWTSecret: getEnvStr(EnvJWTSecret, ""),

		EventsEnabled: getEnvBool(EnvEventsEnabled, DefaultEventsEnabled),
		EventsTopic:   getEnvStr(EnvEventsTopic, DefaultEventsTopic),

		RedisAddr:     getEnvStr(EnvRedisAddr, ""),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		RedisDB:       getEnvNum(EnvRedisDB, DefaultRedisDB),

		IdempotencyTTL:    getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		OtelEndpoint: getEnvStr(EnvOtelEndpoint, ""),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, logger.INFO),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if cfg.EventsEnabled {
		cfg.Kafka = kafka_config.Load()
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// Connect opens the storage client the configured driver needs.
func (cfg *Config) Connect() {
	switch cfg.StorageDriver {
	case StorageMongo:
		cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
	case StoragePostgres:
		cfg.Client.SetPostgres(cfg.Log, cfg.PostgresURL, int32(cfg.PostgresMaxConns), cfg.PostgresConnTimeout)
	}
	if cfg.RedisAddr != "" {
		cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	}
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StorageDriver {
	case StorageMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
		if cfg.MongoConnTimeout <= 0 {
			errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
		}
	case StoragePostgres:
		if !regexp.MustCompile(`^postgres(ql)?://`).MatchString(cfg.PostgresURL) {
			errors = append(errors, fmt.Sprintf("PostgresURL must start with 'postgres://' or 'postgresql://', got: %s", redactURI(cfg.PostgresURL)))
		}
		if cfg.PostgresMaxConns <= 0 {
			errors = append(errors, fmt.Sprintf("PostgresMaxConns must be positive, got: %d", cfg.PostgresMaxConns))
		}
		if cfg.PostgresConnTimeout <= 0 {
			errors = append(errors, fmt.Sprintf("PostgresConnTimeout must be positive, got: %s", cfg.PostgresConnTimeout))
		}
	case StorageMemory:
	default:
		errors = append(errors, fmt.Sprintf("StorageDriver must be one of [%s, %s, %s], got: %s", StorageMongo, StoragePostgres, StorageMemory, cfg.StorageDriver))
	}

	if cfg.PoolSize <= 0 {
		errors = append(errors, fmt.Sprintf("PoolSize must be positive, got: %d", cfg.PoolSize))
	}
	if cfg.PendingTTL <= 0 {
		errors = append(errors, fmt.Sprintf("PendingTTL must be positive, got: %s", cfg.PendingTTL))
	}
	if cfg.ReapInterval <= 0 {
		errors = append(errors, fmt.Sprintf("ReapInterval must be positive, got: %s", cfg.ReapInterval))
	}
	if cfg.ReapBatchSize <= 0 {
		errors = append(errors, fmt.Sprintf("ReapBatchSize must be positive, got: %d", cfg.ReapBatchSize))
	}

	if cfg.BookingAmountCents < 0 {
		errors = append(errors, fmt.Sprintf("BookingAmountCents cannot be negative, got: %d", cfg.BookingAmountCents))
	}
	if !regexp.MustCompile(`^[A-Z]{3}$`).MatchString(cfg.BookingCurrency) {
		errors = append(errors, fmt.Sprintf("BookingCurrency must be an ISO 4217 code, got: %s", cfg.BookingCurrency))
	}
	if cfg.PaymentMode != PaymentSucceed && cfg.PaymentMode != PaymentFail {
		errors = append(errors, fmt.Sprintf("PaymentMode must be one of [%s, %s], got: %s", PaymentSucceed, PaymentFail, cfg.PaymentMode))
	}

	switch cfg.AuthMode {
	case AuthModeJWT:
		if len(cfg.JWTSecret) < 16 {
			errors = append(errors, "JWTSecret must be at least 16 characters when AuthMode is jwt")
		}
	case AuthModeHeader:
	default:
		errors = append(errors, fmt.Sprintf("AuthMode must be one of [%s, %s], got: %s", AuthModeJWT, AuthModeHeader, cfg.AuthMode))
	}

	if cfg.EventsEnabled && cfg.EventsTopic == "" {
		errors = append(errors, "EventsTopic cannot be empty when events are enabled")
	}

	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.RateLimitRequests < 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests cannot be negative, got: %d", cfg.RateLimitRequests))
	}
	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RedisDB < 0 {
		errors = append(errors, fmt.Sprintf("RedisDB cannot be negative, got: %d", cfg.RedisDB))
	}

	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"storage_driver", cfg.StorageDriver,
		"mongo_uri", redactURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"postgres_url", redactURI(cfg.PostgresURL),
		"port", cfg.Port,
		"pool_size", cfg.PoolSize,
		"pending_ttl", cfg.PendingTTL,
		"reap_interval", cfg.ReapInterval,
		"reap_batch_size", cfg.ReapBatchSize,
		"booking_amount_cents", cfg.BookingAmountCents,
		"booking_currency", cfg.BookingCurrency,
		"payment_mode", cfg.PaymentMode,
		"auth_mode", cfg.AuthMode,
		"jwt_secret_set", cfg.JWTSecret != "",
		"events_enabled", cfg.EventsEnabled,
		"events_topic", cfg.EventsTopic,
		"redis_addr", cfg.RedisAddr,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"tracing_enabled", cfg.OtelEndpoint != "",
		"request_timeout", cfg.RequestTimeout,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
	)
	if cfg.Kafka != nil {
		cfg.Kafka.LogConfiguration(cfg.Log.Info)
	}
}

func redactURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(://)[^:/@]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}
