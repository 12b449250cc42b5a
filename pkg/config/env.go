package config

const (
	EnvStorageDriver = "STORAGE_DRIVER"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPostgresURL         = "POSTGRES_URL"
	EnvPostgresMaxConns    = "POSTGRES_MAX_CONNS"
	EnvPostgresConnTimeout = "POSTGRES_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvPoolSize      = "POOL_SIZE"
	EnvPendingTTL    = "PENDING_TTL"
	EnvReapInterval  = "REAP_INTERVAL"
	EnvReapBatchSize = "REAP_BATCH_SIZE"

	EnvBookingAmountCents = "BOOKING_AMOUNT_CENTS"
	EnvBookingCurrency    = "BOOKING_CURRENCY"
	EnvPaymentMode        = "PAYMENT_MODE"

	EnvAuthMode  = "AUTH_MODE"
	EnvJWTSecret = "JWT_SECRET"

	EnvEventsEnabled = "EVENTS_ENABLED"
	EnvEventsTopic   = "EVENTS_TOPIC"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvIdempotencyTTL    = "IDEMPOTENCY_TTL"
	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvOtelEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)
