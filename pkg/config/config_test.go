package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		StorageDriver:      StorageMemory,
		Port:               "8080",
		PoolSize:           3,
		PendingTTL:         5 * time.Minute,
		ReapInterval:       30 * time.Second,
		ReapBatchSize:      100,
		BookingAmountCents: 500,
		BookingCurrency:    "EUR",
		PaymentMode:        PaymentSucceed,
		AuthMode:           AuthModeHeader,
		IdempotencyTTL:     time.Hour,
		RateLimitRequests:  10,
		RateLimitWindow:    time.Minute,
		RequestTimeout:     time.Second,
		MaxRequestSize:     1024,
		ReadTimeout:        time.Second,
		WriteTimeout:       time.Second,
		IdleTimeout:        time.Second,
		ShutdownTimeout:    time.Second,
	}
}

func TestValidate_AcceptsValidConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		message string
	}{
		{"zero pool", func(c *Config) { c.PoolSize = 0 }, "PoolSize must be positive"},
		{"zero ttl", func(c *Config) { c.PendingTTL = 0 }, "PendingTTL must be positive"},
		{"unknown driver", func(c *Config) { c.StorageDriver = "sqlite" }, "StorageDriver must be one of"},
		{"bad mongo uri", func(c *Config) {
			c.StorageDriver = StorageMongo
			c.MongoURI = "http://localhost"
			c.MongoDatabaseName = "slotkeeper"
			c.MongoConnTimeout = time.Second
		}, "MongoURI must start with"},
		{"bad postgres url", func(c *Config) {
			c.StorageDriver = StoragePostgres
			c.PostgresURL = "mysql://x"
			c.PostgresMaxConns = 1
			c.PostgresConnTimeout = time.Second
		}, "PostgresURL must start with"},
		{"short jwt secret", func(c *Config) { c.AuthMode = AuthModeJWT; c.JWTSecret = "short" }, "JWTSecret must be at least"},
		{"bad currency", func(c *Config) { c.BookingCurrency = "euro" }, "BookingCurrency must be an ISO 4217 code"},
		{"bad payment mode", func(c *Config) { c.PaymentMode = "maybe" }, "PaymentMode must be one of"},
		{"bad port", func(c *Config) { c.Port = "99999" }, "Port must be between"},
		{"negative rate limit", func(c *Config) { c.RateLimitRequests = -1 }, "RateLimitRequests cannot be negative"},
		{"zero idempotency ttl", func(c *Config) { c.IdempotencyTTL = 0 }, "IdempotencyTTL must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("expected error containing %q, got %v", tt.message, err)
			}
		})
	}
}

func TestRedactURI(t *testing.T) {
	got := redactURI("mongodb://admin:hunter2@db:27017/?replicaSet=rs0")
	if strings.Contains(got, "hunter2") {
		t.Errorf("password leaked: %s", got)
	}
	if !strings.Contains(got, "***:***@db:27017") {
		t.Errorf("unexpected redaction: %s", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv(EnvPendingTTL, "90s")
	if got := getEnvDuration(EnvPendingTTL, time.Minute); got != 90*time.Second {
		t.Errorf("expected 90s, got %s", got)
	}

	t.Setenv(EnvPendingTTL, "soon")
	if got := getEnvDuration(EnvPendingTTL, time.Minute); got != time.Minute {
		t.Errorf("expected fallback on unparsable value, got %s", got)
	}
}
