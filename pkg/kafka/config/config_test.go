package kafka_config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if len(cfg.Brokers) != 1 || cfg.Brokers[0] != DefaultKafkaBrokers {
		t.Errorf("Brokers = %v, want [%s]", cfg.Brokers, DefaultKafkaBrokers)
	}
	if cfg.ProducerRequireAcks != DefaultProducerRequireAcks {
		t.Errorf("ProducerRequireAcks = %d, want %d", cfg.ProducerRequireAcks, DefaultProducerRequireAcks)
	}
	if cfg.PublishTimeout != DefaultPublishTimeout {
		t.Errorf("PublishTimeout = %s, want %s", cfg.PublishTimeout, DefaultPublishTimeout)
	}
}

func TestLoadBrokerList(t *testing.T) {
	t.Setenv(EnvKafkaBrokers, "k1:9092, k2:9092 ,k3:9092")

	cfg := Load()

	want := []string{"k1:9092", "k2:9092", "k3:9092"}
	if len(cfg.Brokers) != len(want) {
		t.Fatalf("Brokers = %v, want %v", cfg.Brokers, want)
	}
	for i := range want {
		if cfg.Brokers[i] != want[i] {
			t.Errorf("Brokers[%d] = %q, want %q", i, cfg.Brokers[i], want[i])
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Brokers:              []string{"localhost:9092"},
			ProducerMaxAttempts:  3,
			ProducerBatchTimeout: 10 * time.Millisecond,
			ProducerRequireAcks:  -1,
			ProducerCompression:  "snappy",
			PublishTimeout:       time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"no brokers", func(c *Config) { c.Brokers = nil }, true},
		{"empty broker", func(c *Config) { c.Brokers = []string{""} }, true},
		{"bad compression", func(c *Config) { c.ProducerCompression = "brotli" }, true},
		{"bad acks", func(c *Config) { c.ProducerRequireAcks = 2 }, true},
		{"zero attempts", func(c *Config) { c.ProducerMaxAttempts = 0 }, true},
		{"zero publish timeout", func(c *Config) { c.PublishTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
