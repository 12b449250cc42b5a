package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNew_JSONWithServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: INFO, Output: &buf, Service: "reservations"})

	log.Component("ledger").Info("reservation created", "unit", 2)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry[SERVICE] != "reservations" {
		t.Errorf("expected service attr, got %v", entry[SERVICE])
	}
	if entry[COMPONENT] != "ledger" {
		t.Errorf("expected component attr, got %v", entry[COMPONENT])
	}
	if entry["unit"] != float64(2) {
		t.Errorf("expected unit=2, got %v", entry["unit"])
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: WARN, Output: &buf})

	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn level, got %q", buf.String())
	}

	log.Warn("kept")
	if buf.Len() == 0 {
		t.Fatal("warn must be written at warn level")
	}
}
