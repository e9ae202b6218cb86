package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.DirectLimit != 100 {
		t.Fatalf("default direct limit")
	}
	if cfg.PresenceTTL() != 30*time.Second {
		t.Fatalf("default presence ttl")
	}
	if cfg.DifferenceBatchSize != 20 || cfg.DifferenceLimit != 100 {
		t.Fatalf("default difference windows")
	}
	if cfg.NatsURL != "" {
		t.Fatalf("default bus should be local")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "feedd.json")
	data := []byte(`{"directLimit":500,"presenceTtlSeconds":60,"natsUrl":"nats://localhost:4222"}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DirectLimit != 500 {
		t.Fatalf("expected 500")
	}
	if cfg.PresenceTTL() != time.Minute {
		t.Fatalf("expected 60s ttl")
	}
	// untouched fields keep defaults
	if cfg.DifferenceBatchSize != 20 {
		t.Fatalf("expected default batch size")
	}
	if cfg.NatsURL != "nats://localhost:4222" {
		t.Fatalf("expected nats url")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	os.Setenv("FEEDD_DIRECT_LIMIT", "42")
	os.Setenv("FEEDD_GAP_TIMEOUT_SECONDS", "3")
	os.Setenv("FEEDD_NATS_URL", "nats://broker:4222")
	t.Cleanup(func() {
		os.Unsetenv("FEEDD_DIRECT_LIMIT")
		os.Unsetenv("FEEDD_GAP_TIMEOUT_SECONDS")
		os.Unsetenv("FEEDD_NATS_URL")
	})
	FromEnv(&cfg)
	if cfg.DirectLimit != 42 {
		t.Fatalf("env override direct limit")
	}
	if cfg.GapTimeout() != 3*time.Second {
		t.Fatalf("env override gap timeout")
	}
	if cfg.NatsURL != "nats://broker:4222" {
		t.Fatalf("env override nats url")
	}
}
