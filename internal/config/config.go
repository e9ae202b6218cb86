package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// DirectLimit is the subscriber count past which a feed is automatically
	// upgraded to jumbo fan-out mode.
	DirectLimit int `json:"directLimit"`
	// PresenceTTLSeconds is how long a keep-alive marks a subscriber online.
	PresenceTTLSeconds int `json:"presenceTtlSeconds"`
	// GapTimeoutSeconds is how long a push receiver waits for a delivery hole
	// to fill before self-closing.
	GapTimeoutSeconds int `json:"gapTimeoutSeconds"`
	// DifferenceBatchSize caps events read per feed in a catch-up read.
	DifferenceBatchSize int `json:"differenceBatchSize"`
	// DifferenceLimit caps the merged catch-up result.
	DifferenceLimit int `json:"differenceLimit"`
	// UpdatesLimit is the default page size of feed stream reads.
	UpdatesLimit int `json:"updatesLimit"`
	// NatsURL switches the bus to NATS. Empty means the in-process bus.
	NatsURL string `json:"natsUrl"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DirectLimit:         100,
		PresenceTTLSeconds:  30,
		GapTimeoutSeconds:   10,
		DifferenceBatchSize: 20,
		DifferenceLimit:     100,
		UpdatesLimit:        20,
	}
}

// PresenceTTL returns the presence TTL as a duration.
func (c Config) PresenceTTL() time.Duration {
	return time.Duration(c.PresenceTTLSeconds) * time.Second
}

// GapTimeout returns the receiver gap timeout as a duration.
func (c Config) GapTimeout() time.Duration {
	return time.Duration(c.GapTimeoutSeconds) * time.Second
}

// Load reads configuration from a JSON file. If path is empty, returns
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return Config{}, errors.New("yaml config not supported yet; use JSON for now")
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}
