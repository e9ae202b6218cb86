package config

import (
	"os"
	"strconv"
)

// FromEnv overlays FEEDD_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	overlayInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	overlayInt("FEEDD_DIRECT_LIMIT", &cfg.DirectLimit)
	overlayInt("FEEDD_PRESENCE_TTL_SECONDS", &cfg.PresenceTTLSeconds)
	overlayInt("FEEDD_GAP_TIMEOUT_SECONDS", &cfg.GapTimeoutSeconds)
	overlayInt("FEEDD_DIFFERENCE_BATCH_SIZE", &cfg.DifferenceBatchSize)
	overlayInt("FEEDD_DIFFERENCE_LIMIT", &cfg.DifferenceLimit)
	overlayInt("FEEDD_UPDATES_LIMIT", &cfg.UpdatesLimit)
	if v := os.Getenv("FEEDD_NATS_URL"); v != "" {
		cfg.NatsURL = v
	}
}
