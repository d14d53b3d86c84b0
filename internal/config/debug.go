package config

import (
	"os"
	"strings"
)

// ApplyEnv overrides cfg with PETANQUE_* environment variables.
func ApplyEnv(cfg Config) Config {
	if v := strings.TrimSpace(os.Getenv("PETANQUE_ADDRESS")); v != "" {
		cfg.Address = v
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("PETANQUE_FRAMING"))); v == "line" || v == "chunked" {
		cfg.Transport.Framing = v
	}
	if v := strings.TrimSpace(os.Getenv("PETANQUE_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	cfg.Debug = LoadDebugConfigFromEnv(cfg.Debug)
	return cfg
}

func LoadDebugConfigFromEnv(cfg DebugConfig) DebugConfig {
	if os.Getenv("PETANQUE_DEBUG_LOG_REQUESTS") == "1" {
		cfg.LogRequests = true
	}
	if os.Getenv("PETANQUE_DEBUG_LOG_RESPONSES") == "1" {
		cfg.LogResponses = true
	}
	return cfg
}
