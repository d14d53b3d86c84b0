package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultAddress     = "127.0.0.1:8765"
	DefaultGatewayBind = "127.0.0.1:50061"
)

type TransportConfig struct {
	Framing             string `toml:"framing"`
	ChunkSize           int    `toml:"chunk_size"`
	MaxMessageBytes     int    `toml:"max_message_bytes"`
	ReadTimeoutSeconds  int    `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `toml:"write_timeout_seconds"`
}

type GatewayConfig struct {
	Bind string `toml:"bind"`
}

type BatchConfig struct {
	Jobs int `toml:"jobs"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type DebugConfig struct {
	LogRequests  bool `toml:"log_requests"`
	LogResponses bool `toml:"log_responses"`
}

type Config struct {
	Address               string          `toml:"address"`
	ConnectTimeoutSeconds int             `toml:"connect_timeout_seconds"`
	DataDir               string          `toml:"data_dir"`
	Transport             TransportConfig `toml:"transport"`
	Gateway               GatewayConfig   `toml:"gateway"`
	Batch                 BatchConfig     `toml:"batch"`
	Log                   LogConfig       `toml:"log"`
	Debug                 DebugConfig     `toml:"debug"`
}

func Default() Config {
	return Config{
		Address:               DefaultAddress,
		ConnectTimeoutSeconds: 5,
		DataDir:               defaultDataDir(),
		Transport: TransportConfig{
			Framing:         "line",
			ChunkSize:       1024,
			MaxMessageBytes: 10 * 1024 * 1024,
		},
		Gateway: GatewayConfig{
			Bind: DefaultGatewayBind,
		},
		Batch: BatchConfig{
			Jobs: 4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadOrCreate reads the config at path, writing the defaults there first if
// the file does not exist.
func LoadOrCreate(path string) (Config, error) {
	config := Default()

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return config, err
		}

		created, err := normalize(config)
		if err != nil {
			return created, err
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return created, err
		}

		configData, err := toml.Marshal(created)
		if err != nil {
			return created, err
		}

		if err := os.WriteFile(path, configData, 0o644); err != nil {
			return created, err
		}

		return created, nil
	}

	configData, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := toml.Unmarshal(configData, &config); err != nil {
		return config, err
	}

	return normalize(config)
}

// normalize trims and validates config and fills in defaults for fields that
// may be left empty.
func normalize(config Config) (Config, error) {
	config.DataDir = expandPath(config.DataDir)
	config.Address = strings.TrimSpace(config.Address)
	config.Gateway.Bind = strings.TrimSpace(config.Gateway.Bind)
	config.Transport.Framing = strings.ToLower(strings.TrimSpace(config.Transport.Framing))

	if config.Address == "" {
		return config, errors.New("address is required")
	}

	switch config.Transport.Framing {
	case "":
		config.Transport.Framing = "line"
	case "line", "chunked":
	default:
		return config, errors.New("transport.framing must be line or chunked")
	}

	if config.Gateway.Bind == "" {
		config.Gateway.Bind = DefaultGatewayBind
	}

	if config.Batch.Jobs <= 0 {
		config.Batch.Jobs = 1
	}

	return config, nil
}

func defaultDataDir() string {
	homeDir, _ := os.UserHomeDir()

	if homeDir == "" {
		return ".petanque"
	}

	return filepath.Join(homeDir, ".petanque")
}

func expandPath(path string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()

		if homeDir != "" {
			trimmed := strings.TrimPrefix(path, "~")
			trimmed = strings.TrimPrefix(trimmed, string(os.PathSeparator))

			return filepath.Join(homeDir, trimmed)
		}
	}

	return path
}
