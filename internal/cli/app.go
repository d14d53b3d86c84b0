package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/erg0nix/petanque/internal/config"
	"github.com/erg0nix/petanque/internal/session"
	"github.com/spf13/cobra"
)

type App struct {
	Config     config.Config
	ConfigPath string
	Logger     *slog.Logger
}

func newApp(cmd *cobra.Command) (*App, error) {
	configPath, _ := cmd.Flags().GetString("config")
	addressOverride, _ := cmd.Flags().GetString("address")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg = config.ApplyEnv(cfg)
	if v := strings.TrimSpace(addressOverride); v != "" {
		cfg.Address = v
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	return &App{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     logger,
	}, nil
}

func (a *App) SessionConfig() session.Config {
	return a.Config.SessionConfig(a.Logger)
}

// GatewayAddr is the address clients use to reach the configured gateway.
func (a *App) GatewayAddr() string {
	return clientAddrFromBind(a.Config.Gateway.Bind)
}
