package cli

import (
	"github.com/erg0nix/petanque/internal/app"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gRPC gateway in front of pet-server",
		RunE:  runServeCmd,
	}

	cmd.Flags().Bool("foreground", false, "run gateway in foreground")
	cmd.Flags().String("bind", "", "bind address (overrides config)")

	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	foreground, _ := cmd.Flags().GetBool("foreground")
	bindOverride, _ := cmd.Flags().GetString("bind")

	cfg := a.Config
	if bindOverride != "" {
		cfg.Gateway.Bind = bindOverride
	}

	if foreground {
		return app.RunGateway(cfg, a.Logger)
	}

	return startGateway(cmd.OutOrStdout(), cfg, a.ConfigPath, bindOverride)
}
