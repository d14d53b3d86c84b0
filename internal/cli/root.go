package cli

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/erg0nix/petanque/internal/app"
	"github.com/erg0nix/petanque/internal/config"

	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "petanque",
		Short:         "Drive proofs on a pet-server over JSON-RPC",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file")
	rootCmd.PersistentFlags().String("address", "", "pet-server address (overrides config)")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newProveCmd())
	rootCmd.AddCommand(newScriptCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newProofCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newPsCmd())

	return rootCmd
}

func loadConfig(path string) (config.Config, error) {
	configPath := path
	if configPath == "" {
		configPath = filepath.Join(config.Default().DataDir, "config.toml")
	}
	return config.LoadOrCreate(configPath)
}

func clientAddrFromBind(bind string) string {
	host, port, err := netSplitHostPort(bind)
	if err != nil || port == "" {
		return bind
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		return "127.0.0.1:" + port
	}
	return bind
}

func netSplitHostPort(addr string) (string, string, error) {
	if strings.HasPrefix(addr, ":") {
		return "", strings.TrimPrefix(addr, ":"), nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", "", err
	}
	return host, port, nil
}

func alreadyRunning(dataDir string) bool {
	return app.GatewayPID(dataDir) != 0
}

func startGateway(out io.Writer, cfg config.Config, configPath string, bindOverride string) error {
	if alreadyRunning(cfg.DataDir) {
		fmt.Fprintln(out, styleDim.Render("gateway already running at "+clientAddrFromBind(cfg.Gateway.Bind)))
		return nil
	}

	gatewayCmd := exec.Command(os.Args[0], "serve", "--foreground")
	if configPath != "" {
		gatewayCmd.Args = append(gatewayCmd.Args, "--config", configPath)
	}
	if bindOverride != "" {
		gatewayCmd.Args = append(gatewayCmd.Args, "--bind", bindOverride)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("start gateway: create data dir: %w", err)
	}

	logFile := filepath.Join(cfg.DataDir, "gateway.log")
	logOut, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("start gateway: open log: %w", err)
	}
	defer logOut.Close()

	gatewayCmd.Stdout = logOut
	gatewayCmd.Stderr = logOut

	if err := gatewayCmd.Start(); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	fmt.Fprintln(out,
		styleSuccess.Render("started gateway")+" "+
			stylePID.Render(fmt.Sprintf("pid %d", gatewayCmd.Process.Pid)))
	return nil
}
