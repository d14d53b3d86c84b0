package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/erg0nix/petanque/internal/app"
	"github.com/erg0nix/petanque/internal/gateway"

	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the gRPC gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			if !alreadyRunning(a.Config.DataDir) {
				fmt.Fprintln(cmd.OutOrStdout(), styleDim.Render("gateway not running"))
				return nil
			}

			return stopGateway(cmd.Context(), cmd.OutOrStdout(), a.GatewayAddr(), a.Config.DataDir)
		},
	}
}

func stopGateway(ctx context.Context, out io.Writer, gatewayAddr string, dataDir string) error {
	client, conn, err := gateway.Dial(gatewayAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := client.Shutdown(ctx); err != nil {
		fmt.Fprintln(out, styledError("gateway: "+err.Error(),
			fmt.Sprintf("pid file: %s", app.PIDFile(dataDir))))
		return err
	}

	fmt.Fprintln(out, styleSuccess.Render("stopped gateway"))
	return nil
}
