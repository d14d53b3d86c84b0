package cli

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/charmbracelet/lipgloss/table"

	"github.com/erg0nix/petanque/internal/app"
	"github.com/erg0nix/petanque/internal/gateway"

	"github.com/spf13/cobra"
)

func newPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "Show gateway and pet-server status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			t := newTable("NAME", "STATUS", "PID", "ENDPOINT", "SESSION", "UPTIME")

			addGatewayRow(cmd.Context(), t, a.Config.DataDir, a.GatewayAddr())
			addPetServerRow(t, a.Config.Address)

			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
}

func addGatewayRow(ctx context.Context, t *table.Table, dataDir string, gatewayAddr string) {
	pid := app.GatewayPID(dataDir)
	if pid == 0 {
		t.Row("gateway", styleError.Render("stopped"), "-", gatewayAddr, "-", "-")
		return
	}

	sessionText := "-"
	uptime := "-"

	client, conn, err := gateway.Dial(gatewayAddr)
	if err == nil {
		defer conn.Close()
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if st, err := client.Status(ctx); err == nil {
			sessionText = st.State
			if st.Theorem != "" {
				sessionText += " (" + st.Theorem + ")"
			}
			uptime = (time.Duration(st.UptimeSeconds) * time.Second).String()
		}
	}

	t.Row("gateway",
		styleSuccess.Render("running"),
		fmt.Sprintf("%d", pid),
		gatewayAddr,
		sessionText,
		uptime)
}

func addPetServerRow(t *table.Table, address string) {
	pid := app.FindProcessPID("pet-server")
	pidText := "-"
	if pid != 0 {
		pidText = fmt.Sprintf("%d", pid)
	}

	status := styleSuccess.Render("reachable")
	conn, err := net.DialTimeout("tcp", address, 2*time.Second)
	if err != nil {
		status = styleError.Render("unreachable")
		if pid != 0 {
			status = styleWarning.Render("starting")
		}
	} else {
		conn.Close()
	}

	t.Row("pet-server", status, pidText, address, "-", "-")
}
