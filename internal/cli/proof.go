package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"google.golang.org/grpc/status"

	"github.com/erg0nix/petanque/internal/gateway"
	"github.com/erg0nix/petanque/internal/session"

	"github.com/spf13/cobra"
)

// newProofCmd groups the commands that drive the proof held by a running
// gateway. Each invocation is one gateway call, so several tools can take
// turns on the same proof.
func newProofCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proof",
		Short: "Drive the proof held by the gRPC gateway",
		Example: `  petanque serve
  petanque proof init .
  petanque proof start --file theories/Foo.v --thm foo
  petanque proof tactic "intros." "reflexivity."
  petanque proof backtrack`,
	}

	cmd.AddCommand(newProofInitCmd())
	cmd.AddCommand(newProofStartCmd())
	cmd.AddCommand(newProofTacticCmd())
	cmd.AddCommand(newProofGoalsCmd())
	cmd.AddCommand(newProofPremisesCmd())
	cmd.AddCommand(newProofBacktrackCmd())
	cmd.AddCommand(newProofResetCmd())
	cmd.AddCommand(newProofHistoryCmd())

	return cmd
}

func withGateway(cmd *cobra.Command, fn func(ctx context.Context, client *gateway.Client) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	client, conn, err := gateway.Dial(a.GatewayAddr())
	if err != nil {
		return err
	}
	defer conn.Close()

	return fn(cmd.Context(), client)
}

// gatewayError keeps the status message and drops the rpc error prefix.
func gatewayError(op string, err error) error {
	if st, ok := status.FromError(err); ok {
		return fmt.Errorf("%s: %s (%s)", op, st.Message(), st.Code())
	}
	return fmt.Errorf("%s: %w", op, err)
}

func newProofInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [root]",
		Short: "Initialize the gateway session on a workspace root",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			abs, err := filepath.Abs(root)
			if err != nil {
				return err
			}

			return withGateway(cmd, func(ctx context.Context, client *gateway.Client) error {
				env, err := client.Init(ctx, abs)
				if err != nil {
					return gatewayError("init", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", styleSuccess.Render("initialized "+abs),
					styleDim.Render(fmt.Sprintf("env %d", env)))
				return nil
			})
		},
	}
}

func newProofStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a proof on the gateway session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, _ := cmd.Flags().GetString("file")
			thm, _ := cmd.Flags().GetString("thm")
			abs, err := filepath.Abs(file)
			if err != nil {
				return err
			}

			return withGateway(cmd, func(ctx context.Context, client *gateway.Client) error {
				st, err := client.Start(ctx, abs, thm)
				if err != nil {
					return gatewayError("start "+thm, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", styleTactic.Render(thm),
					styleDim.Render(fmt.Sprintf("state %d", st.ID)))
				return nil
			})
		},
	}

	cmd.Flags().String("file", "", "source file containing the theorem")
	cmd.Flags().String("thm", "", "theorem to prove")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("thm")

	return cmd
}

func newProofTacticCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tactic <tactic>...",
		Short: "Run tactics in order on the current state",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			return withGateway(cmd, func(ctx context.Context, client *gateway.Client) error {
				var st session.ProofState
				for _, tac := range args {
					var err error
					st, err = client.RunTactic(ctx, tac)
					if err != nil {
						err = gatewayError("tactic "+tac, err)
						fmt.Fprintln(out, styledError("✗ "+tac, err.Error()))
						return err
					}
					fmt.Fprintf(out, "%s %s %s\n", styleSuccess.Render("✓"), styleTactic.Render(tac),
						styleDim.Render(fmt.Sprintf("state %d", st.ID)))
				}
				fmt.Fprintln(out, finishedLabel(st.Finished))
				return nil
			})
		},
	}
}

func newProofGoalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "goals",
		Short: "Show the goals of the current state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withGateway(cmd, func(ctx context.Context, client *gateway.Client) error {
				goals, err := client.Goals(ctx)
				if err != nil {
					return gatewayError("goals", err)
				}
				printGoals(cmd.OutOrStdout(), goals)
				return nil
			})
		},
	}
}

func newProofPremisesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "premises",
		Short: "List the premises visible from the current state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withGateway(cmd, func(ctx context.Context, client *gateway.Client) error {
				premises, err := client.Premises(ctx)
				if err != nil {
					return gatewayError("premises", err)
				}
				printPremises(cmd.OutOrStdout(), premises)
				return nil
			})
		},
	}
}

func newProofBacktrackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backtrack",
		Short: "Undo the last tactic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withGateway(cmd, func(ctx context.Context, client *gateway.Client) error {
				popped, err := client.Backtrack(ctx)
				if err != nil {
					return gatewayError("backtrack", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", styleWarning.Render("undid"),
					styleTactic.Render(popped.Action), styleDim.Render(fmt.Sprintf("state %d", popped.ID)))
				return nil
			})
		},
	}
}

func newProofResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restart the current proof from its initial state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withGateway(cmd, func(ctx context.Context, client *gateway.Client) error {
				st, err := client.Reset(ctx)
				if err != nil {
					return gatewayError("reset", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", styleSuccess.Render("reset"),
					styleDim.Render(fmt.Sprintf("state %d", st.ID)))
				return nil
			})
		},
	}
}

func newProofHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the proof stack, oldest state first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withGateway(cmd, func(ctx context.Context, client *gateway.Client) error {
				history, err := client.History(ctx)
				if err != nil {
					return gatewayError("history", err)
				}

				t := newTable("STATE", "ACTION", "STATUS")
				for _, st := range history {
					t.Row(fmt.Sprintf("%d", st.ID), st.Action, finishedLabel(st.Finished))
				}
				fmt.Fprintln(cmd.OutOrStdout(), t.Render())
				return nil
			})
		},
	}
}
