package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/erg0nix/petanque/internal/protocol"
	"github.com/erg0nix/petanque/internal/session"

	"github.com/spf13/cobra"
)

func newProveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Start a proof, run tactics, and show the resulting goals",
		Example: `  petanque prove --file theories/Foo.v --thm foo --tactic "intros." --tactic "reflexivity."
  petanque prove --root . --file Foo.v --thm foo --goals --premises`,
		Args: cobra.NoArgs,
		RunE: runProveCmd,
	}

	cmd.Flags().String("root", ".", "workspace root passed to init")
	cmd.Flags().String("file", "", "source file containing the theorem")
	cmd.Flags().String("thm", "", "theorem to prove")
	cmd.Flags().StringArrayP("tactic", "t", nil, "tactic to run (repeatable)")
	cmd.Flags().Bool("goals", true, "print the goals of the final state")
	cmd.Flags().Bool("premises", false, "print the premises visible from the final state")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("thm")

	return cmd
}

func runProveCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	root, _ := cmd.Flags().GetString("root")
	file, _ := cmd.Flags().GetString("file")
	thm, _ := cmd.Flags().GetString("thm")
	tactics, _ := cmd.Flags().GetStringArray("tactic")
	showGoals, _ := cmd.Flags().GetBool("goals")
	showPremises, _ := cmd.Flags().GetBool("premises")

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	err = session.With(ctx, a.SessionConfig(), func(s *session.Session) error {
		if err := s.Init(ctx, root); err != nil {
			return err
		}
		if err := s.Start(ctx, file, thm); err != nil {
			return err
		}

		st, _ := s.Current()
		fmt.Fprintf(out, "%s %s\n", styleTactic.Render(thm), styleDim.Render(fmt.Sprintf("state %d", st.ID)))

		for _, tac := range tactics {
			res, err := s.RunTactic(ctx, tac)
			if err != nil {
				fmt.Fprintln(out, styledError("✗ "+tac, err.Error()))
				return err
			}
			fmt.Fprintf(out, "%s %s %s\n", styleSuccess.Render("✓"), styleTactic.Render(tac),
				styleDim.Render(fmt.Sprintf("state %d", res.StateID)))
		}

		top, _ := s.Current()
		fmt.Fprintln(out, finishedLabel(top.Finished))

		if showGoals && !top.Finished {
			goals, err := s.Goals(ctx)
			if err != nil {
				return err
			}
			printGoals(out, goals)
		}

		if showPremises {
			premises, err := s.Premises(ctx)
			if err != nil {
				return err
			}
			printPremises(out, premises)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("prove %s: %w", thm, err)
	}
	return nil
}

func printGoals(out io.Writer, goals protocol.Goals) {
	if len(goals.Goals) == 0 {
		fmt.Fprintln(out, styleDim.Render("no goals"))
		return
	}

	for i, g := range goals.Goals {
		fmt.Fprintln(out, styleDim.Render(fmt.Sprintf("goal %d/%d", i+1, len(goals.Goals))))
		for _, h := range g.Hyps {
			line := strings.Join(h.Names, ", ")
			if h.Def != nil {
				line += " := " + *h.Def
			}
			fmt.Fprintln(out, styleHyp.Render("  "+line+" : "+h.Ty))
		}
		fmt.Fprintln(out, "  "+strings.Repeat("─", 20))
		fmt.Fprintln(out, "  "+styleGoal.Render(g.Ty))
	}
}

func printPremises(out io.Writer, premises []protocol.Premise) {
	t := newTable("NAME", "FILE")
	for _, p := range premises {
		t.Row(p.FullName, p.File)
	}
	fmt.Fprintln(out, t.Render())
	fmt.Fprintln(out, styleDim.Render(fmt.Sprintf("%d premises", len(premises))))
}
