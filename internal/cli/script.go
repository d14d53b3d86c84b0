package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/erg0nix/petanque/internal/script"

	"github.com/spf13/cobra"
)

func newScriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script <file.yaml>",
		Short: "Run a proof script",
		Args:  cobra.ExactArgs(1),
		RunE:  runScriptCmd,
	}

	cmd.Flags().StringP("output", "o", "text", "output format: text, yaml or json")

	return cmd
}

func runScriptCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("output")

	sc, err := script.Load(args[0])
	if err != nil {
		return err
	}

	outcome, runErr := script.Run(cmd.Context(), a.SessionConfig(), sc)
	if err := printOutcome(cmd.OutOrStdout(), format, outcome); err != nil {
		return err
	}
	return runErr
}

func printOutcome(out io.Writer, format string, outcome script.Outcome) error {
	switch format {
	case "yaml":
		data, err := yaml.Marshal(outcome)
		if err != nil {
			return fmt.Errorf("encode outcome: %w", err)
		}
		_, err = out.Write(data)
		return err
	case "json":
		data, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			return fmt.Errorf("encode outcome: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case "text", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	fmt.Fprintln(out, styleTactic.Render(outcome.Theorem))
	for _, step := range outcome.Steps {
		fmt.Fprintf(out, "  %s %s %s\n", styleSuccess.Render("✓"), step.Tactic,
			styleDim.Render(fmt.Sprintf("state %d", step.StateID)))
	}

	status := finishedLabel(outcome.Finished)
	if !outcome.Finished && outcome.OpenGoals > 0 {
		status += styleDim.Render(fmt.Sprintf(" (%d goals)", outcome.OpenGoals))
	}
	fmt.Fprintln(out, status)
	return nil
}
