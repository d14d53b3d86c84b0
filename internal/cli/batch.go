package cli

import (
	"fmt"

	"github.com/erg0nix/petanque/internal/script"

	"github.com/spf13/cobra"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "batch <pattern>...",
		Short:   "Run many proof scripts in parallel",
		Example: `  petanque batch "proofs/**/*.yaml" --jobs 8`,
		Args:    cobra.MinimumNArgs(1),
		RunE:    runBatchCmd,
	}

	cmd.Flags().IntP("jobs", "j", 0, "scripts to run at once (default from config)")

	return cmd
}

func runBatchCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	jobs, _ := cmd.Flags().GetInt("jobs")
	if jobs <= 0 {
		jobs = a.Config.Batch.Jobs
	}

	paths, err := script.Expand(args)
	if err != nil {
		return err
	}

	results := script.RunBatch(cmd.Context(), a.SessionConfig(), paths, jobs)

	t := newTable("SCRIPT", "THEOREM", "STEPS", "RESULT")
	for _, r := range results {
		result := finishedLabel(r.Outcome.Finished)
		if r.Err != nil {
			result = styleError.Render(r.Err.Error())
		}
		t.Row(r.Path, r.Outcome.Theorem, fmt.Sprintf("%d", len(r.Outcome.Steps)), result)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, t.Render())

	failed := script.Failed(results)
	if failed > 0 {
		return fmt.Errorf("%d of %d scripts failed", failed, len(results))
	}

	fmt.Fprintln(out, styleSuccess.Render(fmt.Sprintf("%d scripts passed", len(results))))
	return nil
}
