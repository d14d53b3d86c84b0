package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/erg0nix/petanque/internal/script"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init <script.yaml>",
		Short: "Write a proof script skeleton",
		Args:  cobra.ExactArgs(1),
		RunE:  runInitCmd,
	}

	cmd.Flags().String("file", "", "source file containing the theorem")
	cmd.Flags().String("thm", "", "theorem to prove")
	cmd.Flags().StringArrayP("tactic", "t", nil, "initial tactics (repeatable)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("thm")

	return cmd
}

func runInitCmd(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists; remove it first to regenerate", path)
	}

	file, _ := cmd.Flags().GetString("file")
	thm, _ := cmd.Flags().GetString("thm")
	tactics, _ := cmd.Flags().GetStringArray("tactic")
	if tactics == nil {
		tactics = []string{}
	}

	sc := script.Script{
		File:    file,
		Theorem: thm,
		Tactics: tactics,
		Expect:  script.ExpectFinished,
	}
	data, err := yaml.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode script: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create script dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write script: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), styleSuccess.Render("wrote "+path))
	return nil
}
