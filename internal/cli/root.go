// Package cli implements the querylens command: offline policy checks, risk
// classification, and questions answered locally or through a running server.
package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/sso312/QueryLens-sub002/internal/config"
)

type rootOptions struct {
	configPath string
	jsonOut    bool
	noColor    bool
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "querylens",
		Short:         "Guarded natural-language SQL for clinical databases",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			pterm.SetDefaultOutput(cmd.OutOrStdout())
			if opts.noColor {
				pterm.DisableStyling()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("QUERYLENS_CONFIG"), "path to config file")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print machine-readable JSON")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(
		newCheckCommand(opts),
		newClassifyCommand(opts),
		newAskCommand(opts),
	)
	return cmd
}

// Execute runs the CLI and exits with the code of the first error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		exitWithError(err)
	}
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, configError(err)
	}
	return cfg, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
