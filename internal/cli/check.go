package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sso312/QueryLens-sub002/internal/model"
	"github.com/sso312/QueryLens-sub002/internal/sqlexec"
)

type checkResult struct {
	Compiled model.CompiledSQL   `json:"compiled"`
	Verdict  model.PolicyVerdict `json:"verdict"`
}

func newCheckCommand(root *rootOptions) *cobra.Command {
	var dialect string
	maxJoins := -1

	cmd := &cobra.Command{
		Use:   "check <sql>",
		Short: "Postprocess SQL and run the policy gate without a database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if dialect == "" {
				dialect = cfg.Pipeline.Dialect
			}
			if maxJoins < 0 {
				maxJoins = cfg.Pipeline.MaxJoins
			}

			d, err := sqlexec.ParseDialect(dialect)
			if err != nil {
				return configError(err)
			}

			compiled := sqlexec.NewPostprocessor(d, nil).Postprocess(strings.Join(args, " "))
			verdict := sqlexec.NewPolicyGate(maxJoins).CheckCompiled(compiled)

			if root.jsonOut {
				if err := writeJSON(cmd.OutOrStdout(), checkResult{Compiled: compiled, Verdict: verdict}); err != nil {
					return err
				}
			} else {
				renderCompiled(compiled)
				renderVerdict(verdict)
			}

			if !verdict.Passed {
				return rejected(fmt.Sprintf("policy rejected SQL (%s)", verdict.Reason))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dialect, "dialect", "", "target dialect: ansi, postgres, oracle (defaults to pipeline.dialect)")
	cmd.Flags().IntVar(&maxJoins, "max-joins", -1, "join limit (defaults to pipeline.max_joins)")
	return cmd
}
