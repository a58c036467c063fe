package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/sso312/QueryLens-sub002/internal/model"
	"github.com/sso312/QueryLens-sub002/internal/service"
)

type classifyResult struct {
	Risk     model.RiskScore `json:"risk"`
	Escalate bool            `json:"escalate"`
}

func newClassifyCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <question>",
		Short: "Score a question's risk and report whether it would get an expert review",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			risk := service.NewRiskClassifier().Classify(model.NewQuestion(strings.Join(args, " ")))
			res := classifyResult{Risk: risk, Escalate: risk.Value >= cfg.Pipeline.ExpertThreshold}

			if root.jsonOut {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			renderRisk(res.Risk, res.Escalate, cfg.Pipeline.ExpertThreshold)
			return nil
		},
	}
}
