package cli

import (
	"context"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sso312/QueryLens-sub002/internal/app"
	qerrors "github.com/sso312/QueryLens-sub002/internal/errors"
	"github.com/sso312/QueryLens-sub002/internal/logging"
	"github.com/sso312/QueryLens-sub002/internal/model"
)

type askOptions struct {
	ack     bool
	server  string
	token   string
	timeout time.Duration
}

func newAskCommand(root *rootOptions) *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Generate, check and execute SQL for a question",
		Long: `Runs the full pipeline. With --server the question goes to a running
querylens server; otherwise the pipeline runs in-process against the
configured database.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := model.QueryRequest{Question: strings.Join(args, " "), UserAck: opts.ack}

			var spinner *pterm.SpinnerPrinter
			if !root.jsonOut {
				spinner, _ = pterm.DefaultSpinner.Start("Answering: " + req.Question)
			}

			resp, err := ask(cmd.Context(), root, opts, req)

			if spinner != nil {
				if err != nil {
					spinner.Fail("Failed")
				} else {
					spinner.Success("Done")
				}
			}

			if resp != nil {
				if root.jsonOut {
					if werr := writeJSON(cmd.OutOrStdout(), resp); werr != nil {
						return werr
					}
				} else {
					renderResponse(resp)
				}
			}
			if err != nil {
				return err
			}
			return statusError(resp)
		},
	}

	cmd.Flags().BoolVar(&opts.ack, "ack", false, "acknowledge a high-risk question so it executes")
	cmd.Flags().StringVar(&opts.server, "server", "", "base URL of a running server (runs locally when empty)")
	cmd.Flags().StringVar(&opts.token, "token", "", "operator bearer token for --server")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "overall deadline (defaults to the configured request timeout)")
	return cmd
}

func ask(ctx context.Context, root *rootOptions, opts *askOptions, req model.QueryRequest) (*model.QueryResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.server != "" {
		if opts.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.timeout)
			defer cancel()
		}
		return newRemoteClient(opts.server, opts.token).Query(ctx, req)
	}

	cfg, err := root.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, "console")
	if err != nil {
		return nil, configError(err)
	}
	defer logger.Sync()

	timeout := opts.timeout
	if timeout <= 0 {
		timeout = cfg.RequestTimeout()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	a, err := app.Build(ctx, cfg, nil, logger)
	if err != nil {
		return nil, configError(err)
	}
	defer a.Close()

	resp, err := a.QueryService.GenerateAndExecute(ctx, req)
	if err != nil {
		logger.Debug("pipeline failed", zap.Error(err))
		if qerrors.Is(err, qerrors.PolicyViolation) {
			return resp, rejected(err.Error())
		}
		return resp, queryFailed(string(qerrors.KindOf(err)), err)
	}
	return resp, nil
}

func statusError(resp *model.QueryResponse) error {
	if resp == nil {
		return nil
	}
	switch resp.Status {
	case model.StatusAwaitingAck:
		return rejected("high-risk question; rerun with --ack to execute")
	case model.StatusNeedsClarification:
		return rejected("the question needs clarification")
	}
	return nil
}
