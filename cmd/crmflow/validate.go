package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/agent"
	"github.com/BaSui01/crmflow/harness"
	"github.com/BaSui01/crmflow/internal/ctxkeys"
	"github.com/BaSui01/crmflow/tools"
	"github.com/BaSui01/crmflow/types"
)

// =============================================================================
// ✅ validate 命令
// =============================================================================

type validateOptions struct {
	toolsFile  string
	prompt     string
	expect     string
	expectJSON []string
	system     string
	model      string
	attempts   int
	runs       int
}

func newValidateCmd(global *globalOptions) *cobra.Command {
	opts := &validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that the model answers a prompt with the expected tool call",
		Long: `Send --prompt to the model with the tools of --tools, retrying until the
reply passes validation or the attempts are exhausted.

--expect checks the first tool call name and every required argument of that
tool. --expect-json checks a plain JSON reply for the listed keys instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(global)
			if err != nil {
				return err
			}
			defer logger.Sync()

			rt, err := newRuntime(cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			client, err := rt.llmClient()
			if err != nil {
				return err
			}
			var offered []types.ToolDescriptor
			if opts.toolsFile != "" {
				if offered, err = tools.ReadFile(opts.toolsFile); err != nil {
					return err
				}
			}
			return runValidation(cmd.Context(), client, offered, opts, cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().StringVarP(&opts.toolsFile, "tools", "t", "", "Tools JSON file offered to the model")
	cmd.Flags().StringVarP(&opts.prompt, "prompt", "p", "", "Prompt to send")
	cmd.Flags().StringVar(&opts.expect, "expect", "", "Expected tool name")
	cmd.Flags().StringSliceVar(&opts.expectJSON, "expect-json", nil, "Keys the JSON reply must contain")
	cmd.Flags().StringVar(&opts.system, "system", "", "System prompt")
	cmd.Flags().StringVar(&opts.model, "model", "", "Override llm.model for this run")
	cmd.Flags().IntVar(&opts.attempts, "attempts", harness.DefaultConfig().MaxAttempts, "Attempts per run")
	cmd.Flags().IntVar(&opts.runs, "runs", 1, "Number of independent runs")
	_ = cmd.MarkFlagRequired("prompt")
	cmd.MarkFlagsMutuallyExclusive("expect", "expect-json")
	return cmd
}

// buildValidator 根据参数选择校验器
func buildValidator(offered []types.ToolDescriptor, opts *validateOptions) (harness.Validator, error) {
	switch {
	case opts.expect != "":
		for _, t := range offered {
			if t.Name == opts.expect {
				return harness.ExpectToolCall(t.Name, t.Parameters.Required), nil
			}
		}
		return nil, fmt.Errorf("tool %q not found in tools file", opts.expect)
	case len(opts.expectJSON) > 0:
		return harness.ExpectJSON(opts.expectJSON...), nil
	default:
		return nil, nil
	}
}

// runValidation 执行 runs 次校验并打印成功率。任一次失败时返回错误。
func runValidation(ctx context.Context, gen agent.Generator, offered []types.ToolDescriptor, opts *validateOptions, out io.Writer, logger *zap.Logger) error {
	validate, err := buildValidator(offered, opts)
	if err != nil {
		return err
	}

	cfg := harness.DefaultConfig()
	cfg.MaxAttempts = opts.attempts
	cfg.System = opts.system
	runner := harness.NewRunner(gen, cfg, logger)

	if opts.model != "" {
		ctx = ctxkeys.WithLLMModel(ctx, opts.model)
	}
	runs := opts.runs
	if runs <= 0 {
		runs = 1
	}
	var failures []error
	for i := 1; i <= runs; i++ {
		reply, err := runner.RunWithRetry(ctx, opts.prompt, offered, validate)
		if err != nil {
			fmt.Fprintf(out, "run %d: %s %v\n", i, warnText("FAIL"), err)
			failures = append(failures, err)
			continue
		}
		fmt.Fprintf(out, "run %d: %s %s\n", i, infoText("OK"), describeReply(reply.Content, reply.ToolCalls))
	}

	total, successes := runner.Stats()
	fmt.Fprintf(out, "success rate: %.0f%% (%d/%d)\n", runner.SuccessRate()*100, successes, total)
	if len(failures) > 0 {
		return fmt.Errorf("%d of %d runs failed: %w", len(failures), runs, errors.Join(failures...))
	}
	return nil
}

func describeReply(content string, calls []types.ToolCall) string {
	if len(calls) == 0 {
		return content
	}
	return fmt.Sprintf("%s(%s)", calls[0].Name, string(calls[0].Arguments))
}
