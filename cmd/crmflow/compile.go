package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/crmflow/internal/metrics"
	"github.com/BaSui01/crmflow/openapi"
	"github.com/BaSui01/crmflow/tools"
	"github.com/BaSui01/crmflow/types"
)

// =============================================================================
// 🛠️ compile 命令
// =============================================================================

type compileOptions struct {
	out         string
	splitDir    string
	includeTags []string
	excludeTags []string
	prefix      string
}

func newCompileCmd(global *globalOptions) *cobra.Command {
	opts := &compileOptions{}
	cmd := &cobra.Command{
		Use:   "compile <openapi-file-or-url>...",
		Short: "Compile OpenAPI documents into function-calling tools",
		Long: `Compile every operation of one or more OpenAPI documents into tool
descriptors. Later documents override tools of the same name.

Without --out the JSON array is written to stdout. --split-dir also writes one
file per domain, the layout the chat command loads.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			compileOpts := cfg.OpenAPI.CompileOptions()
			if cmd.Flags().Changed("include-tag") {
				compileOpts.IncludeTags = opts.includeTags
			}
			if cmd.Flags().Changed("exclude-tag") {
				compileOpts.ExcludeTags = opts.excludeTags
			}
			if cmd.Flags().Changed("prefix") {
				compileOpts.Prefix = opts.prefix
			}

			registry, err := compileSources(cmd.Context(), rt.compiler(), args, compileOpts, rt.collector, logger)
			if err != nil {
				return err
			}
			return writeCompiled(cmd.OutOrStdout(), cmd.ErrOrStderr(), registry, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Write the tools JSON array to this file")
	cmd.Flags().StringVar(&opts.splitDir, "split-dir", "", "Also write one <Domain>.json per domain into this directory")
	cmd.Flags().StringSliceVar(&opts.includeTags, "include-tag", nil, "Only compile operations carrying one of these tags")
	cmd.Flags().StringSliceVar(&opts.excludeTags, "exclude-tag", nil, "Skip operations carrying one of these tags")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "", "Prefix prepended to every tool name")
	return cmd
}

// compileConcurrency 同时编译的文档数
const compileConcurrency = 4

// compileSources 并发编译各文档，再按参数顺序注册到同一个 Registry，
// 后出现的同名工具覆盖先前的。
func compileSources(ctx context.Context, compiler *openapi.Compiler, sources []string, opts openapi.CompileOptions, collector *metrics.Collector, logger *zap.Logger) (*tools.Registry, error) {
	results := make([][]types.ToolDescriptor, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(compileConcurrency)
	for i, source := range sources {
		g.Go(func() error {
			compiled, err := compiler.CompileSource(gctx, source, opts)
			if err != nil {
				return fmt.Errorf("compile %s: %w", source, err)
			}
			results[i] = compiled
			logger.Info("document compiled", zap.String("source", source), zap.Int("tools", len(compiled)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	registry := tools.NewRegistry(logger)
	for _, compiled := range results {
		registry.RegisterAll(compiled)
	}
	for domain, group := range registry.GroupByDomain() {
		collector.RecordToolsCompiled(domain, len(group))
	}
	return registry, nil
}

func writeCompiled(stdout, stderr io.Writer, registry *tools.Registry, opts *compileOptions) error {
	all := registry.All()
	if opts.out != "" {
		if err := tools.WriteFile(opts.out, all); err != nil {
			return fmt.Errorf("write %s: %w", opts.out, err)
		}
		fmt.Fprintln(stderr, infoText(fmt.Sprintf("wrote %d tools to %s", len(all), opts.out)))
	} else {
		if err := writeSchemas(stdout, all); err != nil {
			return err
		}
	}

	if opts.splitDir != "" {
		written, err := tools.WriteDomainFiles(opts.splitDir, registry)
		if err != nil {
			return err
		}
		for _, path := range written {
			fmt.Fprintln(stderr, infoText("wrote "+path))
		}
	}
	return nil
}

func writeSchemas(w io.Writer, all []types.ToolDescriptor) error {
	if all == nil {
		all = []types.ToolDescriptor{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(all)
}
