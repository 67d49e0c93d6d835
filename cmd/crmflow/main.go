// =============================================================================
// crmflow 主入口
// =============================================================================
// 命令行入口：交互式对话、OpenAPI 编译、工具调用校验与本地 mock CRM
//
// 使用方法:
//
//	crmflow chat                                # 启动对话
//	crmflow chat --conversation <id>            # 续接已保存的会话
//	crmflow compile openapi.yaml --out tools.json --split-dir config/agent_domain
//	crmflow validate --tools tools.json --prompt "..." --expect createLead
//	crmflow mock-crm --addr :8000               # 启动 mock CRM
//	crmflow version                             # 显示版本信息
// =============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// globalOptions 所有子命令共享的参数
type globalOptions struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorText(err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "crmflow",
		Short: "Natural-language CRM assistant driven by OpenAPI-compiled tools",
		Long: `crmflow routes a user query to a CRM domain, lets the model pick a tool
compiled from the CRM's OpenAPI document, and executes it against the CRM.

Configuration is read from --config (YAML) and CRMFLOW_* / ESPOCRM_*
environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file (YAML)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	root.AddCommand(
		newChatCmd(opts),
		newCompileCmd(opts),
		newValidateCmd(opts),
		newMockCRMCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig 加载并校验配置
func loadConfig(opts *globalOptions) (*config.Config, error) {
	loader := config.NewLoader()
	if opts.configPath != "" {
		loader = loader.WithConfigPath(opts.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setup 加载配置并初始化日志，供各子命令使用
func setup(opts *globalOptions) (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	return cfg, initLogger(cfg.Log), nil
}
