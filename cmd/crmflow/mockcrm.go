package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BaSui01/crmflow/crm"
	"github.com/BaSui01/crmflow/internal/metrics"
	"github.com/BaSui01/crmflow/internal/server"
)

// =============================================================================
// 🧪 mock-crm 命令
// =============================================================================

func newMockCRMCmd(global *globalOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "mock-crm",
		Short: "Serve an in-memory CRM with leads and accounts endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(global)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if addr == "" {
				addr = cfg.Server.Addr
			}
			var collector *metrics.Collector
			if cfg.Metrics.Enabled {
				collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
			}

			serverCfg := server.DefaultConfig()
			serverCfg.Addr = addr
			serverCfg.ReadTimeout = cfg.Server.ReadTimeout
			serverCfg.WriteTimeout = cfg.Server.WriteTimeout
			serverCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout

			manager := server.NewManager("mock_crm", crm.NewMockHandler(crm.NewMockStore(), collector, logger), serverCfg, logger)
			if err := manager.Start(); err != nil {
				return err
			}
			cmd.Println(infoText("mock CRM listening on " + manager.Addr()))

			// 阻塞直到收到 SIGINT / SIGTERM
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := manager.Run(ctx); err != nil {
				return err
			}
			logger.Info("Mock CRM stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default server.addr)")
	return cmd
}
