package commands

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mcpsentry/mcpsentry/internal/audit"
	"github.com/mcpsentry/mcpsentry/internal/cfg"
	"github.com/mcpsentry/mcpsentry/internal/errs"
	"github.com/mcpsentry/mcpsentry/internal/model"
	"github.com/mcpsentry/mcpsentry/internal/obs"
	"github.com/mcpsentry/mcpsentry/internal/proxy"
	"github.com/mcpsentry/mcpsentry/internal/rules"
	"github.com/mcpsentry/mcpsentry/internal/transport"
)

func newProxyCmd() *cobra.Command {
	var serverName string

	cmd := &cobra.Command{
		Use:   "proxy -- <command> [args...]",
		Short: "Interpose on a single MCP server, enforcing rules and auditing every tool call",
		Long:  "Spawns <command> as a child MCP server and pumps JSON-RPC between it and this process's stdio, evaluating every tools/call request against the rule engine and logging every call to the audit store.",
		Example: `  mcpsentry proxy --server filesystem -- npx -y @mcp/server-filesystem /data
  mcpsentry wrap claude-desktop   # rewrites a client config to invoke this automatically`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverName == "" {
				return fmt.Errorf("--server is required")
			}

			config, err := cfg.Load(cfgFile)
			if err != nil {
				return err
			}

			logger := newLogger().With("component", "proxy")

			store, err := audit.NewStore(config.Storage.AuditDBPath, logger)
			if err != nil {
				return fmt.Errorf("opening audit store: %w", err)
			}
			defer store.Close()

			engine := rules.NewEngine()
			persisted, err := store.LoadRules()
			if err != nil {
				// Fail-open: an unreachable rule store must not strand the
				// proxied server, so start with config-file rules only.
				logger.Warn("loading persisted rules, continuing without them",
					"error", &errs.RuleError{Err: err})
			}
			combine := func(configRules []cfg.RuleConfig) []model.Rule {
				merged := make([]model.Rule, 0, len(persisted)+len(configRules))
				merged = append(merged, persisted...)
				for _, rc := range configRules {
					merged = append(merged, rc.ToModel())
				}
				return merged
			}
			engine.SetRules(combine(config.Rules))

			if cfgFile != "" {
				stopWatch, werr := cfg.WatchRules(cfgFile, logger, func(rs []cfg.RuleConfig) {
					merged := combine(rs)
					engine.SetRules(merged)
					logger.Info("reloaded rules from config change", "count", len(merged))
				})
				if werr != nil {
					logger.Warn("rule hot-reload disabled", "error", werr)
				} else {
					defer stopWatch()
				}
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			child, err := transport.Spawn(ctx, serverName, args[0], args[1:], nil)
			if err != nil {
				return fmt.Errorf("spawning %s: %w", serverName, err)
			}

			var metrics *obs.ProxyMetrics
			if config.Proxy.MetricsBind != "" {
				metrics = obs.NewProxyMetrics(prometheus.DefaultRegisterer)
				store.WithMetrics(metrics)
				go serveMetrics(config.Proxy.MetricsBind, logger)
			}

			pump := proxy.NewPump(serverName, child, engine, store, logger).WithMetrics(metrics)
			return pump.Run(os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&serverName, "server", "", "logical name of the server being proxied, used in rules and audit records")

	return cmd
}

func serveMetrics(bind string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(bind, mux); err != nil {
		logger.Error("metrics listener stopped", "error", err)
	}
}
