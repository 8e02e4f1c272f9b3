package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpsentry/mcpsentry/internal/audit"
	"github.com/mcpsentry/mcpsentry/internal/cfg"
	"github.com/mcpsentry/mcpsentry/internal/discovery"
	"github.com/mcpsentry/mcpsentry/internal/model"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show discovered servers, configured rules, and audit log size",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := cfg.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			specs := discovery.Discover()

			fmt.Println()
			fmt.Println("  mcpsentry status")
			fmt.Println("  ────────────────────────────────────────")
			fmt.Printf("  Config:        %s\n", cfgFile)
			fmt.Printf("  Concurrency:   %d\n", config.Scan.Concurrency)
			fmt.Printf("  Timeout:       %s\n", config.Scan.Timeout)
			fmt.Printf("  Servers found: %d\n", len(specs))
			fmt.Printf("  Audit DB:      %s\n", config.Storage.AuditDBPath)
			fmt.Printf("  Snapshots:     %s\n", config.Storage.SnapshotDir)

			store, err := audit.NewStore(config.Storage.AuditDBPath, nil)
			if err == nil {
				defer store.Close()
				entries, qerr := store.Query(audit.QueryOpts{Limit: 1})
				if qerr == nil {
					fmt.Printf("  Last audit entry: %s\n", describeLastEntry(entries))
				}
				rules, rerr := store.LoadRules()
				if rerr == nil {
					fmt.Printf("  Rules:             %d configured\n", len(rules))
				}
			}
			fmt.Println()
			return nil
		},
	}
}

func describeLastEntry(entries []model.AuditEntry) string {
	if len(entries) == 0 {
		return "none yet"
	}
	e := entries[0]
	return fmt.Sprintf("%s  %s.%s", e.Timestamp.Format("2006-01-02 15:04:05"), e.ServerName, e.ToolName)
}
