package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpsentry/mcpsentry/internal/audit"
)

func newAuditCmd() *cobra.Command {
	var (
		serverName string
		toolName   string
		blockedF   string
		limit      int
		offset     int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the proxy's audit log",
		Example: `  mcpsentry audit --server filesystem --limit 20
  mcpsentry audit --blocked true`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openAuditStore()
			if err != nil {
				return err
			}
			defer store.Close()

			opts := audit.QueryOpts{ServerName: serverName, ToolName: toolName, Limit: limit, Offset: offset}
			if blockedF != "" {
				b := blockedF == "true"
				opts.Blocked = &b
			}

			entries, err := store.Query(opts)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No matching audit entries.")
				return nil
			}
			for _, e := range entries {
				status := "allowed"
				if e.Blocked {
					status = "blocked: " + e.BlockReason
				}
				fmt.Printf("%s  %-20s %-20s %-8dms  %s\n",
					e.Timestamp.Format(time.RFC3339), e.ServerName, e.ToolName, e.DurationMs, status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverName, "server", "", "filter by server name")
	cmd.Flags().StringVar(&toolName, "tool", "", "filter by tool name")
	cmd.Flags().StringVar(&blockedF, "blocked", "", "filter by decision: true or false")
	cmd.Flags().IntVar(&limit, "limit", 100, "max entries to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "pagination offset")

	return cmd
}
