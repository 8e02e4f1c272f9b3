package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpsentry/mcpsentry/internal/discovery"
)

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "List MCP server configurations found on this machine",
		Long:  "Walks the known config locations for Claude Desktop, Cursor, VS Code, Cline, Windsurf, Zed, OpenClaw, and other MCP clients, and prints every server each one references.",
		Example: `  mcpsentry discover
  mcpsentry discover && mcpsentry scan --format sarif`,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := discovery.Discover()
			fmt.Print(discovery.FormatTree(specs))
			if len(specs) > 0 {
				fmt.Println()
				fmt.Println("Run 'mcpsentry scan' to check these servers, or 'mcpsentry wrap <client>' to route them through the proxy.")
			}
			return nil
		},
	}
}
