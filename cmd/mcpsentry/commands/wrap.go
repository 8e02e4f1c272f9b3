package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpsentry/mcpsentry/internal/discovery"
)

var supportedClients = []string{
	"claude-desktop", "cursor", "vscode", "cline", "windsurf",
	"zed", "amp", "gemini-cli", "copilot-cli", "amazon-q",
	"claude-code", "roo-code", "kilo-code", "boltai", "jetbrains",
}

func newWrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "wrap <client>",
		Short:     "Route a client's MCP servers through the interception proxy",
		Long:      "Rewrites the client's MCP config so each server command runs through 'mcpsentry proxy' instead, backing up the original to <config>.bak.",
		Example:   "  mcpsentry wrap claude-desktop",
		Args:      cobra.ExactArgs(1),
		ValidArgs: supportedClients,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := args[0]
			wrapped, err := discovery.WrapClient(client)
			if err != nil {
				return err
			}
			if wrapped == 0 {
				fmt.Println("All servers already wrapped.")
			} else {
				fmt.Printf("%d server(s) wrapped. Restart %s to activate.\n", wrapped, client)
			}
			return nil
		},
	}
}

func newUnwrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "unwrap <client>",
		Short:     "Restore a client's original MCP config from backup",
		Args:      cobra.ExactArgs(1),
		ValidArgs: supportedClients,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := args[0]
			if err := discovery.UnwrapClient(client); err != nil {
				return err
			}
			fmt.Printf("Restored original config for %s. Restart it to apply.\n", client)
			return nil
		},
	}
}
