// Command mcpsentry scans MCP servers for threat indicators and, as a
// proxy, intercepts and audits live tool calls between an AI client and an
// MCP server.
package main

import (
	"fmt"
	"os"

	"github.com/mcpsentry/mcpsentry/cmd/mcpsentry/commands"
)

func main() {
	if err := commands.NewRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
