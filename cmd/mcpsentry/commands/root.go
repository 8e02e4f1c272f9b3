package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var cfgFile string

// newLogger builds the process logger: human-readable text on a terminal,
// JSON when stderr is redirected into a file or collector.
func newLogger() *slog.Logger {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "mcpsentry",
		Short: "Security posture scanner and interception proxy for MCP servers",
		Long:  "mcpsentry discovers, scans, and proxies Model Context Protocol servers, catching prompt-injected tool descriptions, over-broad permission claims, missing auth, tool shadowing, and description drift before an agent ever calls them.",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "mcpsentry.yaml", "config file path")

	root.AddCommand(
		newScanCmd(),
		newProxyCmd(),
		newRulesCmd(),
		newAuditCmd(),
		newDiscoverCmd(),
		newWrapCmd(),
		newUnwrapCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	return root
}
