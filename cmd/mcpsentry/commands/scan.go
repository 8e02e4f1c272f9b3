package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mcpsentry/mcpsentry/internal/cfg"
	"github.com/mcpsentry/mcpsentry/internal/detect"
	"github.com/mcpsentry/mcpsentry/internal/discovery"
	"github.com/mcpsentry/mcpsentry/internal/model"
	"github.com/mcpsentry/mcpsentry/internal/obs"
	"github.com/mcpsentry/mcpsentry/internal/orchestrator"
	"github.com/mcpsentry/mcpsentry/internal/report"
	"github.com/mcpsentry/mcpsentry/internal/snapshot"
)

func newScanCmd() *cobra.Command {
	var (
		format      string
		concurrency int
		outputPath  string
		trace       bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Discover configured MCP servers and scan them for threat indicators",
		Long:  "Runs every registered detector against each discovered MCP server: prompt-injected descriptions, over-broad permission scope, missing auth, cross-server tool shadowing, and description drift since the last scan.",
		Example: `  mcpsentry scan
  mcpsentry scan --format sarif > results.sarif`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := cfg.Load(cfgFile)
			if err != nil {
				return err
			}
			if concurrency > 0 {
				config.Scan.Concurrency = concurrency
			}

			specs := discovery.Discover()
			if len(specs) == 0 {
				fmt.Println("No MCP server configurations found. Run 'mcpsentry discover' to see where mcpsentry looks.")
				return nil
			}

			store, err := snapshot.NewStore(config.Storage.SnapshotDir)
			if err != nil {
				return fmt.Errorf("opening snapshot store: %w", err)
			}
			drift := detect.NewDriftDetector(store)

			tp, err := obs.NewStdoutTracerProvider(trace)
			if err != nil {
				return fmt.Errorf("starting tracer: %w", err)
			}

			rep := orchestrator.Scan(cmd.Context(), specs, orchestrator.Options{
				Concurrency: config.Scan.Concurrency,
				Timeout:     config.Scan.Timeout,
				Logger:      newLogger().With("component", "scan"),
				Tracer:      tp.Tracer(),
			}, func() []detect.PerServerDetector {
				return detect.StandardDetectors(drift)
			})

			out, err := renderReport(rep, format)
			if err != nil {
				return err
			}

			if outputPath != "" {
				if err := os.WriteFile(outputPath, out, 0o644); err != nil {
					return fmt.Errorf("writing report to %s: %w", outputPath, err)
				}
			} else {
				printSummary(rep)
				fmt.Println()
				fmt.Println(string(out))
			}

			// Flush spans before exiting; os.Exit skips deferred calls.
			_ = tp.Shutdown(cmd.Context())
			os.Exit(rep.ExitCode())
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "report format: json or sarif")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "max servers scanned in parallel (0 = config default)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&trace, "trace", false, "emit OpenTelemetry spans for each server scan to stdout")

	return cmd
}

func renderReport(rep model.Report, format string) ([]byte, error) {
	switch format {
	case "sarif":
		return report.ToSARIF(rep, version)
	case "json", "":
		return report.ToJSON(rep)
	default:
		return nil, fmt.Errorf("unknown format %q (want json or sarif)", format)
	}
}

func printSummary(rep model.Report) {
	// Piping to a file or CI log loses the terminal escape codes anyway;
	// skip them so a redirected summary stays readable.
	color.NoColor = color.NoColor || !term.IsTerminal(int(os.Stdout.Fd()))

	var critical, high, other int
	for _, r := range rep.Results {
		for _, t := range r.Threats {
			switch {
			case t.Severity == model.SeverityCritical:
				critical++
			case t.Severity == model.SeverityHigh:
				high++
			default:
				other++
			}
		}
	}

	fmt.Printf("Scanned %d server(s).\n", len(rep.Results))
	if critical > 0 {
		color.New(color.FgRed, color.Bold).Printf("  %d critical\n", critical)
	}
	if high > 0 {
		color.New(color.FgRed).Printf("  %d high\n", high)
	}
	if other > 0 {
		color.New(color.FgYellow).Printf("  %d lower severity\n", other)
	}
	if critical == 0 && high == 0 && other == 0 {
		color.New(color.FgGreen).Println("  no threats found")
	}
}
