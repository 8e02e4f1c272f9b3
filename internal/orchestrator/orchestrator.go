// Package orchestrator drives scans across a set of servers with bounded
// concurrency and a per-server timeout, then runs the cross-server
// tool-shadowing pass and assembles the final report. Bounded concurrency
// is delegated to golang.org/x/sync/errgroup's SetLimit rather than
// hand-rolled with a semaphore channel.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mcpsentry/mcpsentry/internal/detect"
	"github.com/mcpsentry/mcpsentry/internal/mcpclient"
	"github.com/mcpsentry/mcpsentry/internal/model"
	"github.com/mcpsentry/mcpsentry/internal/obs"
)

// DefaultConcurrency is the scan orchestrator's default bound on
// in-flight server scans.
const DefaultConcurrency = 4

// DefaultServerTimeout is the per-server scan timeout used when Options
// does not override it.
const DefaultServerTimeout = 30 * time.Second

// Options configures one orchestrator run.
type Options struct {
	Concurrency int
	Timeout     time.Duration
	Logger      *slog.Logger
	Tracer      otrace.Tracer     // nil uses a no-op tracer
	Metrics     *obs.ProxyMetrics // nil disables metrics recording
}

// DetectorFactory builds the detector set used for one server scan; it is
// a function rather than a fixed slice so each call gets its own drift
// detector state if needed, and so tests can swap in a reduced set.
type DetectorFactory func() []detect.PerServerDetector

// Scan runs the scanner against every spec with bounded parallelism, then
// runs the cross-server shadowing pass and merges its results in. A
// per-server failure never aborts the whole scan.
func Scan(ctx context.Context, specs []model.ServerSpec, opts Options, detectors DetectorFactory) model.Report {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultServerTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = (&obs.TracerProvider{}).Tracer()
	}

	results := make([]model.ScanResult, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, spec := range specs {
		g.Go(func() error {
			results[i] = scanOne(gctx, spec, timeout, detectors(), logger, tracer)
			opts.Metrics.ObserveScanDuration(float64(results[i].ElapsedMs) / 1000)
			return nil // per-server failures live in ScanResult.Error, never abort the group
		})
	}
	_ = g.Wait()

	shadows := detect.Shadowing(results)
	for i, r := range results {
		if ts, ok := shadows[r.Server.Name]; ok {
			results[i].Threats = detect.MergeThreats(results[i].Threats, ts)
		}
	}

	return model.Report{Results: results}
}

// scanOne scans a single server: connect, list, detect. A timeout or
// transport/protocol failure produces a ScanResult with Error populated
// and no tools/resources/threats.
func scanOne(ctx context.Context, spec model.ServerSpec, timeout time.Duration, detectors []detect.PerServerDetector, logger *slog.Logger, tracer otrace.Tracer) model.ScanResult {
	ctx, span := tracer.Start(ctx, "scan_server", otrace.WithAttributes(attribute.String("mcpsentry.server", spec.Name)))
	defer span.End()

	start := time.Now()
	result := model.ScanResult{Server: spec}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, tools, resources, err := mcpclient.Connect(callCtx, spec, timeout)
	if err != nil {
		logger.Warn("scan failed", "server", spec.Name, "error", err)
		span.RecordError(err)
		result.Error = err.Error()
		result.ElapsedMs = time.Since(start).Milliseconds()
		return result
	}
	defer client.Close()

	result.Tools = tools
	result.Resources = resources

	_, detectSpan := tracer.Start(ctx, "run_detectors", otrace.WithAttributes(attribute.Int("mcpsentry.tool_count", len(tools))))
	result.Threats = detect.Run(detectors, spec, tools, resources)
	detectSpan.End()

	result.ElapsedMs = time.Since(start).Milliseconds()
	return result
}
