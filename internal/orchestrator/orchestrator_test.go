package orchestrator

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/mcpsentry/mcpsentry/internal/detect"
	"github.com/mcpsentry/mcpsentry/internal/model"
	"github.com/mcpsentry/mcpsentry/internal/obs"
)

func TestScan_UnsupportedTransportProducesScanError(t *testing.T) {
	specs := []model.ServerSpec{
		{ClientOrigin: "test", Name: "remote", TransportKind: model.TransportHTTPSSE},
	}
	report := Scan(context.Background(), specs, Options{}, func() []detect.PerServerDetector { return nil })

	require.Len(t, report.Results, 1)
	require.NotEmpty(t, report.Results[0].Error)
	require.Equal(t, 2, report.ExitCode())
}

func TestScan_EmptySpecsYieldsEmptyReport(t *testing.T) {
	report := Scan(context.Background(), nil, Options{}, func() []detect.PerServerDetector { return nil })
	require.Empty(t, report.Results)
	require.Equal(t, 0, report.ExitCode())
}

func TestScan_ObservesPerServerDuration(t *testing.T) {
	m := obs.NewProxyMetrics(prometheus.NewRegistry())
	specs := []model.ServerSpec{
		{ClientOrigin: "test", Name: "remote-a", TransportKind: model.TransportHTTPSSE},
		{ClientOrigin: "test", Name: "remote-b", TransportKind: model.TransportHTTPSSE},
	}

	Scan(context.Background(), specs, Options{Metrics: m}, func() []detect.PerServerDetector { return nil })

	var metric dto.Metric
	require.NoError(t, m.ScanDuration.Write(&metric))
	require.Equal(t, uint64(2), metric.GetHistogram().GetSampleCount())
}
