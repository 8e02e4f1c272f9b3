// Package detect implements the detector framework and the threat
// detectors. A PerServerDetector is a pure function
// (ServerSpec, tools, resources) -> []Threat; the framework concatenates
// every detector's output and deduplicates by Threat.ID, in a fixed order
// for reproducibility. Detectors are an explicit ordered list of
// first-class values, not a runtime registry.
package detect

import (
	"github.com/mcpsentry/mcpsentry/internal/model"
)

// PerServerDetector evaluates one server in isolation. Implementations
// must not perform I/O, except the drift detector, which reads/writes the
// snapshot store.
type PerServerDetector interface {
	Name() string
	Detect(spec model.ServerSpec, tools []model.ToolInfo, resources []model.ResourceInfo) []model.Threat
}

// DetectorFunc adapts a plain function to PerServerDetector.
type DetectorFunc struct {
	NameStr string
	Fn      func(model.ServerSpec, []model.ToolInfo, []model.ResourceInfo) []model.Threat
}

func (d DetectorFunc) Name() string { return d.NameStr }
func (d DetectorFunc) Detect(spec model.ServerSpec, tools []model.ToolInfo, resources []model.ResourceInfo) []model.Threat {
	return d.Fn(spec, tools, resources)
}

// StandardDetectors returns the fixed, ordered set of per-server detectors:
// injection, permission-scope, no-auth, the aguara-backed deep content
// scan, then drift (which needs the snapshot store and is constructed
// separately, see drift.go). Tool shadowing is cross-server and run
// separately by the orchestrator.
func StandardDetectors(drift PerServerDetector) []PerServerDetector {
	ds := []PerServerDetector{
		DetectorFunc{NameStr: "description_injection", Fn: DetectInjection},
		DetectorFunc{NameStr: "permission_scope", Fn: DetectPermissionScope},
		DetectorFunc{NameStr: "no_auth", Fn: DetectNoAuth},
		NewDeepScanner(),
	}
	if drift != nil {
		ds = append(ds, drift)
	}
	return ds
}

// Run executes every detector over (spec, tools, resources) in order and
// returns the deduplicated union of their threats.
func Run(detectors []PerServerDetector, spec model.ServerSpec, tools []model.ToolInfo, resources []model.ResourceInfo) []model.Threat {
	return MergeThreats(nil, collect(detectors, spec, tools, resources))
}

func collect(detectors []PerServerDetector, spec model.ServerSpec, tools []model.ToolInfo, resources []model.ResourceInfo) []model.Threat {
	var out []model.Threat
	for _, d := range detectors {
		out = append(out, d.Detect(spec, tools, resources)...)
	}
	return out
}

// MergeThreats appends extra to base, deduplicating by Threat.ID. Used
// both by Run and by the orchestrator folding in the cross-server
// shadowing pass's results.
func MergeThreats(base, extra []model.Threat) []model.Threat {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]model.Threat, 0, len(base)+len(extra))
	for _, t := range base {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	for _, t := range extra {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}
