package detect

import (
	"fmt"
	"time"

	"github.com/mcpsentry/mcpsentry/internal/model"
	"github.com/mcpsentry/mcpsentry/internal/snapshot"
)

// DriftDetector is the one detector permitted I/O: it reads the prior
// snapshot for a server, diffs today's tool surface against it, and
// atomically writes the new snapshot.
type DriftDetector struct {
	store *snapshot.Store
}

// NewDriftDetector returns a drift detector backed by store.
func NewDriftDetector(store *snapshot.Store) *DriftDetector {
	return &DriftDetector{store: store}
}

func (d *DriftDetector) Name() string { return "description_drift" }

// Detect computes (description_digest, schema_digest) for every tool,
// loads the prior snapshot for (client_origin, name), diffs, and writes
// the new snapshot. A snapshot I/O failure is recorded as an Info-severity
// DRIFT-UNAVAILABLE threat rather than aborting the scan.
func (d *DriftDetector) Detect(spec model.ServerSpec, tools []model.ToolInfo, _ []model.ResourceInfo) []model.Threat {
	current := make(map[string]model.ToolDigest, len(tools))
	for _, t := range tools {
		current[t.Name] = model.ToolDigest{
			DescriptionDigest: snapshot.Digest(t.Description),
			SchemaDigest:      snapshot.Digest(string(t.InputSchema)),
		}
	}

	prior, err := d.store.Load(spec.ClientOrigin, spec.Name)
	if err != nil {
		return []model.Threat{{
			ID:       fmt.Sprintf("drift-unavailable:%s", spec.Name),
			Category: model.CategoryDescriptionDrift,
			Severity: model.SeverityInfo,
			Title:    "DRIFT-UNAVAILABLE",
			Message:  fmt.Sprintf("could not load prior snapshot for %q: %v", spec.Name, err),
		}}
	}

	var threats []model.Threat
	priorTools := map[string]model.ToolDigest{}
	if prior != nil {
		priorTools = prior.Tools
	}

	for name, cur := range current {
		old, existed := priorTools[name]
		switch {
		case !existed:
			threats = append(threats, driftThreat(spec.Name, name, model.SeverityMedium, "added", nil))
		case old.DescriptionDigest != cur.DescriptionDigest:
			threats = append(threats, driftThreat(spec.Name, name, model.SeverityHigh, "modified", map[string]string{
				"old": old.DescriptionDigest,
				"new": cur.DescriptionDigest,
			}))
		}
	}
	for name := range priorTools {
		if _, stillPresent := current[name]; !stillPresent {
			threats = append(threats, driftThreat(spec.Name, name, model.SeverityLow, "removed", nil))
		}
	}

	newSnap := model.Snapshot{CapturedAt: time.Now().UTC(), Tools: current}
	if err := d.store.Save(spec.ClientOrigin, spec.Name, newSnap); err != nil {
		threats = append(threats, model.Threat{
			ID:       fmt.Sprintf("drift-unavailable:%s:write", spec.Name),
			Category: model.CategoryDescriptionDrift,
			Severity: model.SeverityInfo,
			Title:    "DRIFT-UNAVAILABLE",
			Message:  fmt.Sprintf("could not write snapshot for %q: %v", spec.Name, err),
		})
	}

	return threats
}

func driftThreat(server, tool string, sev model.Severity, subtype string, extra map[string]string) model.Threat {
	evidence := map[string]string{"tool": tool, "subtype": subtype}
	for k, v := range extra {
		evidence[k] = v
	}
	return model.Threat{
		ID:          fmt.Sprintf("drift:%s:%s:%s", server, tool, subtype),
		Category:    model.CategoryDescriptionDrift,
		Severity:    sev,
		Title:       "Tool description or schema changed",
		Message:     fmt.Sprintf("tool %q on %q: %s", tool, server, subtype),
		Evidence:    evidence,
		Remediation: "Review the tool's new description/schema before trusting it in an automated workflow.",
	}
}
