// Deep-scan supplement: wraps github.com/garagon/aguara's rule engine as
// an additional detector layered alongside the fixed-pattern
// description-injection and permission-scope detectors. Aguara's Finding
// type carries neither a stable cross-install pattern id nor a byte
// offset, so it cannot replace those two; it is used for what it is suited
// for: a second, independent opinion from a broader, rule-packed content
// scanner, catching phrasing and credential formats the fixed pattern set
// does not enumerate.
package detect

import (
	"context"
	"fmt"

	"github.com/garagon/aguara"

	"github.com/mcpsentry/mcpsentry/internal/model"
)

// DeepScanner runs aguara's built-in rule set against each tool's
// description and stringified input schema. No aguara.WithCustomRules
// directory is configured; only aguara's built-in rules run, which keeps
// this detector a pure in-memory call with no filesystem I/O of its own.
type DeepScanner struct{}

// NewDeepScanner returns a detector backed by aguara's built-in rules.
func NewDeepScanner() *DeepScanner { return &DeepScanner{} }

func (d *DeepScanner) Name() string { return "deep_content_scan" }

// Detect scans each tool's description and input schema through aguara,
// folding its Critical/High/Medium severities into model.Severity.
func (d *DeepScanner) Detect(spec model.ServerSpec, tools []model.ToolInfo, _ []model.ResourceInfo) []model.Threat {
	var threats []model.Threat
	for _, tool := range tools {
		content := tool.Description + "\n" + string(tool.InputSchema)
		if tool.Description == "" && len(tool.InputSchema) == 0 {
			continue
		}

		result, err := aguara.ScanContent(context.Background(), content, tool.Name+".md")
		if err != nil {
			continue // best-effort supplementary scan; the fixed-pattern detectors remain authoritative
		}

		for _, f := range result.Findings {
			threats = append(threats, model.Threat{
				ID:       fmt.Sprintf("deepscan:%s:%s:%s", spec.Name, tool.Name, f.RuleID),
				Category: deepScanCategory(f.Category),
				Severity: deepScanSeverity(f.Severity),
				Title:    fmt.Sprintf("Content scan rule %s matched", f.RuleID),
				Message:  fmt.Sprintf("tool %q matched aguara rule %q (%s)", tool.Name, f.RuleID, f.RuleName),
				Evidence: map[string]string{
					"source":   "aguara",
					"rule_id":  f.RuleID,
					"category": f.Category,
					"match":    f.MatchedText,
					"tool":     tool.Name,
				},
				Remediation: "Review the tool description/schema against the matched content-scan rule before trusting it.",
			})
		}
	}
	return threats
}

// deepScanCategory maps an aguara finding's free-form category onto the
// closed Category set; credential-shaped findings join the
// permission-scope "credentials" family, everything else is treated as a
// description-injection signal.
func deepScanCategory(aguaraCategory string) model.Category {
	switch aguaraCategory {
	case "credential", "credentials", "secret":
		return model.CategoryPermissionScope
	default:
		return model.CategoryDescriptionInjection
	}
}

func deepScanSeverity(s aguara.Severity) model.Severity {
	switch {
	case s >= aguara.SeverityCritical:
		return model.SeverityCritical
	case s >= aguara.SeverityHigh:
		return model.SeverityHigh
	case s >= aguara.SeverityMedium:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}
