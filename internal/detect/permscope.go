package detect

import (
	"fmt"
	"strings"

	"github.com/mcpsentry/mcpsentry/internal/model"
)

// permFamily is one keyword family scanned for in a tool's description and
// stringified input schema.
type permFamily struct {
	id       string
	keywords []string
	severity model.Severity
}

var permFamilies = []permFamily{
	{"execution", []string{"execute", "exec", "shell", "eval", "spawn", "run command"}, model.SeverityHigh},
	{"filesystem_root", []string{"/", `c:\`, "~"}, model.SeverityHigh},
	{"network", []string{"any url", "fetch url", "arbitrary http"}, model.SeverityMedium},
	{"raw_query", []string{"raw sql", "execute query"}, model.SeverityHigh},
	{"credentials", []string{"password", "secret", "api key"}, model.SeverityMedium},
}

// DetectPermissionScope scans each tool's description and stringified
// input_schema for keyword families suggesting an overly broad capability.
// The first hit per family per tool emits one threat.
func DetectPermissionScope(spec model.ServerSpec, tools []model.ToolInfo, _ []model.ResourceInfo) []model.Threat {
	var threats []model.Threat
	for _, tool := range tools {
		haystack := tool.Description + " " + string(tool.InputSchema)
		lower := strings.ToLower(haystack)
		for _, fam := range permFamilies {
			for _, kw := range fam.keywords {
				if strings.Contains(lower, strings.ToLower(kw)) {
					threats = append(threats, model.Threat{
						ID:       fmt.Sprintf("permscope:%s:%s", tool.Name, fam.id),
						Category: model.CategoryPermissionScope,
						Severity: fam.severity,
						Title:    "Tool claims broad permission scope",
						Message:  fmt.Sprintf("tool %q references %s capability (%q)", tool.Name, fam.id, kw),
						Evidence: map[string]string{
							"family":  fam.id,
							"keyword": kw,
							"tool":    tool.Name,
						},
						Remediation: "Confirm the tool genuinely requires this capability and scope it as narrowly as possible.",
					})
					break
				}
			}
		}
	}
	return threats
}
