package detect

import (
	"fmt"
	"regexp"

	"github.com/mcpsentry/mcpsentry/internal/model"
)

var authKeyPattern = regexp.MustCompile(`(?i)(token|key|secret|auth|password|bearer)`)

// DetectNoAuth reads ServerSpec.environment keys. If any key looks like an
// auth-related secret, the server is considered authenticated. Otherwise
// an http_sse server is Critical (exposed without credentials) and a
// stdio server is merely Info (its trust boundary is the local process
// spawn, not the network).
func DetectNoAuth(spec model.ServerSpec, _ []model.ToolInfo, _ []model.ResourceInfo) []model.Threat {
	for key := range spec.Environment {
		if authKeyPattern.MatchString(key) {
			return nil
		}
	}

	sev := model.SeverityInfo
	if spec.TransportKind == model.TransportHTTPSSE {
		sev = model.SeverityCritical
	}

	return []model.Threat{{
		ID:       fmt.Sprintf("noauth:%s", spec.Name),
		Category: model.CategoryNoAuth,
		Severity: sev,
		Title:    "No authentication configured",
		Message:  fmt.Sprintf("server %q exposes no environment variable matching an auth key pattern", spec.Name),
		Evidence: map[string]string{
			"server":         spec.Name,
			"transport_kind": string(spec.TransportKind),
		},
		Remediation: "Configure an authentication token for this server, especially if it is reachable over the network.",
	}}
}
