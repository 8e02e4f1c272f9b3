// Package report serializes a scan Report into the two stable formats
// CLI/CI consumers rely on: a plain JSON document and a SARIF 2.1.0
// document.
package report

import (
	"encoding/json"

	"github.com/mcpsentry/mcpsentry/internal/model"
)

// jsonReport mirrors model.Report's serialized shape: a top-level
// "results" array matching ScanResult.
type jsonReport struct {
	Results []jsonScanResult `json:"results"`
}

type jsonScanResult struct {
	Server    jsonServer     `json:"server"`
	Tools     []jsonTool     `json:"tools"`
	Resources []jsonResource `json:"resources"`
	Threats   []jsonThreat   `json:"threats"`
	Error     string         `json:"error,omitempty"`
	ElapsedMs int64          `json:"elapsed_ms"`
}

// jsonServer deliberately omits ServerSpec.Environment: env maps can carry
// secrets and the report is meant to be shared.
type jsonServer struct {
	ClientOrigin  string   `json:"client_origin"`
	Name          string   `json:"name"`
	Command       string   `json:"command"`
	Args          []string `json:"args,omitempty"`
	TransportKind string   `json:"transport_kind"`
}

type jsonTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type jsonResource struct {
	URI      string `json:"uri"`
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

type jsonThreat struct {
	ID          string            `json:"id"`
	Category    model.Category    `json:"category"`
	Severity    string            `json:"severity"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Evidence    map[string]string `json:"evidence,omitempty"`
	Remediation string            `json:"remediation,omitempty"`
}

// ToJSON renders r as the plain JSON report document.
func ToJSON(r model.Report) ([]byte, error) {
	out := jsonReport{Results: make([]jsonScanResult, len(r.Results))}
	for i, sr := range r.Results {
		out.Results[i] = jsonScanResult{
			Server: jsonServer{
				ClientOrigin:  sr.Server.ClientOrigin,
				Name:          sr.Server.Name,
				Command:       sr.Server.Command,
				Args:          sr.Server.Args,
				TransportKind: string(sr.Server.TransportKind),
			},
			Tools:     toJSONTools(sr.Tools),
			Resources: toJSONResources(sr.Resources),
			Threats:   toJSONThreats(sr.Threats),
			Error:     sr.Error,
			ElapsedMs: sr.ElapsedMs,
		}
	}
	return json.MarshalIndent(out, "", "  ")
}

func toJSONThreats(threats []model.Threat) []jsonThreat {
	out := make([]jsonThreat, len(threats))
	for i, t := range threats {
		out[i] = jsonThreat{
			ID:          t.ID,
			Category:    t.Category,
			Severity:    t.Severity.String(),
			Title:       t.Title,
			Message:     t.Message,
			Evidence:    t.Evidence,
			Remediation: t.Remediation,
		}
	}
	return out
}

func toJSONTools(tools []model.ToolInfo) []jsonTool {
	out := make([]jsonTool, len(tools))
	for i, t := range tools {
		out[i] = jsonTool{Name: t.Name, Description: t.Description, InputSchema: json.RawMessage(t.InputSchema)}
	}
	return out
}

func toJSONResources(resources []model.ResourceInfo) []jsonResource {
	out := make([]jsonResource, len(resources))
	for i, r := range resources {
		out[i] = jsonResource{URI: r.URI, Name: r.Name, MIMEType: r.MIMEType}
	}
	return out
}
