package report

import (
	"encoding/json"
	"fmt"

	"github.com/mcpsentry/mcpsentry/internal/model"
)

// SARIF v2.1.0 types, minimal subset: each Threat becomes a result with a
// ruleId, level, and a logical location naming the server.

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	InformationURI string      `json:"informationUri"`
	Version        string      `json:"version"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string             `json:"id"`
	ShortDescription sarifMessage       `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig `json:"defaultConfiguration"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations"`
}

type sarifLocation struct {
	LogicalLocations []sarifLogicalLocation `json:"logicalLocations"`
}

type sarifLogicalLocation struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

// severityToSARIFLevel maps Severity to a SARIF level: Critical,High ->
// error; Medium -> warning; Low,Info -> note.
func severityToSARIFLevel(s model.Severity) string {
	switch {
	case s >= model.SeverityHigh:
		return "error"
	case s == model.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}

// ToSARIF renders r as a SARIF 2.1.0 log: each Threat becomes a result
// with ruleId = Threat.ID, a mapped level, and a location naming the
// server it was found on.
func ToSARIF(r model.Report, toolVersion string) ([]byte, error) {
	ruleIndex := map[string]int{}
	var rules []sarifRule
	var results []sarifResult

	for _, sr := range r.Results {
		for _, t := range sr.Threats {
			if _, exists := ruleIndex[t.ID]; !exists {
				ruleIndex[t.ID] = len(rules)
				rules = append(rules, sarifRule{
					ID:               t.ID,
					ShortDescription: sarifMessage{Text: t.Title},
					DefaultConfig:    sarifDefaultConfig{Level: severityToSARIFLevel(t.Severity)},
				})
			}
			results = append(results, sarifResult{
				RuleID: t.ID,
				Level:  severityToSARIFLevel(t.Severity),
				Message: sarifMessage{
					Text: fmt.Sprintf("%s: %s", t.Title, t.Message),
				},
				Locations: []sarifLocation{{
					LogicalLocations: []sarifLogicalLocation{{Name: sr.Server.Name, Kind: "module"}},
				}},
			})
		}
	}

	log := sarifLog{
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json",
		Version: "2.1.0",
		Runs: []sarifRun{{
			Tool: sarifTool{
				Driver: sarifDriver{
					Name:           "mcpsentry",
					InformationURI: "https://github.com/mcpsentry/mcpsentry",
					Version:        toolVersion,
					Rules:          rules,
				},
			},
			Results: results,
		}},
	}

	return json.MarshalIndent(log, "", "  ")
}
