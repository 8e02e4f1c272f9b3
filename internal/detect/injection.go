package detect

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/mcpsentry/mcpsentry/internal/model"
)

// injectionPattern is one named regex in the instruction-override family.
type injectionPattern struct {
	id string
	re *regexp.Regexp
}

var injectionPatterns = []injectionPattern{
	{"inj.ignore_previous", regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts)`)},
	{"inj.disregard_above", regexp.MustCompile(`(?i)disregard\s+the\s+above`)},
	{"inj.forget_everything", regexp.MustCompile(`(?i)forget\s+everything`)},
}

var literalTagPatterns = []injectionPattern{
	{"inj.tag_system", regexp.MustCompile(`(?i)<system>`)},
	{"inj.tag_system_bracket", regexp.MustCompile(`(?i)\[system\]`)},
	{"inj.tag_system_heading", regexp.MustCompile(`(?i)###\s*system`)},
}

// zeroWidthBidiRunes are the zero-width and bidi-override code points that
// flag a possible hidden-instruction payload: U+200B-U+200D, U+FEFF, and
// the bidi override block U+202A-U+202E.
var zeroWidthBidiRunes = map[rune]string{
	'\u200b': "inj.zero_width_space",
	'\u200c': "inj.zero_width_non_joiner",
	'\u200d': "inj.zero_width_joiner",
	'\ufeff': "inj.bom",
	'\u202a': "inj.bidi_override",
	'\u202b': "inj.bidi_override",
	'\u202c': "inj.bidi_override",
	'\u202d': "inj.bidi_override",
	'\u202e': "inj.bidi_override",
}

var base64Run = regexp.MustCompile(`[A-Za-z0-9+/]{40,}={1,2}`)

const maxDescriptionBytes = 4000

// DetectInjection flags tool descriptions carrying prompt-injection
// payloads: instruction-override phrasing, fake system tags, hidden
// zero-width/bidi code points, long =-padded base64 runs, or an oversized
// body.
func DetectInjection(spec model.ServerSpec, tools []model.ToolInfo, _ []model.ResourceInfo) []model.Threat {
	var threats []model.Threat
	for _, tool := range tools {
		desc := tool.Description

		for _, p := range injectionPatterns {
			if loc := p.re.FindStringIndex(desc); loc != nil {
				threats = append(threats, injectionThreat(tool.Name, p.id, model.SeverityCritical, desc[loc[0]:loc[1]], loc[0]))
			}
		}
		for _, p := range literalTagPatterns {
			if loc := p.re.FindStringIndex(desc); loc != nil {
				threats = append(threats, injectionThreat(tool.Name, p.id, model.SeverityCritical, desc[loc[0]:loc[1]], loc[0]))
			}
		}
		for i, r := range desc {
			if id, ok := zeroWidthBidiRunes[r]; ok {
				threats = append(threats, injectionThreat(tool.Name, id, model.SeverityCritical, string(r), i))
				break // one hit is enough to flag this family per tool
			}
		}
		if loc := base64Run.FindStringIndex(desc); loc != nil {
			candidate := desc[loc[0]:loc[1]]
			if _, err := base64.StdEncoding.DecodeString(padBase64(candidate)); err == nil {
				threats = append(threats, injectionThreat(tool.Name, "inj.base64_payload", model.SeverityHigh, candidate, loc[0]))
			}
		}
		if len(desc) > maxDescriptionBytes {
			threats = append(threats, injectionThreat(tool.Name, "inj.oversized_description", model.SeverityHigh,
				fmt.Sprintf("%d bytes", len(desc)), maxDescriptionBytes))
		}
	}
	return threats
}

func padBase64(s string) string {
	if strings.HasSuffix(s, "=") {
		return s
	}
	switch len(s) % 4 {
	case 2:
		return s + "=="
	case 3:
		return s + "="
	default:
		return s
	}
}

func injectionThreat(tool, patternID string, sev model.Severity, match string, offset int) model.Threat {
	return model.Threat{
		ID:       fmt.Sprintf("injection:%s:%s", tool, patternID),
		Category: model.CategoryDescriptionInjection,
		Severity: sev,
		Title:    "Possible prompt injection in tool description",
		Message:  fmt.Sprintf("tool %q description matched pattern %q", tool, patternID),
		Evidence: map[string]string{
			"pattern": patternID,
			"match":   match,
			"offset":  fmt.Sprintf("%d", offset),
			"tool":    tool,
		},
		Remediation: "Review the tool description for embedded instructions aimed at the calling model and remove them.",
	}
}
