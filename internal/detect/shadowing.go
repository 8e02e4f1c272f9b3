package detect

import (
	"fmt"

	"github.com/mcpsentry/mcpsentry/internal/model"
)

// serverTools is the minimal view Shadowing needs from a scan result.
type serverTools struct {
	Server string
	Tools  []model.ToolInfo
}

// Shadowing runs the cross-server tool-shadowing pass: for every pair of
// servers, exact tool-name equality is High on both sides,
// and Damerau-Levenshtein distance <= 2 (names >= 4 chars) is Medium. A
// single-server scan yields nothing, since this detector needs at least
// two servers to compare. Results are keyed by server name so the caller
// can merge them into each server's ScanResult.
func Shadowing(results []model.ScanResult) map[string][]model.Threat {
	out := make(map[string][]model.Threat)
	if len(results) < 2 {
		return out
	}

	servers := make([]serverTools, 0, len(results))
	for _, r := range results {
		servers = append(servers, serverTools{Server: r.Server.Name, Tools: r.Tools})
	}

	for i := 0; i < len(servers); i++ {
		for j := i + 1; j < len(servers); j++ {
			a, b := servers[i], servers[j]
			for _, ta := range a.Tools {
				for _, tb := range b.Tools {
					if ta.Name == tb.Name {
						out[a.Server] = append(out[a.Server], shadowThreat(a.Server, ta.Name, b.Server, model.SeverityHigh, "exact"))
						out[b.Server] = append(out[b.Server], shadowThreat(b.Server, tb.Name, a.Server, model.SeverityHigh, "exact"))
						continue
					}
					if len(ta.Name) >= 4 && len(tb.Name) >= 4 {
						if d := damerauLevenshtein(ta.Name, tb.Name); d <= 2 {
							out[a.Server] = append(out[a.Server], shadowThreat(a.Server, ta.Name, b.Server, model.SeverityMedium, "fuzzy"))
							out[b.Server] = append(out[b.Server], shadowThreat(b.Server, tb.Name, a.Server, model.SeverityMedium, "fuzzy"))
						}
					}
				}
			}
		}
	}
	return out
}

func shadowThreat(server, tool, otherServer string, sev model.Severity, kind string) model.Threat {
	return model.Threat{
		ID:       fmt.Sprintf("shadowing:%s:%s:%s:%s", server, tool, otherServer, kind),
		Category: model.CategoryToolShadowing,
		Severity: sev,
		Title:    "Tool name collides with another server's tool",
		Message:  fmt.Sprintf("tool %q on %q %s-collides with a tool on %q", tool, server, kind, otherServer),
		Evidence: map[string]string{
			"tool":         tool,
			"server":       server,
			"other_server": otherServer,
			"match_kind":   kind,
		},
		Remediation: "Rename one of the tools, or pin the calling client to an explicit server for this tool.",
	}
}

// damerauLevenshtein computes the Damerau-Levenshtein edit distance
// (insertions, deletions, substitutions, and adjacent transpositions)
// between a and b, operating on runes.
func damerauLevenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	// d[i][j] = distance between ra[:i] and rb[:j]
	d := make([][]int, la+1)
	for i := range d {
		d[i] = make([]int, lb+1)
		d[i][0] = i
	}
	for j := 0; j <= lb; j++ {
		d[0][j] = j
	}

	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := d[i-1][j] + 1
			ins := d[i][j-1] + 1
			sub := d[i-1][j-1] + cost
			best := min3(del, ins, sub)
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				if t := d[i-2][j-2] + cost; t < best {
					best = t
				}
			}
			d[i][j] = best
		}
	}
	return d[la][lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
