package discovery

import (
	"encoding/json"
	"os"

	"github.com/mcpsentry/mcpsentry/internal/model"
)

// openClawConfig is the JSON5 configuration shape OpenClaw installs use;
// agents and channels are each surfaced as a pseudo MCP server so the
// scanner and proxy can treat them uniformly with every other client's
// entries. The gateway section is parsed but produces no ServerSpec.
type openClawConfig struct {
	Gateway  ocGateway          `json:"gateway"`
	Agents   map[string]ocAgent `json:"agents"`
	Channels map[string]any     `json:"channels"`
}

type ocGateway struct {
	Bind string `json:"bind"`
}

type ocAgent struct {
	Sandbox bool `json:"sandbox"`
}

func openClawSpecs(path string) []model.ServerSpec {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	clean := StripJSON5Comments(data)

	var cfg openClawConfig
	if err := json.Unmarshal(clean, &cfg); err != nil {
		return nil
	}

	var specs []model.ServerSpec
	for name := range cfg.Agents {
		specs = append(specs, model.ServerSpec{
			ClientOrigin:  "openclaw",
			Name:          name,
			Command:       "openclaw",
			Args:          []string{"agent", name},
			TransportKind: model.TransportStdio,
		})
	}
	for name := range cfg.Channels {
		specs = append(specs, model.ServerSpec{
			ClientOrigin:  "openclaw",
			Name:          "channel-" + name,
			Command:       "openclaw",
			Args:          []string{"channel", name},
			TransportKind: model.TransportStdio,
		})
	}
	return specs
}

// StripJSON5Comments removes // and /* */ comments from JSON5 data,
// leaving string literals untouched, so encoding/json can parse the
// result.
func StripJSON5Comments(data []byte) []byte {
	var out []byte
	i, n := 0, len(data)

	for i < n {
		if data[i] == '"' {
			out = append(out, data[i])
			i++
			for i < n {
				if data[i] == '\\' && i+1 < n {
					out = append(out, data[i], data[i+1])
					i += 2
					continue
				}
				out = append(out, data[i])
				if data[i] == '"' {
					i++
					break
				}
				i++
			}
			continue
		}
		if i+1 < n && data[i] == '/' && data[i+1] == '/' {
			i += 2
			for i < n && data[i] != '\n' {
				i++
			}
			continue
		}
		if i+1 < n && data[i] == '/' && data[i+1] == '*' {
			i += 2
			for i+1 < n && !(data[i] == '*' && data[i+1] == '/') {
				i++
			}
			i += 2
			continue
		}
		out = append(out, data[i])
		i++
	}
	return out
}
