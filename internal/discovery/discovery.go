package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mcpsentry/mcpsentry/internal/model"
)

// mcpConfigJSON is the common shape of an MCP client config file: a map
// from server name to its launch command.
type mcpConfigJSON struct {
	MCPServers map[string]mcpServerJSON `json:"mcpServers"`
	Servers    map[string]mcpServerJSON `json:"servers"`         // vscode native key
	ContextSrv map[string]mcpServerJSON `json:"context_servers"` // zed's key
}

type mcpServerJSON struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

// Discover walks every known MCP client's config paths and returns the
// fully-resolved ServerSpec set the scanner or proxy operates on. A config
// file that is missing or fails to parse is silently skipped.
func Discover() []model.ServerSpec {
	var specs []model.ServerSpec
	for _, client := range KnownClients() {
		for _, path := range client.Paths {
			if client.Name == "openclaw" {
				specs = append(specs, openClawSpecs(path)...)
				continue
			}
			specs = append(specs, parseConfigFile(client.Name, path)...)
		}
	}
	return specs
}

func parseConfigFile(clientOrigin, path string) []model.ServerSpec {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var cfg mcpConfigJSON
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil
	}

	servers := cfg.MCPServers
	if len(servers) == 0 {
		servers = cfg.Servers
	}
	if len(servers) == 0 {
		servers = cfg.ContextSrv
	}

	specs := make([]model.ServerSpec, 0, len(servers))
	for name, srv := range servers {
		specs = append(specs, model.ServerSpec{
			ClientOrigin:  clientOrigin,
			Name:          name,
			Command:       srv.Command,
			Args:          srv.Args,
			Environment:   srv.Env,
			TransportKind: model.TransportStdio,
		})
	}
	return specs
}

// FormatTree renders a human-readable tree of discovered servers, grouped
// by client origin.
func FormatTree(specs []model.ServerSpec) string {
	if len(specs) == 0 {
		return "No MCP server configurations found.\n"
	}

	byOrigin := map[string][]model.ServerSpec{}
	var origins []string
	for _, s := range specs {
		if _, seen := byOrigin[s.ClientOrigin]; !seen {
			origins = append(origins, s.ClientOrigin)
		}
		byOrigin[s.ClientOrigin] = append(byOrigin[s.ClientOrigin], s)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d MCP server(s) across %d client(s):\n\n", len(specs), len(origins))
	for _, origin := range origins {
		fmt.Fprintf(&b, "  %s\n", origin)
		group := byOrigin[origin]
		for i, s := range group {
			prefix := "├──"
			if i == len(group)-1 {
				prefix = "└──"
			}
			cmd := s.Command
			if len(s.Args) > 0 {
				cmd += " " + strings.Join(s.Args, " ")
			}
			fmt.Fprintf(&b, "    %s %-20s %s\n", prefix, s.Name, cmd)
		}
		b.WriteString("\n")
	}
	return b.String()
}
