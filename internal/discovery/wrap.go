package discovery

import (
	"encoding/json"
	"fmt"
	"os"
)

// WrapClient rewrites a client's MCP server commands to route through
// "mcpsentry proxy --server <name> --", backing up the original config to
// "<path>.bak" first.
func WrapClient(clientName string) (wrapped int, err error) {
	path := configPathFor(clientName)
	if path == "" {
		return 0, fmt.Errorf("no config found for client %q", clientName)
	}
	return wrapConfigAt(path)
}

// wrapConfigAt does the actual rewrite once a config path is known,
// separated from WrapClient so it can be exercised directly in tests
// without touching real per-client config locations.
func wrapConfigAt(path string) (wrapped int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading config: %w", err)
	}
	if err := os.WriteFile(path+".bak", data, 0o644); err != nil {
		return 0, fmt.Errorf("writing backup: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, fmt.Errorf("parsing config: %w", err)
	}
	serversRaw, ok := raw["mcpServers"]
	if !ok {
		return 0, fmt.Errorf("no mcpServers key in %s", path)
	}
	var servers map[string]mcpServerJSON
	if err := json.Unmarshal(serversRaw, &servers); err != nil {
		return 0, fmt.Errorf("parsing mcpServers: %w", err)
	}

	for name, srv := range servers {
		if srv.Command == "mcpsentry" {
			continue
		}
		newArgs := append([]string{"proxy", "--server", name, "--", srv.Command}, srv.Args...)
		srv.Command = "mcpsentry"
		srv.Args = newArgs
		servers[name] = srv
		wrapped++
	}

	serversJSON, err := json.MarshalIndent(servers, "  ", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshaling servers: %w", err)
	}
	raw["mcpServers"] = serversJSON

	out, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
		return 0, fmt.Errorf("writing config: %w", err)
	}
	return wrapped, nil
}

// UnwrapClient restores a client's MCP config from the ".bak" backup
// WrapClient wrote.
func UnwrapClient(clientName string) error {
	path := configPathFor(clientName)
	if path == "" {
		return fmt.Errorf("no config found for client %q", clientName)
	}
	backup := path + ".bak"
	data, err := os.ReadFile(backup)
	if err != nil {
		return fmt.Errorf("no backup found at %s, nothing to restore", backup)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("restoring config: %w", err)
	}
	return os.Remove(backup)
}

func configPathFor(clientName string) string {
	for _, c := range KnownClients() {
		if c.Name != clientName {
			continue
		}
		for _, p := range c.Paths {
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}
