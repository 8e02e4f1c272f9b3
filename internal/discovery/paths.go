// Package discovery walks known MCP client configuration files and
// resolves them into fully-formed model.ServerSpec values. The scanner and
// proxy never read configuration files themselves; this package delivers
// fully-resolved ServerSpec records to them.
package discovery

import (
	"os"
	"path/filepath"
	"runtime"
)

// Client represents a known MCP client application and the config paths
// where its server list might live.
type Client struct {
	Name  string
	Paths []string
}

// KnownClients returns every supported MCP client application with its
// candidate config paths.
func KnownClients() []Client {
	home, _ := os.UserHomeDir()
	return []Client{
		{Name: "claude-desktop", Paths: claudeDesktopPaths(home)},
		{Name: "cursor", Paths: []string{filepath.Join(home, ".cursor", "mcp.json")}},
		{Name: "vscode", Paths: []string{filepath.Join(home, ".vscode", "mcp.json")}},
		{Name: "cline", Paths: []string{filepath.Join(home, ".cline", "mcp_settings.json")}},
		{Name: "windsurf", Paths: []string{
			filepath.Join(home, ".windsurf", "mcp.json"),
			filepath.Join(home, ".codeium", "windsurf", "mcp_config.json"),
		}},
		{Name: "openclaw", Paths: []string{filepath.Join(home, ".openclaw", "openclaw.json")}},
		{Name: "opencode", Paths: []string{filepath.Join(home, ".config", "opencode", "opencode.json")}},
		{Name: "zed", Paths: []string{filepath.Join(home, ".config", "zed", "settings.json")}},
		{Name: "amp", Paths: []string{filepath.Join(home, ".config", "amp", "settings.json")}},
		{Name: "gemini-cli", Paths: []string{filepath.Join(home, ".gemini", "settings.json")}},
		{Name: "copilot-cli", Paths: []string{filepath.Join(home, ".copilot", "mcp-config.json")}},
		{Name: "amazon-q", Paths: []string{filepath.Join(home, ".aws", "amazonq", "mcp.json")}},
		{Name: "claude-code", Paths: []string{filepath.Join(home, ".claude.json")}},
		{Name: "roo-code", Paths: rooCodePaths(home)},
		{Name: "kilo-code", Paths: kiloCodePaths(home)},
		{Name: "boltai", Paths: boltAIPaths(home)},
		{Name: "jetbrains", Paths: []string{filepath.Join(home, ".junie", "mcp", "mcp.json")}},
	}
}

func claudeDesktopPaths(home string) []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json")}
	case "linux":
		return []string{filepath.Join(home, ".config", "claude", "claude_desktop_config.json")}
	case "windows":
		return []string{filepath.Join(appData(home), "Claude", "claude_desktop_config.json")}
	default:
		return nil
	}
}

func rooCodePaths(home string) []string {
	const vendorDir = "rooveterinaryinc.roo-cline"
	return vsCodeExtensionPaths(home, vendorDir)
}

func kiloCodePaths(home string) []string {
	const vendorDir = "kilocode.kilo-code"
	return vsCodeExtensionPaths(home, vendorDir)
}

func vsCodeExtensionPaths(home, vendorDir string) []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{filepath.Join(home, "Library", "Application Support", "Code", "User", "globalStorage", vendorDir, "settings", "mcp_settings.json")}
	case "linux":
		return []string{filepath.Join(home, ".config", "Code", "User", "globalStorage", vendorDir, "settings", "mcp_settings.json")}
	case "windows":
		return []string{filepath.Join(appData(home), "Code", "User", "globalStorage", vendorDir, "settings", "mcp_settings.json")}
	default:
		return nil
	}
}

func boltAIPaths(home string) []string {
	if runtime.GOOS == "darwin" {
		return []string{filepath.Join(home, ".boltai", "mcp.json")}
	}
	return nil
}

func appData(home string) string {
	if v := os.Getenv("APPDATA"); v != "" {
		return v
	}
	return filepath.Join(home, "AppData", "Roaming")
}
