package discovery

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, dir, filename string, servers map[string]mcpServerJSON) string {
	t.Helper()
	data, err := json.MarshalIndent(mcpConfigJSON{MCPServers: servers}, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestParseConfigFile_ResolvesServerSpecs(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "mcp.json", map[string]mcpServerJSON{
		"filesystem": {Command: "npx", Args: []string{"-y", "@mcp/server-filesystem", "/data"}},
		"database":   {Command: "node", Args: []string{"./db-server.js"}, Env: map[string]string{"DB_URL": "postgres://localhost"}},
	})

	specs := parseConfigFile("cursor", path)
	require.Len(t, specs, 2)

	byName := map[string]struct {
		command string
		env     map[string]string
	}{}
	for _, s := range specs {
		require.Equal(t, "cursor", s.ClientOrigin)
		byName[s.Name] = struct {
			command string
			env     map[string]string
		}{s.Command, s.Environment}
	}
	require.Equal(t, "npx", byName["filesystem"].command)
	require.Equal(t, "postgres://localhost", byName["database"].env["DB_URL"])
}

func TestParseConfigFile_MissingFileReturnsNil(t *testing.T) {
	specs := parseConfigFile("cursor", filepath.Join(t.TempDir(), "missing.json"))
	require.Nil(t, specs)
}

func TestStripJSON5Comments_KeepsStringLiteralsIntact(t *testing.T) {
	input := []byte(`{
  // a line comment
  "url": "http://example.com // not a comment",
  /* block
     comment */
  "name": "ok"
}`)
	cleaned := StripJSON5Comments(input)
	var out map[string]string
	require.NoError(t, json.Unmarshal(cleaned, &out))
	require.Equal(t, "http://example.com // not a comment", out["url"])
	require.Equal(t, "ok", out["name"])
}

func TestWrapClient_RewritesCommandAndWritesBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.json")
	original := `{"mcpServers":{"filesystem":{"command":"npx","args":["-y","pkg"]}}}`
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	n, err := wrapConfigAt(path)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"mcpsentry"`)
	require.Contains(t, string(data), `"proxy"`)

	backup, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	require.Equal(t, original, string(backup))
}
