package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
	return path
}

// scriptRegistry writes a registry with one script tool echoing a fixed result.
func scriptRegistry(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	script := writeFile(t, dir, "echo.sh", "#!/bin/sh\ncat >/dev/null\necho '{\"rows\":[1,2]}'\n", 0o755)
	return writeFile(t, dir, "registry.yaml", `
backends:
  - name: local
    type: script
    command: `+script+`
tools:
  - name: list_rows
    backend: local
    type: script
    description: lists rows
`, 0o644)
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestValidateCommand(t *testing.T) {
	path := scriptRegistry(t)

	out, _, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "registry OK: 1 tools")
	assert.Contains(t, out, "list_rows -> local (script)")
}

func TestValidateCommand_Invalid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "registry.yaml", "tools: []\n", 0o644)

	_, _, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backends")
}

func TestCallCommand_Success(t *testing.T) {
	path := scriptRegistry(t)

	out, _, err := execute(t, "call", "list_rows", "--registry", path, "--args", `{"limit":2}`)
	require.NoError(t, err)

	var result struct {
		Success bool            `json:"success"`
		Status  int             `json:"status"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 200, result.Status)
	assert.JSONEq(t, `{"rows":[1,2]}`, string(result.Data))
}

func TestCallCommand_UnknownTool(t *testing.T) {
	path := scriptRegistry(t)

	out, _, err := execute(t, "call", "missing", "--registry", path)
	require.Error(t, err)

	var failure *errCallFailed
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 404, failure.status)
	assert.Contains(t, out, `"success": false`)
}

func TestCallCommand_InvalidArgs(t *testing.T) {
	path := scriptRegistry(t)

	_, _, err := execute(t, "call", "list_rows", "--registry", path, "--args", "{not json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--args")
}

func TestCallCommand_NoRegistry(t *testing.T) {
	t.Setenv("TOOLGATE_REGISTRY", "")

	_, _, err := execute(t, "call", "list_rows")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no registry configured")
}

func TestAuditCommand_ReadsRecordedCalls(t *testing.T) {
	path := scriptRegistry(t)
	db := filepath.Join(t.TempDir(), "audit.db")
	t.Setenv("TOOLGATE_AUDIT_SQLITE", db)

	_, _, err := execute(t, "call", "list_rows", "--registry", path, "--request-id", "req-1",
		"-H", "Authorization: Bearer secret")
	require.NoError(t, err)

	out, _, err := execute(t, "audit", "--db", db, "--json")
	require.NoError(t, err)

	var event struct {
		RequestID string            `json:"request_id"`
		ToolName  string            `json:"tool_name"`
		Headers   map[string]string `json:"headers"`
		Success   bool              `json:"success"`
	}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace([]byte(out)), &event))
	assert.Equal(t, "req-1", event.RequestID)
	assert.Equal(t, "list_rows", event.ToolName)
	assert.Equal(t, "REDACTED", event.Headers["Authorization"])
	assert.True(t, event.Success)
}

func TestAuditCommand_NoStore(t *testing.T) {
	t.Setenv("TOOLGATE_AUDIT_SQLITE", "")

	_, _, err := execute(t, "audit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no audit store configured")
}

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "single header",
			input: []string{"Mcp-Session-Id: abc"},
			want:  map[string]string{"Mcp-Session-Id": "abc"},
		},
		{
			name:  "value containing colon",
			input: []string{"X-Trace: a:b:c"},
			want:  map[string]string{"X-Trace": "a:b:c"},
		},
		{
			name:    "missing separator",
			input:   []string{"Authorization"},
			wantErr: true,
		},
		{
			name:    "empty name",
			input:   []string{": value"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers, err := parseHeaders(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			for k, v := range tt.want {
				assert.Equal(t, v, headers.Get(k))
			}
		})
	}
}
