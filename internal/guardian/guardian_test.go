package guardian

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func Test_effectiveFlags_precedence(t *testing.T) {
	// Global defaults only.
	in, out := effectiveFlags(true, false, MCPFlags{}, false, nil, nil)
	assert.True(t, in)
	assert.False(t, out)

	// Per-MCP overrides global.
	in, out = effectiveFlags(false, false, MCPFlags{Input: true, Output: true}, true, nil, nil)
	assert.True(t, in)
	assert.True(t, out)

	// Per-agent overrides per-MCP.
	in, out = effectiveFlags(false, false, MCPFlags{Input: true, Output: true}, true, boolPtr(false), boolPtr(false))
	assert.False(t, in)
	assert.False(t, out)
}

func Test_MCPFlagsFromDescriptorDefault(t *testing.T) {
	f := MCPFlagsFromDescriptorDefault(true, false)
	assert.Equal(t, MCPFlags{Input: true, Output: false}, f)
}

func Test_AuditLog_AppendAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := OpenAuditLog(path)
	require.NoError(t, err)

	require.NoError(t, log.Append(AuditEntry{ScanID: "s1", Tool: "fs_read", Safe: true}))
	require.NoError(t, log.Append(AuditEntry{ScanID: "s2", Tool: "fs_delete", Safe: false}))
	require.NoError(t, log.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "s1")
	assert.Contains(t, lines[1], "s2")
}
