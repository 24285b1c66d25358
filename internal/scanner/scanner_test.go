package scanner

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_envSwitchName(t *testing.T) {
	assert.Equal(t, "FS_READ_MCP_ENABLED", envSwitchName("fs-read"))
	assert.Equal(t, "WEB_MCP_ENABLED", envSwitchName("web"))
}

func Test_resolveEnabled_manifestWins(t *testing.T) {
	assert.False(t, resolveEnabled("fs", true, false))
	assert.True(t, resolveEnabled("fs", true, true))
}

func Test_resolveEnabled_envVarWhenManifestSilent(t *testing.T) {
	name := envSwitchName("test-mcp")
	t.Cleanup(func() { os.Unsetenv(name) })

	os.Setenv(name, "false")
	assert.False(t, resolveEnabled("test-mcp", false, true))

	os.Setenv(name, "true")
	assert.True(t, resolveEnabled("test-mcp", false, false))
}

func Test_resolveEnabled_defaultsTrue(t *testing.T) {
	assert.True(t, resolveEnabled("unset-everywhere-mcp", false, false))
}
