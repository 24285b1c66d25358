package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Default(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "_", cfg.Router.Separator)
	assert.Equal(t, defaultDestructivePatterns, cfg.Router.DestructivePatterns)
	assert.Equal(t, FailClosed, cfg.Guardian.FailMode)
	assert.Equal(t, 20, cfg.Subagent.GlobalMaxConcurrent)
}

func Test_Load_missingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func Test_Load_mergesOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
router:
  alwaysPrefix: true
guardian:
  enabled: false
agents:
  - agentId: main
    command: ./agent
    isDefault: true
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Router.AlwaysPrefix)
	assert.False(t, cfg.Guardian.Enabled)
	assert.Equal(t, "_", cfg.Router.Separator, "separator keeps default when unset")
	assert.Equal(t, defaultDestructivePatterns, cfg.Router.DestructivePatterns, "destructive patterns keep default when unset")

	agent, ok := cfg.DefaultAgent()
	require.True(t, ok)
	assert.Equal(t, "main", agent.AgentID)
}

func Test_ResolveBinding(t *testing.T) {
	cfg := Default()
	cfg.Bindings = []ChannelBindingEntry{{Channel: "lark", ChatID: "c1", AgentID: "support"}}
	cfg.Agents = []AgentDefinition{{AgentID: "default-agent", IsDefault: true}}

	agentID, ok := cfg.ResolveBinding("lark", "c1")
	require.True(t, ok)
	assert.Equal(t, "support", agentID)

	agentID, ok = cfg.ResolveBinding("lark", "unbound-chat")
	require.True(t, ok)
	assert.Equal(t, "default-agent", agentID, "falls back to the default agent")
}
