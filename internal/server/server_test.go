package server

import (
	"encoding/json"
	"errors"
	"testing"

	sdkmcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetward/orchestrator/internal/config"
	"github.com/fleetward/orchestrator/internal/mcpclient"
)

func Test_agentIDFromRequest(t *testing.T) {
	params := map[string]interface{}{
		"_meta": map[string]interface{}{"agentId": "main"},
	}
	assert.Equal(t, "main", agentIDFromRequest(params))
}

func Test_agentIDFromRequest_missing(t *testing.T) {
	assert.Equal(t, "", agentIDFromRequest(map[string]interface{}{}))
	assert.Equal(t, "", agentIDFromRequest(nil))
}

func Test_agentPolicy_foundAndDefault(t *testing.T) {
	cfg := &config.Config{Agents: []config.AgentDefinition{
		{AgentID: "main", Policy: config.AgentPolicy{AllowedTools: []string{"fs_read"}}},
	}}
	f := &Front{cfg: cfg}

	m, pol := f.agentPolicy("main")
	assert.True(t, m.Allowed("fs_read"))
	assert.False(t, m.Allowed("fs_delete"))
	assert.Equal(t, []string{"fs_read"}, pol.AllowedTools)

	m2, _ := f.agentPolicy("nonexistent")
	assert.True(t, m2.Allowed("anything"), "unknown agent gets an unrestricted matcher")
}

func Test_toCallToolResult_success(t *testing.T) {
	res, err := toCallToolResult(mcpclient.CallResult{OK: true, Content: "hello"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.IsError)
}

func textOf(t *testing.T, res *sdkmcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(sdkmcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func Test_toCallToolResult_genericErrorEnvelope(t *testing.T) {
	res, err := toCallToolResult(mcpclient.CallResult{OK: false, Kind: mcpclient.KindUnknownTool, Err: errors.New("boom")})
	require.NoError(t, err)
	require.NotNil(t, res)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &parsed))
	assert.Equal(t, false, parsed["success"])
	assert.Nil(t, parsed["blocked"], "non-security failures must not set blocked")
	assert.Equal(t, "boom", parsed["error"])
}

func Test_toCallToolResult_securityBlockedEnvelope(t *testing.T) {
	res, err := toCallToolResult(mcpclient.CallResult{OK: false, Kind: mcpclient.KindSecurityBlocked, Err: errors.New("blocked by security policy: malware")})
	require.NoError(t, err)
	require.NotNil(t, res)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &parsed))
	assert.Equal(t, false, parsed["success"])
	assert.Equal(t, true, parsed["blocked"])
	assert.Equal(t, "blocked by security policy: malware", parsed["error"])
}

func Test_blockedEnvelope(t *testing.T) {
	body := blockedEnvelope("denied by policy")
	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &parsed))
	assert.Equal(t, false, parsed["success"])
	assert.Equal(t, true, parsed["blocked"])
	assert.Equal(t, "denied by policy", parsed["error"])
}

func Test_errorEnvelope(t *testing.T) {
	body := errorEnvelope("resource exhausted")
	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &parsed))
	assert.Equal(t, false, parsed["success"])
	assert.Nil(t, parsed["blocked"])
	assert.Equal(t, "resource exhausted", parsed["error"])
}

func Test_customToolNames(t *testing.T) {
	names := customToolNames()
	assert.True(t, names["get_status"])
	assert.True(t, names["spawn_subagent"])
	assert.True(t, names["system_health_check"])
	assert.True(t, names["get_tool_catalog"])
	assert.False(t, names["fs_read"])
}

func Test_filterListedTools_unfilteredWhenNoAgentID(t *testing.T) {
	f := &Front{cfg: &config.Config{}}
	result := &sdkmcp.ListToolsResult{Tools: []sdkmcp.Tool{{Name: "fs_read"}, {Name: "fs_delete"}}}
	req := &sdkmcp.ListToolsRequest{}
	f.filterListedTools(nil, nil, req, result)
	assert.Len(t, result.Tools, 2)
}
