package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetward/orchestrator/internal/config"
	"github.com/fleetward/orchestrator/internal/mcpclient"
	"github.com/fleetward/orchestrator/internal/policy"
)

func Test_isDestructive(t *testing.T) {
	patterns := []string{"delete", "remove"}
	assert.True(t, isDestructive(patterns, "DeleteFile"))
	assert.True(t, isDestructive(patterns, "remove_dir"))
	assert.False(t, isDestructive(patterns, "read_file"))
}

// emptyClientSource never resolves any MCP; used by tests that exercise the
// unregistered-MCP error path without a live client.
type emptyClientSource struct{}

func (emptyClientSource) Client(mcpName string) (*mcpclient.Client, bool) { return nil, false }

func newTestRouter() *Router {
	cfg := config.RouterConfig{Separator: "_", CatalogTruncateLimit: 50}
	return New(cfg, emptyClientSource{})
}

func Test_Router_All_Get_sortedAndLookup(t *testing.T) {
	r := newTestRouter()
	r.routes = map[string]*Route{
		"b_tool": {ExposedName: "b_tool", OriginalName: "tool", MCPName: "b"},
		"a_tool": {ExposedName: "a_tool", OriginalName: "tool", MCPName: "a"},
	}

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a_tool", all[0].ExposedName)
	assert.Equal(t, "b_tool", all[1].ExposedName)

	route, ok := r.Get("a_tool")
	require.True(t, ok)
	assert.Equal(t, "a", route.MCPName)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func Test_Router_Filtered(t *testing.T) {
	r := newTestRouter()
	r.routes = map[string]*Route{
		"fs_read":   {ExposedName: "fs_read"},
		"fs_delete": {ExposedName: "fs_delete"},
	}
	m := policy.New(nil, []string{"fs_delete"})
	filtered := r.Filtered(m)
	require.Len(t, filtered, 1)
	assert.Equal(t, "fs_read", filtered[0].ExposedName)
}

func Test_Router_Dispatch_unknownTool(t *testing.T) {
	r := newTestRouter()
	r.routes = map[string]*Route{
		"fs_read": {ExposedName: "fs_read"},
	}
	route, result := r.Dispatch(context.Background(), "nonexistent", nil, "agent-1", nil)
	assert.Nil(t, route)
	assert.False(t, result.OK)
	assert.Contains(t, result.Err.Error(), "unknown tool")
	assert.Contains(t, result.Err.Error(), "fs_read")
	assert.Equal(t, mcpclient.KindUnknownTool, result.Kind)
}

func Test_Router_Dispatch_policyDenied(t *testing.T) {
	r := newTestRouter()
	r.routes = map[string]*Route{
		"fs_delete": {ExposedName: "fs_delete", MCPName: "fs"},
	}
	m := policy.New(nil, []string{"fs_delete"})
	route, result := r.Dispatch(context.Background(), "fs_delete", nil, "agent-1", &m)
	require.NotNil(t, route)
	assert.False(t, result.OK)
	assert.Contains(t, result.Err.Error(), "not available for agent")
	assert.Equal(t, mcpclient.KindPolicyDenied, result.Kind)
}

func Test_Router_CallDirect_unregisteredMCP(t *testing.T) {
	r := newTestRouter()
	result := r.CallDirect(context.Background(), "lark", "get_messages", nil)
	assert.False(t, result.OK)
	assert.Equal(t, mcpclient.KindTransport, result.Kind)
	assert.Contains(t, result.Err.Error(), "not registered")
}

func Test_Router_Blocked(t *testing.T) {
	r := newTestRouter()
	r.blocked = []BlockedTool{{MCPName: "fs", Name: "delete_file"}}
	blocked := r.Blocked()
	require.Len(t, blocked, 1)
	assert.Equal(t, "delete_file", blocked[0].Name)
}
