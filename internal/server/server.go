// Package server implements the orchestrator's own MCP front, merging the
// router's passthrough tool catalog with a handful of custom built-in
// tools, and injecting caller identity from `_meta.agentId`.
//
// Grounded on kagenti-mcp-gateway's federated-catalog shape:
// server.NewMCPServer + server.ServerTool + AddTools, with an
// AddAfterListTools hook for per-caller filtering, adapted from a stateless
// gateway (which refuses to forward calls) to one that dispatches through
// the Guardian-wrapped router.
package server

import (
	"context"
	"encoding/json"

	sdkmcp "github.com/mark3labs/mcp-go/mcp"
	sdkserver "github.com/mark3labs/mcp-go/server"

	"github.com/fleetward/orchestrator/internal/agentmgr"
	"github.com/fleetward/orchestrator/internal/config"
	"github.com/fleetward/orchestrator/internal/guardian"
	"github.com/fleetward/orchestrator/internal/mcpclient"
	"github.com/fleetward/orchestrator/internal/policy"
	"github.com/fleetward/orchestrator/internal/router"
	"github.com/fleetward/orchestrator/internal/subagent"
)

// HealthSource reports per-MCP availability for system_health_check.
type HealthSource interface {
	Health() map[string]string
}

// Front is the Orchestrator's MCP front server.
type Front struct {
	cfg        *config.Config
	router     *router.Router
	pipeline   *guardian.Pipeline
	agents     *agentmgr.Manager
	subagents  *subagent.Supervisor
	health     HealthSource

	mcpServer *sdkserver.MCPServer
}

// New wires a Front over the given components and registers all tools.
func New(cfg *config.Config, r *router.Router, pipeline *guardian.Pipeline, agents *agentmgr.Manager, subagents *subagent.Supervisor, health HealthSource) *Front {
	f := &Front{cfg: cfg, router: r, pipeline: pipeline, agents: agents, subagents: subagents, health: health}

	hooks := &sdkserver.Hooks{}
	hooks.AddAfterListTools(f.filterListedTools)

	f.mcpServer = sdkserver.NewMCPServer(
		"mcp-orchestrator",
		"0.1.0",
		sdkserver.WithHooks(hooks),
		sdkserver.WithToolCapabilities(true),
	)

	f.registerCustomTools()
	return f
}

// MCPServer exposes the underlying SDK server, e.g. for sdkserver.ServeStdio.
func (f *Front) MCPServer() *sdkserver.MCPServer { return f.mcpServer }

// RefreshPassthroughTools replaces the passthrough tool set with the
// router's current catalog. Called whenever the router is rebuilt.
func (f *Front) RefreshPassthroughTools() {
	routes := f.router.All()
	tools := make([]sdkserver.ServerTool, 0, len(routes))
	for _, route := range routes {
		tools = append(tools, sdkserver.ServerTool{
			Tool:    toSDKTool(route),
			Handler: f.passthroughHandler(route.ExposedName),
		})
	}
	f.mcpServer.AddTools(tools...)
}

func toSDKTool(route *router.Route) sdkmcp.Tool {
	schema := sdkmcp.ToolInputSchema{Type: "object"}
	if len(route.InputSchema) > 0 {
		_ = json.Unmarshal(route.InputSchema, &schema)
	}
	return sdkmcp.Tool{
		Name:        route.ExposedName,
		Description: route.Description,
		InputSchema: schema,
	}
}

// agentIDFromRequest extracts `_meta.agentId` from a request's params by
// round-tripping through JSON, avoiding a hard dependency on the SDK's
// exact Meta accessor shape.
func agentIDFromRequest(params interface{}) string {
	raw, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	var withMeta struct {
		Meta struct {
			AgentID string `json:"agentId"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(raw, &withMeta); err != nil {
		return ""
	}
	return withMeta.Meta.AgentID
}

func (f *Front) agentPolicy(agentID string) (policy.Matcher, config.AgentPolicy) {
	for _, a := range f.cfg.Agents {
		if a.AgentID == agentID {
			return policy.New(a.Policy.AllowedTools, a.Policy.DeniedTools), a.Policy
		}
	}
	return policy.New(nil, nil), config.AgentPolicy{}
}

// filterListedTools implements per-agent tools/list filtering: if
// `_meta.agentId` is set, drop passthrough tools the caller's policy
// denies. Custom tools are always retained.
func (f *Front) filterListedTools(ctx context.Context, id any, request *sdkmcp.ListToolsRequest, result *sdkmcp.ListToolsResult) {
	agentID := agentIDFromRequest(request.Params)
	if agentID == "" {
		return
	}
	m, _ := f.agentPolicy(agentID)
	custom := customToolNames()

	filtered := result.Tools[:0]
	for _, t := range result.Tools {
		if custom[t.Name] || m.Allowed(t.Name) {
			filtered = append(filtered, t)
		}
	}
	result.Tools = filtered
}

func (f *Front) passthroughHandler(exposedName string) sdkserver.ToolHandlerFunc {
	return func(ctx context.Context, request sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		agentID := agentIDFromRequest(request.Params)
		m, agentPolicy := f.agentPolicy(agentID)
		var matcher *policy.Matcher
		if agentID != "" {
			matcher = &m
		}
		result := f.pipeline.Dispatch(ctx, f.router, exposedName, request.GetArguments(), agentID, matcher, agentPolicy)
		return toCallToolResult(result)
	}
}

// toCallToolResult renders an mcpclient.CallResult into the MCP tool-result
// envelope: a successful call's content passes through verbatim; a failed
// call renders as `{success:false, error:...}`, or — only for a genuine
// Guardian security block — `{success:false, blocked:true, error:...}`.
func toCallToolResult(result mcpclient.CallResult) (*sdkmcp.CallToolResult, error) {
	if result.OK {
		return sdkmcp.NewToolResultText(result.Content), nil
	}
	msg := result.Err.Error()
	if result.Kind == mcpclient.KindSecurityBlocked {
		return sdkmcp.NewToolResultText(blockedEnvelope(msg)), nil
	}
	return sdkmcp.NewToolResultText(errorEnvelope(msg)), nil
}

// errorEnvelope renders a plain failed tool-call result: `{success:false,
// error:...}`.
func errorEnvelope(reason string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"success": false,
		"error":   reason,
	})
	return string(body)
}

// blockedEnvelope renders a security-block distinctly from a plain tool
// error: `{success:false, blocked:true, error:...}`.
func blockedEnvelope(reason string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"success": false,
		"blocked": true,
		"error":   reason,
	})
	return string(body)
}

func customToolNames() map[string]bool {
	return map[string]bool{
		"get_status":          true,
		"spawn_subagent":      true,
		"system_health_check": true,
		"get_tool_catalog":    true,
	}
}

func (f *Front) registerCustomTools() {
	f.mcpServer.AddTool(
		sdkmcp.NewTool("get_status", sdkmcp.WithDescription("List every agent runtime and its current state")),
		func(ctx context.Context, request sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			body, _ := json.Marshal(f.agents.Status())
			return sdkmcp.NewToolResultText(string(body)), nil
		},
	)

	f.mcpServer.AddTool(
		sdkmcp.NewTool("system_health_check", sdkmcp.WithDescription("Per-MCP availability snapshot")),
		func(ctx context.Context, request sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			var snapshot map[string]string
			if f.health != nil {
				snapshot = f.health.Health()
			}
			body, _ := json.Marshal(snapshot)
			return sdkmcp.NewToolResultText(string(body)), nil
		},
	)

	f.mcpServer.AddTool(
		sdkmcp.NewTool("get_tool_catalog", sdkmcp.WithDescription("Full route table, for agent self-description")),
		func(ctx context.Context, request sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			body, _ := json.Marshal(f.router.All())
			return sdkmcp.NewToolResultText(string(body)), nil
		},
	)

	f.mcpServer.AddTool(
		sdkmcp.NewTool("spawn_subagent",
			sdkmcp.WithDescription("Spawn a short-lived subagent constrained to a single task"),
			sdkmcp.WithString("task", sdkmcp.Required(), sdkmcp.Description("Bootstrap task for the subagent")),
			sdkmcp.WithNumber("timeoutMinutes", sdkmcp.Description("Deadline in minutes for the subagent's single response")),
		),
		func(ctx context.Context, request sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			agentID := agentIDFromRequest(request.Params)
			if agentID == "" {
				return sdkmcp.NewToolResultError("spawn_subagent requires a caller agent identity"), nil
			}
			task, err := request.RequireString("task")
			if err != nil || task == "" {
				return sdkmcp.NewToolResultError("spawn_subagent requires task"), nil
			}
			timeoutMinutes := 0
			if v, err := request.RequireFloat("timeoutMinutes"); err == nil {
				timeoutMinutes = int(v)
			}
			result, err := f.subagents.Spawn(ctx, agentID, task, timeoutMinutes, nil)
			if err != nil {
				return sdkmcp.NewToolResultText(errorEnvelope(err.Error())), nil
			}
			body, _ := json.Marshal(result)
			return sdkmcp.NewToolResultText(string(body)), nil
		},
	)
}
