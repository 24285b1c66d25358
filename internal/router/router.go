// Package router implements tool catalog aggregation, destructive-tool
// gating, exposed-name collision resolution, and per-agent policy-enforced
// dispatch to the owning MCP client.
//
// Grounded on Jint8888-Pocket-Omega's "<server>__<tool>" prefixing idea,
// generalized here to a collision-only (or always-on) prefixing rule plus
// destructive-pattern gating.
package router

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fleetward/orchestrator/internal/config"
	"github.com/fleetward/orchestrator/internal/mcpclient"
	"github.com/fleetward/orchestrator/internal/policy"
)

// Route is one exposed tool mapped back to its owning MCP and original
// tool name.
type Route struct {
	ExposedName    string
	OriginalName   string
	MCPName        string
	Description    string
	InputSchema    []byte
	IsDestructive  bool
	ResponseHint   string
}

// BlockedTool records a destructive tool omitted from the catalog.
type BlockedTool struct {
	MCPName string
	Name    string
}

// ClientSource resolves an MCP name to its live client; implemented by the
// supervisor that owns the Client set.
type ClientSource interface {
	Client(mcpName string) (*mcpclient.Client, bool)
}

// Router owns the current route table; it is rebuilt wholesale on every
// membership change and swapped atomically so readers never block on a
// rebuild.
type Router struct {
	cfg     config.RouterConfig
	clients ClientSource

	mu      sync.RWMutex
	routes  map[string]*Route // exposedName -> route
	blocked []BlockedTool
}

// New constructs a Router. cfg.Separator/AlwaysPrefix/DestructivePatterns/
// CatalogTruncateLimit drive naming and gating.
func New(cfg config.RouterConfig, clients ClientSource) *Router {
	return &Router{cfg: cfg, clients: clients, routes: map[string]*Route{}}
}

// isDestructive reports whether originalName matches any configured
// case-insensitive destructive pattern.
func isDestructive(patterns []string, originalName string) bool {
	lower := strings.ToLower(originalName)
	for _, p := range patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// candidate is a not-yet-named tool awaiting collision resolution.
type candidate struct {
	mcpName     string
	name        string
	description string
	schema      []byte
}

// Rebuild recomputes the catalog from scratch: for every available client,
// list its tools, drop ungated destructive ones into the blocked list, then
// resolve exposed names (prefix on collision, or always) — in that order,
// since prefixing must be applied after destructive filtering.
func (r *Router) Rebuild(ctx context.Context, clients []*mcpclient.Client) error {
	byOriginal := map[string][]candidate{}
	var blocked []BlockedTool

	for _, c := range clients {
		if !c.IsAvailable() {
			continue
		}
		desc := c.Descriptor()
		tools, err := c.ListTools(ctx)
		if err != nil {
			return fmt.Errorf("router: list tools for %q: %w", desc.Name, err)
		}
		for _, t := range tools {
			if isDestructive(r.cfg.DestructivePatterns, t.Name) && !desc.AllowDestructiveTools {
				blocked = append(blocked, BlockedTool{MCPName: desc.Name, Name: t.Name})
				continue
			}
			byOriginal[t.Name] = append(byOriginal[t.Name], candidate{
				mcpName:     desc.Name,
				name:        t.Name,
				description: t.Description,
				schema:      t.InputSchema,
			})
		}
	}

	sep := r.cfg.Separator
	if sep == "" {
		sep = "_"
	}

	routes := map[string]*Route{}
	for original, cands := range byOriginal {
		collision := len(cands) > 1
		for _, cand := range cands {
			exposed := original
			if collision || r.cfg.AlwaysPrefix {
				exposed = cand.mcpName + sep + original
			}
			routes[exposed] = &Route{
				ExposedName:  exposed,
				OriginalName: original,
				MCPName:      cand.mcpName,
				Description:  cand.description,
				InputSchema:  cand.schema,
			}
		}
	}

	r.mu.Lock()
	r.routes = routes
	r.blocked = blocked
	r.mu.Unlock()
	return nil
}

// All returns a stable-ordered snapshot of the current route table.
func (r *Router) All() []*Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Route, 0, len(r.routes))
	for _, route := range r.routes {
		out = append(out, route)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExposedName < out[j].ExposedName })
	return out
}

// Blocked returns the destructive tools omitted from the catalog.
func (r *Router) Blocked() []BlockedTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]BlockedTool, len(r.blocked))
	copy(out, r.blocked)
	return out
}

// Get resolves an exposed name to its route.
func (r *Router) Get(exposedName string) (*Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[exposedName]
	return route, ok
}

// Filtered returns the routes visible to an agent governed by m.
func (r *Router) Filtered(m policy.Matcher) []*Route {
	all := r.All()
	out := make([]*Route, 0, len(all))
	for _, route := range all {
		if m.Allowed(route.ExposedName) {
			out = append(out, route)
		}
	}
	return out
}

// catalogSummary renders a truncated tool-name list for unknown-tool errors.
func (r *Router) catalogSummary() string {
	all := r.All()
	limit := r.cfg.CatalogTruncateLimit
	if limit <= 0 {
		limit = 50
	}
	total := len(all)
	names := make([]string, 0, total)
	for _, route := range all {
		names = append(names, route.ExposedName)
	}
	truncated := false
	if len(names) > limit {
		names = names[:limit]
		truncated = true
	}
	summary := strings.Join(names, ", ")
	if truncated {
		summary += fmt.Sprintf(", … (%d more)", total-limit)
	}
	return summary
}

// Dispatch resolves the route, enforces the caller's policy (when
// non-nil), then forwards to the owning client. Returns the route alongside
// the result so the Guardian decorator can resolve the owning MCP for flag
// lookup.
func (r *Router) Dispatch(ctx context.Context, exposedName string, args map[string]interface{}, agentID string, m *policy.Matcher) (*Route, mcpclient.CallResult) {
	route, ok := r.Get(exposedName)
	if !ok {
		return nil, mcpclient.CallResult{OK: false, Kind: mcpclient.KindUnknownTool, Err: fmt.Errorf("unknown tool %q; known tools: %s", exposedName, r.catalogSummary())}
	}
	if m != nil && !m.Allowed(exposedName) {
		return route, mcpclient.CallResult{OK: false, Kind: mcpclient.KindPolicyDenied, Err: fmt.Errorf("Tool '%s' is not available for agent '%s'", exposedName, agentID)}
	}
	client, ok := r.clients.Client(route.MCPName)
	if !ok {
		return route, mcpclient.CallResult{OK: false, Kind: mcpclient.KindTransport, Err: fmt.Errorf("mcp %q is not registered", route.MCPName)}
	}
	return route, client.CallTool(ctx, route.OriginalName, args)
}

// CallDirect invokes originalName on mcpName's owning client directly,
// bypassing exposed-name resolution entirely. Used by callers that already
// know which MCP and original tool they want (e.g. the channel poller
// driving its own channel MCP's get_messages/list_chats/get_me), since the
// exposed name for that tool depends on collision state with other MCPs and
// is not guessable from the MCP name alone.
func (r *Router) CallDirect(ctx context.Context, mcpName, originalName string, args map[string]interface{}) mcpclient.CallResult {
	client, ok := r.clients.Client(mcpName)
	if !ok {
		return mcpclient.CallResult{OK: false, Kind: mcpclient.KindTransport, Err: fmt.Errorf("mcp %q is not registered", mcpName)}
	}
	return client.CallTool(ctx, originalName, args)
}
