// Package mcpclient owns one stdio/http MCP child process: its JSON-RPC
// framing (via github.com/mark3labs/mcp-go), stderr pumping into the parent
// logger, health-check driven restart, and the
// Unstarted→Starting→Available→Degraded→Closed state machine.
//
// Grounded on Jint8888-Pocket-Omega's MCP client, which wraps the same
// SDK's stdio/SSE client with an identical Connect/ListTools/CallTool/Close
// shape; extended here with the state machine, restart backoff and
// env-merge rules a supervised fleet needs.
package mcpclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	sdkclient "github.com/mark3labs/mcp-go/client"
	sdkmcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/fleetward/orchestrator/internal/descriptor"
)

// State is an MCP client's lifecycle state.
type State string

const (
	StateUnstarted State = "unstarted"
	StateStarting  State = "starting"
	StateAvailable State = "available"
	StateDegraded  State = "degraded"
	StateClosed    State = "closed"
)

// ToolInfo mirrors a single tool's discovery metadata.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Kind classifies why a non-OK CallResult failed, so callers can render a
// distinguishing response shape (e.g. a Guardian security block) without
// string-matching the error message.
type Kind int

const (
	KindNone Kind = iota
	KindUnknownTool
	KindPolicyDenied
	KindSecurityBlocked
	KindTransport
	KindToolError
)

// CallResult is the outcome of CallTool: exactly one of Content/Err is set
// on success/failure respectively. Kind is zero (KindNone) on success.
type CallResult struct {
	OK      bool
	Content string
	Err     error
	Kind    Kind
}

// restartMax bounds restart attempts within restartWindow.
const (
	restartMax    = 5
	restartWindow = 1 * time.Minute
	minBackoff    = 500 * time.Millisecond
	maxBackoff    = 10 * time.Second
)

// Client owns a single MCP child process (or HTTP endpoint) and exposes the
// initialize/listTools/callTool/healthCheck/restart/close contract.
type Client struct {
	desc   *descriptor.Descriptor
	logger *log.Logger

	mu        sync.RWMutex
	state     State
	inner     sdkclient.MCPClient
	lastTools []ToolInfo

	restartMu   sync.Mutex
	restartAt   []time.Time
}

// New constructs an unstarted client for desc. logger, when nil, defaults to
// the standard logger prefixed with the MCP name.
func New(desc *descriptor.Descriptor, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, fmt.Sprintf("[mcp:%s] ", desc.Name), log.LstdFlags)
	}
	return &Client{desc: desc, logger: logger, state: StateUnstarted}
}

// Name returns the owning MCP's name.
func (c *Client) Name() string { return c.desc.Name }

// Descriptor returns the client's descriptor.
func (c *Client) Descriptor() *descriptor.Descriptor { return c.desc }

// State returns the current state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsAvailable reports whether the client can currently accept calls.
func (c *Client) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateAvailable
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// childEnv computes the environment forwarded to the child: the parent
// environment minus transport-reconfiguring variables (the child is always
// stdio from the Orchestrator's perspective), unioned with per-descriptor
// overrides.
func childEnv(overrides map[string]string) []string {
	blocked := map[string]bool{
		"MCP_TRANSPORT": true,
		"MCP_HTTP_URL":  true,
		"MCP_SSE_URL":   true,
	}
	base := os.Environ()
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		k := kv
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			k = kv[:idx]
		}
		if !blocked[k] {
			out = append(out, kv)
		}
	}
	for k, v := range overrides {
		out = append(out, k+"="+v)
	}
	return out
}

// Initialize spawns the child (or dials the HTTP endpoint), attaches framed
// JSON-RPC, pipes stderr line-by-line into the logger and performs the MCP
// initialize handshake.
func (c *Client) Initialize(ctx context.Context) error {
	c.setState(StateStarting)

	var inner sdkclient.MCPClient
	var stderr io.Reader
	var err error

	switch c.desc.Origin {
	case descriptor.OriginExternalHTTP:
		cli, e := sdkclient.NewSSEMCPClient(c.desc.Entrypoint.URL)
		if e != nil {
			err = e
			break
		}
		if e := cli.Start(ctx); e != nil {
			err = e
			break
		}
		inner = cli
	default:
		env := childEnv(c.desc.Entrypoint.Env)
		cli, e := sdkclient.NewStdioMCPClient(c.desc.Entrypoint.Command, env, c.desc.Entrypoint.Args...)
		if e != nil {
			err = e
			break
		}
		stderr = stderrOf(cli)
		inner = cli
	}

	if err != nil {
		c.setState(StateClosed)
		return fmt.Errorf("mcpclient %q: spawn: %w", c.desc.Name, err)
	}

	if stderr != nil {
		go c.pumpStderr(stderr)
	}

	initCtx := ctx
	var cancel context.CancelFunc
	if c.desc.TimeoutMs > 0 {
		initCtx, cancel = context.WithTimeout(ctx, time.Duration(c.desc.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	_, err = inner.Initialize(initCtx, sdkmcp.InitializeRequest{
		Params: sdkmcp.InitializeParams{
			ProtocolVersion: sdkmcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: sdkmcp.Implementation{
				Name:    "mcp-orchestrator",
				Version: "0.1.0",
			},
		},
	})
	if err != nil {
		_ = inner.Close()
		c.setState(StateClosed)
		return fmt.Errorf("mcpclient %q: initialize: %w", c.desc.Name, err)
	}

	c.mu.Lock()
	c.inner = inner
	c.mu.Unlock()
	c.setState(StateAvailable)
	c.logger.Printf("available (%s)", c.desc.Origin)
	return nil
}

// stderrOf extracts the child process's stderr stream from the stdio
// transport. mark3labs/mcp-go exposes this under slightly different method
// names across versions, so both are probed defensively.
func stderrOf(cli interface{}) io.Reader {
	if se, ok := cli.(interface{ Stderr() io.Reader }); ok {
		return se.Stderr()
	}
	if se, ok := cli.(interface{ GetStderr() io.Reader }); ok {
		return se.GetStderr()
	}
	return nil
}

// pumpStderr drains the child's stderr line-by-line into the parent logger,
// prefixed with the MCP name.
func (c *Client) pumpStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		c.logger.Printf("stderr: %s", scanner.Text())
	}
}

// isTransportFatal classifies an error as a fatal transport error: broken
// pipe, closed stream, or not-connected.
func isTransportFatal(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sub := range []string{"broken pipe", "closed pipe", "not connected", "eof", "use of closed", "connection reset", "file already closed"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe)
}

// ListTools returns the child's tool list; an empty list if not available.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	c.mu.RLock()
	inner := c.inner
	available := c.state == StateAvailable
	c.mu.RUnlock()
	if !available || inner == nil {
		return nil, nil
	}

	res, err := inner.ListTools(ctx, sdkmcp.ListToolsRequest{})
	if err != nil {
		if isTransportFatal(err) {
			c.markDegraded()
		}
		return nil, fmt.Errorf("mcpclient %q: list tools: %w", c.desc.Name, err)
	}

	tools := make([]ToolInfo, 0, len(res.Tools))
	for _, t := range res.Tools {
		schema, merr := json.Marshal(t.InputSchema)
		if merr != nil {
			schema = json.RawMessage("{}")
		}
		tools = append(tools, ToolInfo{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	c.mu.Lock()
	c.lastTools = tools
	c.mu.Unlock()
	return tools, nil
}

// LastTools returns the most recently discovered tool list without a round
// trip to the child.
func (c *Client) LastTools() []ToolInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastTools
}

// CallTool invokes name with args, waiting up to the descriptor's timeout.
// Transport failures transition the client to Degraded and surface a
// user-visible temporary-unavailability message.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) CallResult {
	c.mu.RLock()
	inner := c.inner
	available := c.state == StateAvailable
	c.mu.RUnlock()
	if !available || inner == nil {
		return CallResult{OK: false, Kind: KindTransport, Err: fmt.Errorf("mcp %q: service may be temporarily unavailable — will auto-restart shortly", c.desc.Name)}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if c.desc.TimeoutMs > 0 {
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(c.desc.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	req := sdkmcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := inner.CallTool(callCtx, req)
	if err != nil {
		if isTransportFatal(err) {
			c.markDegraded()
			return CallResult{OK: false, Kind: KindTransport, Err: fmt.Errorf("mcp %q: service may be temporarily unavailable — will auto-restart shortly", c.desc.Name)}
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return CallResult{OK: false, Kind: KindTransport, Err: fmt.Errorf("mcp %q: tool %q: timeout", c.desc.Name, name)}
		}
		return CallResult{OK: false, Kind: KindToolError, Err: fmt.Errorf("mcp %q: tool %q: %w", c.desc.Name, name, err)}
	}

	var parts []string
	for _, content := range res.Content {
		if tc, ok := content.(sdkmcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if res.IsError {
		return CallResult{OK: false, Kind: KindToolError, Err: fmt.Errorf("mcp %q: tool %q returned error: %s", c.desc.Name, name, text)}
	}
	return CallResult{OK: true, Content: text}
}

func (c *Client) markDegraded() {
	c.mu.Lock()
	if c.state == StateAvailable {
		c.state = StateDegraded
	}
	c.mu.Unlock()
	c.logger.Printf("degraded: transport error")
}

// HealthCheck is a lightweight ListTools call used by the supervisor's
// restart loop.
func (c *Client) HealthCheck(ctx context.Context) bool {
	if !c.IsAvailable() {
		return false
	}
	_, err := c.ListTools(ctx)
	return err == nil
}

// Restart closes then re-initializes the client, honoring a short backoff
// and a maximum-attempts-per-window bound.
func (c *Client) Restart(ctx context.Context) error {
	c.restartMu.Lock()
	now := time.Now()
	cutoff := now.Add(-restartWindow)
	kept := c.restartAt[:0]
	for _, t := range c.restartAt {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.restartAt = kept
	if len(c.restartAt) >= restartMax {
		c.restartMu.Unlock()
		return fmt.Errorf("mcpclient %q: restart attempts exhausted for this window", c.desc.Name)
	}
	attempt := len(c.restartAt)
	c.restartAt = append(c.restartAt, now)
	c.restartMu.Unlock()

	backoff := minBackoff * time.Duration(1<<uint(attempt))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return ctx.Err()
	}

	_ = c.Close()
	return c.Initialize(ctx)
}

// Close tears down the transport. Safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	inner := c.inner
	c.inner = nil
	c.state = StateClosed
	c.mu.Unlock()
	if inner == nil {
		return nil
	}
	return inner.Close()
}
