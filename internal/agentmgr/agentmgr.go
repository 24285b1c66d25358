// Package agentmgr tracks the set of long-lived agent runtimes, routes
// inbound channel messages to the correct agent over HTTP, and backs the
// get_status built-in tool.
//
// Modeled on viant-agently's service bootstrap/health shape, generalized
// here to a supervised set of externally-spawned agent processes rather
// than a single in-process service.
package agentmgr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/fleetward/orchestrator/internal/channel"
	"github.com/fleetward/orchestrator/internal/config"
)

// State is an agent runtime's lifecycle state.
type State string

const (
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateBusy     State = "busy"
	StatePaused   State = "paused"
	StateExited   State = "exited"
)

// ProcessingResponse is an agent's reply to /process-message.
type ProcessingResponse struct {
	Success    bool     `json:"success"`
	Response   string   `json:"response,omitempty"`
	ToolsUsed  []string `json:"toolsUsed,omitempty"`
	TotalSteps int      `json:"totalSteps,omitempty"`
	Error      string   `json:"error,omitempty"`
	Paused     bool     `json:"paused,omitempty"`
}

// Runtime is one supervised agent process and its live state.
type Runtime struct {
	AgentID         string
	Def             config.AgentDefinition
	State           State
	AssignedPort    int
	ProcessHandle   ProcessHandle
	mu              sync.Mutex
	activeSubagents map[string]bool
}

// ProcessHandle abstracts the spawned agent process so the subagent
// supervisor and agent manager can share termination logic without a
// direct os/exec dependency in this package.
type ProcessHandle interface {
	Stop(ctx context.Context) error
	Alive() bool
}

func newRuntime(def config.AgentDefinition, port int, handle ProcessHandle) *Runtime {
	return &Runtime{
		AgentID:         def.AgentID,
		Def:             def,
		State:           StateStarting,
		AssignedPort:    port,
		ProcessHandle:   handle,
		activeSubagents: map[string]bool{},
	}
}

// AddSubagent records a spawned subagent id under this runtime.
func (r *Runtime) AddSubagent(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeSubagents[id] = true
}

// RemoveSubagent drops a subagent id.
func (r *Runtime) RemoveSubagent(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.activeSubagents, id)
}

// ActiveSubagents returns a snapshot of currently active subagent ids.
func (r *Runtime) ActiveSubagents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.activeSubagents))
	for id := range r.activeSubagents {
		out = append(out, id)
	}
	return out
}

// StatusEntry is the get_status tool's per-agent shape.
type StatusEntry struct {
	AgentID       string `json:"agentId"`
	Available     bool   `json:"available"`
	State         string `json:"state"`
	IsSubagent    bool   `json:"isSubagent"`
	ParentAgentID string `json:"parentAgentId,omitempty"`
	Port          int    `json:"port"`
}

// Manager owns every agent runtime.
type Manager struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *log.Logger

	mu       sync.RWMutex
	runtimes map[string]*Runtime
}

// New constructs a Manager against cfg's agent definitions and bindings.
func New(cfg *config.Config) *Manager {
	return &Manager{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.Default(),
		runtimes:   map[string]*Runtime{},
	}
}

// Register attaches a freshly-spawned runtime. Called by the startup
// bootstrap and the subagent supervisor.
func (m *Manager) Register(def config.AgentDefinition, port int, handle ProcessHandle) *Runtime {
	rt := newRuntime(def, port, handle)
	m.mu.Lock()
	m.runtimes[def.AgentID] = rt
	m.mu.Unlock()
	return rt
}

// Unregister removes a runtime, e.g. after it exits.
func (m *Manager) Unregister(agentID string) {
	m.mu.Lock()
	delete(m.runtimes, agentID)
	m.mu.Unlock()
}

// Get returns a runtime by id.
func (m *Manager) Get(agentID string) (*Runtime, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.runtimes[agentID]
	return rt, ok
}

// All returns a snapshot of every runtime.
func (m *Manager) All() []*Runtime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Runtime, 0, len(m.runtimes))
	for _, rt := range m.runtimes {
		out = append(out, rt)
	}
	return out
}

// ResolveBinding implements channel.BindingResolver.
func (m *Manager) ResolveBinding(ch, chatID string) (string, bool) {
	return m.cfg.ResolveBinding(ch, chatID)
}

// OnMessage implements channel.Dispatcher: resolves the target runtime,
// ensures it is ready, pushes an HTTP POST to /process-message, and logs
// the agent's ProcessingResponse (its content is delivered back to the
// channel by the agent itself, not relayed here).
func (m *Manager) OnMessage(ctx context.Context, msg channel.Message) error {
	rt, ok := m.Get(msg.AgentID)
	if !ok {
		return fmt.Errorf("agentmgr: no runtime for agent %q", msg.AgentID)
	}
	rt.mu.Lock()
	state := rt.State
	rt.mu.Unlock()
	if state != StateReady {
		return fmt.Errorf("agentmgr: agent %q is not ready (state=%s)", msg.AgentID, state)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("agentmgr: marshal message: %w", err)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/process-message", rt.AssignedPort)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("agentmgr: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("agentmgr: dispatch to %q: %w", msg.AgentID, err)
	}
	defer resp.Body.Close()

	var pr ProcessingResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return fmt.Errorf("agentmgr: decode response from %q: %w", msg.AgentID, err)
	}
	if !pr.Success {
		m.logger.Printf("agent %q: message %q failed: %s", msg.AgentID, msg.ID, pr.Error)
		return fmt.Errorf("agentmgr: agent %q: %s", msg.AgentID, pr.Error)
	}
	m.logger.Printf("agent %q: message %q processed in %d step(s), tools=%v", msg.AgentID, msg.ID, pr.TotalSteps, pr.ToolsUsed)
	return nil
}

// Status renders the get_status tool payload.
func (m *Manager) Status() []StatusEntry {
	all := m.All()
	out := make([]StatusEntry, 0, len(all))
	for _, rt := range all {
		rt.mu.Lock()
		st := rt.State
		rt.mu.Unlock()
		out = append(out, StatusEntry{
			AgentID:       rt.AgentID,
			Available:     st == StateReady,
			State:         string(st),
			IsSubagent:    rt.Def.IsSubagent,
			ParentAgentID: rt.Def.ParentAgentID,
			Port:          rt.AssignedPort,
		})
	}
	return out
}

// SetState transitions a runtime's state.
func (m *Manager) SetState(agentID string, s State) {
	rt, ok := m.Get(agentID)
	if !ok {
		return
	}
	rt.mu.Lock()
	rt.State = s
	rt.mu.Unlock()
}

// StopAll cascades a Stop to every runtime, used during shutdown after
// the subagent supervisor has already cascade-killed subagents.
func (m *Manager) StopAll(ctx context.Context) {
	for _, rt := range m.All() {
		if rt.ProcessHandle != nil {
			_ = rt.ProcessHandle.Stop(ctx)
		}
		m.SetState(rt.AgentID, StateExited)
	}
}
