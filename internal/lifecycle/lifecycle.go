// Package lifecycle implements ordered startup, signal handling, and
// graceful drain, wiring every other component together.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/viant/afs"

	"github.com/fleetward/orchestrator/internal/agentmgr"
	"github.com/fleetward/orchestrator/internal/channel"
	"github.com/fleetward/orchestrator/internal/config"
	"github.com/fleetward/orchestrator/internal/descriptor"
	"github.com/fleetward/orchestrator/internal/external"
	"github.com/fleetward/orchestrator/internal/guardian"
	"github.com/fleetward/orchestrator/internal/mcpclient"
	"github.com/fleetward/orchestrator/internal/router"
	"github.com/fleetward/orchestrator/internal/scanner"
	"github.com/fleetward/orchestrator/internal/server"
	"github.com/fleetward/orchestrator/internal/subagent"
	"github.com/fleetward/orchestrator/internal/workspace"
)

// Supervisor owns every live MCP client and wires every other component
// together.
type Supervisor struct {
	cfg    *config.Config
	logger *log.Logger

	mu       sync.RWMutex
	descs    *descriptor.Set
	clients  map[string]*mcpclient.Client

	router    *router.Router
	pipeline  *guardian.Pipeline
	audit     *guardian.AuditLog
	agents    *agentmgr.Manager
	subagents *subagent.Supervisor
	front     *server.Front

	extWatcher *external.Watcher
	pollers    []*channel.Poller
	pollerCancel context.CancelFunc
}

// New constructs an unstarted Supervisor.
func New(cfg *config.Config, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.Default()
	}
	return &Supervisor{
		cfg:     cfg,
		logger:  logger,
		descs:   descriptor.NewSet(),
		clients: map[string]*mcpclient.Client{},
	}
}

// Client implements router.ClientSource.
func (s *Supervisor) Client(mcpName string) (*mcpclient.Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[mcpName]
	return c, ok
}

// MCPFlags implements guardian.FlagSource.
func (s *Supervisor) MCPFlags(mcpName string) (guardian.MCPFlags, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.descs.Get(mcpName)
	if !ok {
		return guardian.MCPFlags{}, false
	}
	return guardian.MCPFlagsFromDescriptorDefault(d.GuardianScan.Input, d.GuardianScan.Output), true
}

// Health implements server.HealthSource.
func (s *Supervisor) Health() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.clients))
	for name, c := range s.clients {
		out[name] = string(c.State())
	}
	return out
}

func (s *Supervisor) guardianClient() (*mcpclient.Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.descs.Guardian(); ok {
		c, ok := s.clients[d.Name]
		return c, ok
	}
	return nil, false
}

func (s *Supervisor) allClients() []*mcpclient.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*mcpclient.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

// Start runs the ordered startup sequence: discover descriptors, spawn
// Guardian, spawn the remaining MCPs, build the route table, start the
// external watcher, start agents, start channel pollers, then the front
// server.
func (s *Supervisor) Start(ctx context.Context) error {
	fs := afs.New()
	workspace.EnsureDefault(fs)

	// 1. Discover internal MCPs; merge external entries.
	internalDescs, warnings, err := scanner.New(fs).Scan(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle: scan: %w", err)
	}
	for _, w := range warnings {
		s.logger.Printf("scanner warning: %s", w)
	}
	for _, d := range internalDescs {
		if !d.Enabled {
			continue
		}
		if err := s.descs.AddInternal(d); err != nil {
			s.logger.Printf("descriptor warning: %v", err)
		}
	}

	extPath := workspace.File(workspace.ExternalMCPsFile)
	extDescs, err := external.Load(extPath)
	if err != nil {
		s.logger.Printf("external mcps: %v (continuing with internal-only set)", err)
	}
	for _, d := range extDescs {
		if !d.Enabled {
			continue
		}
		if err := s.descs.AddExternal(d); err != nil {
			s.logger.Printf("external mcp warning: %v", err)
		}
	}

	// 2. Spawn the Guardian MCP first, blocking until available.
	if gd, ok := s.descs.Guardian(); ok {
		if err := s.spawnOne(ctx, gd); err != nil && gd.Required {
			return fmt.Errorf("lifecycle: required guardian mcp %q failed: %w", gd.Name, err)
		}
	}

	// 3. Spawn remaining MCPs concurrently; abort only on required failure.
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstRequiredErr error
	for _, d := range s.descs.All() {
		if d.Role == descriptor.RoleGuardian {
			continue
		}
		d := d
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.spawnOne(ctx, d); err != nil {
				s.logger.Printf("mcp %q failed to start: %v", d.Name, err)
				if d.Required {
					mu.Lock()
					if firstRequiredErr == nil {
						firstRequiredErr = fmt.Errorf("required mcp %q: %w", d.Name, err)
					}
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	if firstRequiredErr != nil {
		return firstRequiredErr
	}

	// 4. Build the route table.
	s.router = router.New(s.cfg.Router, s)
	if err := s.router.Rebuild(ctx, s.allClients()); err != nil {
		return fmt.Errorf("lifecycle: route table build: %w", err)
	}

	auditPath := workspace.File(s.cfg.Guardian.AuditLogFile)
	audit, err := guardian.OpenAuditLog(auditPath)
	if err != nil {
		return fmt.Errorf("lifecycle: audit log: %w", err)
	}
	s.audit = audit
	s.pipeline = guardian.New(s.cfg.Guardian, s, s.guardianClient, s.audit)

	// 5. Start the external-MCPs watcher.
	watcher, err := external.NewWatcher(extPath, s.onExternalDiff, s.logger)
	if err != nil {
		return fmt.Errorf("lifecycle: external watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("lifecycle: external watcher start: %w", err)
	}
	s.extWatcher = watcher

	// 6. Start agents.
	s.agents = agentmgr.New(s.cfg)
	s.subagents = subagent.New(s.cfg.Subagent, s.agents)
	for _, def := range s.cfg.Agents {
		s.agents.Register(def, def.PortHint, nil)
		s.agents.SetState(def.AgentID, agentmgr.StateReady)
	}

	// 7. Start the channel poller(s).
	pollerCtx, cancel := context.WithCancel(ctx)
	s.pollerCancel = cancel
	for _, d := range s.descs.All() {
		if d.Role != descriptor.RoleChannel {
			continue
		}
		p, err := channel.NewPoller(d, s.router, s.agents, s.agents, s.cfg.Channel, s.logger)
		if err != nil {
			s.logger.Printf("channel poller %q: %v", d.Name, err)
			continue
		}
		s.pollers = append(s.pollers, p)
		go p.Run(pollerCtx)
	}

	// 8. Start the front MCP server.
	s.front = server.New(s.cfg, s.router, s.pipeline, s.agents, s.subagents, s)
	s.front.RefreshPassthroughTools()

	return nil
}

func (s *Supervisor) spawnOne(ctx context.Context, d *descriptor.Descriptor) error {
	c := mcpclient.New(d, log.New(os.Stderr, fmt.Sprintf("[mcp:%s] ", d.Name), log.LstdFlags))
	if err := c.Initialize(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.clients[d.Name] = c
	s.mu.Unlock()
	return nil
}

// onExternalDiff adds/removes external descriptors and rebuilds the route
// table. Hot-reload always goes through the watcher's add/remove callbacks,
// never through direct mutation of a shared object.
func (s *Supervisor) onExternalDiff(added, removed []*descriptor.Descriptor) {
	ctx := context.Background()
	for _, d := range removed {
		s.mu.Lock()
		if c, ok := s.clients[d.Name]; ok {
			_ = c.Close()
			delete(s.clients, d.Name)
		}
		s.descs.Remove(d.Name)
		s.mu.Unlock()
	}
	for _, d := range added {
		if !d.Enabled {
			continue
		}
		if err := s.descs.AddExternal(d); err != nil {
			s.logger.Printf("external mcp warning: %v", err)
			continue
		}
		if err := s.spawnOne(ctx, d); err != nil {
			s.logger.Printf("external mcp %q failed to start: %v", d.Name, err)
		}
	}
	if err := s.router.Rebuild(ctx, s.allClients()); err != nil {
		s.logger.Printf("lifecycle: route table rebuild after external diff: %v", err)
		return
	}
	s.front.RefreshPassthroughTools()
}

// Front returns the wired MCP front server. Only valid after Start.
func (s *Supervisor) Front() *server.Front { return s.front }

// Routes returns the current route table. Only valid after Start.
func (s *Supervisor) Routes() []*router.Route { return s.router.All() }

// WaitForSignal blocks until SIGINT/SIGTERM or ctx is cancelled.
func (s *Supervisor) WaitForSignal(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
}

// Run starts the Supervisor and blocks until a termination signal arrives,
// then drains in the documented order.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	s.WaitForSignal(ctx)
	s.Shutdown(context.Background())
	return nil
}

// Shutdown drains every subsystem in the documented order: poller, external
// watcher, agents (cascade-kills subagents), then MCP clients.
func (s *Supervisor) Shutdown(ctx context.Context) {
	if s.pollerCancel != nil {
		s.pollerCancel()
	}
	if s.extWatcher != nil {
		s.extWatcher.Stop()
	}
	if s.agents != nil {
		for _, rt := range s.agents.All() {
			if rt.Def.IsSubagent {
				continue
			}
			if s.subagents != nil {
				s.subagents.CascadeKill(ctx, rt.AgentID)
			}
		}
		s.agents.StopAll(ctx)
	}

	// Each client's Close() tears down its own transport; no further
	// timeout is applied here.
	for _, c := range s.allClients() {
		_ = c.Close()
	}
	if s.audit != nil {
		_ = s.audit.Close()
	}
}
