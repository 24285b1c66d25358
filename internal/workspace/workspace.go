// Package workspace resolves the orchestrator's on-disk root and the
// conventional sub-directories ("kinds") configuration is read from and
// written to.
package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// envKey overrides the default workspace root.
	envKey = "ORCHESTRATOR_WORKSPACE"

	defaultRootDir = ".orchestrator"
)

// Predefined kinds. Callers may still use arbitrary sub-folder names.
const (
	KindMCP          = "mcp"          // internal MCP manifests, one <name>.yaml per MCP
	KindAgents       = "agents"       // agent definitions
	KindGuardian     = "guardian"     // guardian policy overrides
	KindAudit        = "audit"        // guardian JSONL audit logs
	ExternalMCPsFile = "external-mcps.json"
	ConfigFile       = "config.yaml"
)

var (
	cachedRoot string
	mu         sync.Mutex
)

// Root returns the absolute path to the orchestrator workspace directory.
// Lookup order: $ORCHESTRATOR_WORKSPACE, else ./.orchestrator under the
// current working directory. The result is cached for the process lifetime.
func Root() string {
	mu.Lock()
	defer mu.Unlock()
	if cachedRoot != "" {
		return cachedRoot
	}
	if env := os.Getenv(envKey); strings.TrimSpace(env) != "" {
		cachedRoot = abs(env)
	} else if wd, err := os.Getwd(); err == nil {
		cachedRoot = abs(filepath.Join(wd, defaultRootDir))
	} else {
		cachedRoot = abs(defaultRootDir)
	}
	_ = os.MkdirAll(cachedRoot, 0o755)
	return cachedRoot
}

// Path returns a sub-path under the root for the given kind, creating it if
// necessary.
func Path(kind string) string {
	dir := filepath.Join(Root(), kind)
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

// File returns an absolute path under the workspace root for a single
// top-level file (e.g. external-mcps.json, config.yaml).
func File(name string) string {
	return filepath.Join(Root(), name)
}

func abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	if a, err := filepath.Abs(p); err == nil {
		return a
	}
	return filepath.Clean(p)
}
