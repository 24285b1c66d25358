// Package scanner reads the workspace's mcp/ directory: for every entry
// <name> listed there it parses the manifest file mcp/<name>.yaml and yields
// validated descriptors. A sub-directory <name> is read only through that
// sibling file; files inside sub-directories are not read.
//
// Grounded on viant-agently's afs-backed repository-load pattern,
// generalized here to a directory walk over internal/repository/base's
// Repository.List/Load.
package scanner

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/viant/afs"

	baserepo "github.com/fleetward/orchestrator/internal/repository/base"
	"github.com/fleetward/orchestrator/internal/descriptor"
	"github.com/fleetward/orchestrator/internal/workspace"
)

// manifest is the on-disk shape of $ORCHESTRATOR_WORKSPACE/mcp/<name>.yaml.
type manifest struct {
	descriptor.Descriptor `yaml:",inline"`
}

// Scanner discovers internally-configured MCPs from the workspace.
type Scanner struct {
	repo *baserepo.Repository[manifest]
}

// New constructs a Scanner backed by fs.
func New(fs afs.Service) *Scanner {
	return &Scanner{repo: baserepo.New[manifest](fs, workspace.KindMCP)}
}

// envSwitchName computes the enable-switch environment variable name for an
// MCP. Precedence: manifest "enabled" field first, then
// $<NAME>_MCP_ENABLED, then default-enabled.
func envSwitchName(mcpName string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, mcpName)
	return strings.ToUpper(sanitized) + "_MCP_ENABLED"
}

// resolveEnabled applies the enable-switch precedence: explicit manifest
// field wins; otherwise the environment variable; otherwise default-on.
func resolveEnabled(name string, manifestSetEnabled bool, manifestEnabled bool) bool {
	if manifestSetEnabled {
		return manifestEnabled
	}
	if v := os.Getenv(envSwitchName(name)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return true
}

// Scan lists the mcp/ workspace directory and returns one descriptor per
// mcp/<name>.yaml manifest, skipping (and logging, via the returned warnings
// slice) entries that fail validation rather than aborting the whole scan.
func (s *Scanner) Scan(ctx context.Context) (descs []*descriptor.Descriptor, warnings []string, err error) {
	names, err := s.repo.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("scanner: list %s: %w", s.repo.Dir(), err)
	}

	for _, name := range names {
		raw, err := s.repo.GetRaw(ctx, name)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("scanner: %s: read failed: %v", name, err))
			continue
		}

		m, err := s.repo.Load(ctx, name)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("scanner: %s: parse failed: %v", name, err))
			continue
		}
		d := m.Descriptor
		if d.Name == "" {
			d.Name = name
		}
		d.Origin = descriptor.OriginInternal

		manifestSetEnabled := strings.Contains(string(raw), "enabled:")
		d.Enabled = resolveEnabled(d.Name, manifestSetEnabled, d.Enabled)

		if err := d.Validate(); err != nil {
			warnings = append(warnings, fmt.Sprintf("scanner: %s: %v", name, err))
			continue
		}
		descs = append(descs, &d)
	}
	return descs, warnings, nil
}
