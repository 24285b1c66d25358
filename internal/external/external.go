// Package external loads and validates external-mcps.json, and debounces
// hot-reload via fsnotify, emitting (added, removed) descriptor diffs to a
// caller-supplied callback.
//
// The debounce/dispatch shape is modeled on viant-agently's workspace
// watcher (fsnotify Watcher + debounce-map + single dispatch goroutine),
// narrowed here to a single JSON file instead of a directory tree of YAML
// resources.
package external

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fleetward/orchestrator/internal/descriptor"
)

// entry is the on-disk shape of one external-mcps.json record.
type entry struct {
	Name                  string            `json:"name"`
	Transport             string            `json:"transport"` // "stdio" | "http"
	Command               string            `json:"command,omitempty"`
	Args                  []string          `json:"args,omitempty"`
	Dir                   string            `json:"dir,omitempty"`
	Env                   map[string]string `json:"env,omitempty"`
	URL                   string            `json:"url,omitempty"`
	Headers               map[string]string `json:"headers,omitempty"`
	TimeoutMs             int               `json:"timeoutMs,omitempty"`
	Required              bool              `json:"required,omitempty"`
	Sensitive             bool              `json:"sensitive,omitempty"`
	Role                  string            `json:"role,omitempty"`
	AllowDestructiveTools bool              `json:"allowDestructiveTools,omitempty"`
	Enabled               *bool             `json:"enabled,omitempty"`
}

// document is the top-level external-mcps.json shape: {"mcps": [...]}. An
// empty object ({}) is a valid, empty document.
type document struct {
	MCPs []entry `json:"mcps"`
}

// Parse validates raw bytes and converts them into descriptors. Malformed
// JSON or an invalid entry is a single error for the whole document — the
// caller is expected to keep serving the previous snapshot on error; a
// malformed file must never evict what was already loaded.
func Parse(raw []byte) ([]*descriptor.Descriptor, error) {
	var doc document
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("external: invalid json: %w", err)
	}

	out := make([]*descriptor.Descriptor, 0, len(doc.MCPs))
	seen := map[string]bool{}
	for i, e := range doc.MCPs {
		if e.Name == "" {
			return nil, fmt.Errorf("external: entry %d: name is required", i)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("external: duplicate name %q in external-mcps.json", e.Name)
		}
		seen[e.Name] = true

		origin := descriptor.OriginExternalStdio
		if e.Transport == "http" || e.Transport == "sse" {
			origin = descriptor.OriginExternalHTTP
		}

		d := &descriptor.Descriptor{
			Name:      e.Name,
			Origin:    origin,
			TimeoutMs: e.TimeoutMs,
			Required:  e.Required,
			Sensitive: e.Sensitive,
			Role:      descriptor.Role(e.Role),
			AllowDestructiveTools: e.AllowDestructiveTools,
			Enabled:   e.Enabled == nil || *e.Enabled,
			Entrypoint: descriptor.Entrypoint{
				Command: e.Command,
				Args:    e.Args,
				Dir:     e.Dir,
				Env:     e.Env,
				URL:     e.URL,
				Headers: e.Headers,
			},
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("external: entry %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Load reads and parses path from disk.
func Load(path string) ([]*descriptor.Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("external: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Diff computes descriptors present in next but not prev (added) and
// descriptors present in prev but not next (removed), keyed by name.
func Diff(prev, next []*descriptor.Descriptor) (added, removed []*descriptor.Descriptor) {
	prevByName := map[string]*descriptor.Descriptor{}
	for _, d := range prev {
		prevByName[d.Name] = d
	}
	nextByName := map[string]*descriptor.Descriptor{}
	for _, d := range next {
		nextByName[d.Name] = d
	}
	for name, d := range nextByName {
		if _, ok := prevByName[name]; !ok {
			added = append(added, d)
		}
	}
	for name, d := range prevByName {
		if _, ok := nextByName[name]; !ok {
			removed = append(removed, d)
		}
	}
	return added, removed
}
