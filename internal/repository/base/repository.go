// Package baserepo implements generic YAML/JSON CRUD over a workspace kind
// directory. The scanner uses it to read internal MCP manifests.
package baserepo

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"github.com/fleetward/orchestrator/internal/workspace"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"gopkg.in/yaml.v3"
)

// Repository generic CRUD for YAML/JSON resources stored under
// $ORCHESTRATOR_WORKSPACE/<kind>/.
type Repository[T any] struct {
	fs  afs.Service
	dir string
}

// New constructs a repository for a specific workspace kind (e.g. "agents").
func New[T any](fs afs.Service, kind string) *Repository[T] {
	return &Repository[T]{fs: fs, dir: workspace.Path(kind)}
}

// Dir returns the backing directory.
func (r *Repository[T]) Dir() string { return r.dir }

// filename resolves name to an absolute path with a .yaml default extension.
func (r *Repository[T]) filename(name string) string {
	if filepath.Ext(name) == "" {
		name += ".yaml"
	}
	return filepath.Join(r.dir, name)
}

// List returns the names of the entries under the repository root:
// sub-directory names as they are, file names without their extension.
func (r *Repository[T]) List(ctx context.Context) ([]string, error) {
	objs, err := r.fs.List(ctx, r.dir)
	if err != nil {
		return nil, err
	}
	var res []string
	for _, o := range objs {
		if o.IsDir() {
			res = append(res, filepath.Base(o.Name()))
			continue
		}
		base := filepath.Base(o.Name())
		res = append(res, strings.TrimSuffix(base, filepath.Ext(base)))
	}
	return res, nil
}

// GetRaw downloads raw bytes for name.
func (r *Repository[T]) GetRaw(ctx context.Context, name string) ([]byte, error) {
	return r.fs.DownloadWithURL(ctx, r.filename(name))
}

// Load unmarshals YAML/JSON into *T.
func (r *Repository[T]) Load(ctx context.Context, name string) (*T, error) {
	data, err := r.GetRaw(ctx, name)
	if err != nil {
		return nil, err
	}
	var v T
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Save marshals obj to YAML and writes it under name.
func (r *Repository[T]) Save(ctx context.Context, name string, obj *T) error {
	data, err := yaml.Marshal(obj)
	if err != nil {
		return err
	}
	return r.Add(ctx, name, data)
}

// Add uploads raw data under name, overwriting any existing entry.
func (r *Repository[T]) Add(ctx context.Context, name string, data []byte) error {
	return r.fs.Upload(ctx, r.filename(name), file.DefaultFileOsMode, bytes.NewReader(data))
}

// Delete removes name.
func (r *Repository[T]) Delete(ctx context.Context, name string) error {
	return r.fs.Delete(ctx, r.filename(name))
}
