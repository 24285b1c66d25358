package workspace

import (
	"context"
	"os"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
)

// EnsureDefault seeds a fresh workspace with an empty external-mcps.json so
// the loader/watcher (internal/external) always has a file to watch.
func EnsureDefault(fs afs.Service) {
	ctx := context.Background()
	path := File(ExternalMCPsFile)
	if _, err := os.Stat(path); err == nil {
		return
	}
	_ = fs.Upload(ctx, path, file.DefaultFileOsMode, strings.NewReader("{}\n"))
}
