package mcpclient

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetward/orchestrator/internal/descriptor"
)

func Test_New_defaultsUnstarted(t *testing.T) {
	c := New(&descriptor.Descriptor{Name: "fs"}, nil)
	assert.Equal(t, StateUnstarted, c.State())
	assert.False(t, c.IsAvailable())
	assert.Equal(t, "fs", c.Name())
}

func Test_childEnv_blocksTransportVarsAndMergesOverrides(t *testing.T) {
	os.Setenv("MCP_TRANSPORT", "sse")
	defer os.Unsetenv("MCP_TRANSPORT")

	env := childEnv(map[string]string{"FOO": "bar"})

	for _, kv := range env {
		assert.False(t, strings.HasPrefix(kv, "MCP_TRANSPORT="), "blocked var leaked through: %s", kv)
	}
	assert.Contains(t, env, "FOO=bar")
}

func Test_isTransportFatal(t *testing.T) {
	assert.False(t, isTransportFatal(nil))
	assert.True(t, isTransportFatal(errors.New("write: broken pipe")))
	assert.True(t, isTransportFatal(errors.New("use of closed network connection")))
	assert.True(t, isTransportFatal(io.EOF))
	assert.True(t, isTransportFatal(io.ErrClosedPipe))
	assert.False(t, isTransportFatal(errors.New("tool not found")))
}

func Test_CallTool_unavailableClient(t *testing.T) {
	c := New(&descriptor.Descriptor{Name: "fs"}, nil)
	res := c.CallTool(context.Background(), "read_file", nil)
	assert.False(t, res.OK)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "temporarily unavailable")
	assert.Equal(t, KindTransport, res.Kind)
}

func Test_ListTools_unavailableClient(t *testing.T) {
	c := New(&descriptor.Descriptor{Name: "fs"}, nil)
	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	assert.Nil(t, tools)
}

func Test_HealthCheck_unavailableClient(t *testing.T) {
	c := New(&descriptor.Descriptor{Name: "fs"}, nil)
	assert.False(t, c.HealthCheck(context.Background()))
}

func Test_markDegraded_onlyFromAvailable(t *testing.T) {
	c := New(&descriptor.Descriptor{Name: "fs"}, nil)
	c.setState(StateAvailable)
	c.markDegraded()
	assert.Equal(t, StateDegraded, c.State())

	c.setState(StateClosed)
	c.markDegraded()
	assert.Equal(t, StateClosed, c.State(), "markDegraded only downgrades from Available")
}

func Test_Restart_exhaustedWindow(t *testing.T) {
	c := New(&descriptor.Descriptor{Name: "fs"}, nil)
	now := time.Now()
	for i := 0; i < restartMax; i++ {
		c.restartAt = append(c.restartAt, now)
	}
	err := c.Restart(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restart attempts exhausted")
}

func Test_Close_safeWhenNeverInitialized(t *testing.T) {
	c := New(&descriptor.Descriptor{Name: "fs"}, nil)
	assert.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
}
