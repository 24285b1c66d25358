package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetward/orchestrator/internal/config"
	"github.com/fleetward/orchestrator/internal/descriptor"
	"github.com/fleetward/orchestrator/internal/guardian"
	"github.com/fleetward/orchestrator/internal/mcpclient"
)

func Test_New_startsEmpty(t *testing.T) {
	s := New(&config.Config{}, nil)
	assert.Empty(t, s.allClients())
	_, ok := s.Client("fs")
	assert.False(t, ok)
}

func Test_MCPFlags_unknownDescriptor(t *testing.T) {
	s := New(&config.Config{}, nil)
	_, ok := s.MCPFlags("fs")
	assert.False(t, ok)
}

func Test_MCPFlags_fromDescriptorDefault(t *testing.T) {
	s := New(&config.Config{}, nil)
	require.NoError(t, s.descs.AddInternal(&descriptor.Descriptor{
		Name:         "fs",
		Entrypoint:   descriptor.Entrypoint{Command: "fs-mcp"},
		GuardianScan: descriptor.GuardianScan{Input: true, Output: false},
	}))

	flags, ok := s.MCPFlags("fs")
	require.True(t, ok)
	assert.Equal(t, guardian.MCPFlags{Input: true, Output: false}, flags)
}

func Test_Health_reportsClientStates(t *testing.T) {
	s := New(&config.Config{}, nil)
	c := mcpclient.New(&descriptor.Descriptor{Name: "fs"}, nil)
	s.clients["fs"] = c

	health := s.Health()
	assert.Equal(t, "unstarted", health["fs"])
}

func Test_guardianClient_missingWhenNoGuardianDescriptor(t *testing.T) {
	s := New(&config.Config{}, nil)
	_, ok := s.guardianClient()
	assert.False(t, ok)
}

func Test_Shutdown_noopOnUnstartedSupervisor(t *testing.T) {
	s := New(&config.Config{}, nil)
	assert.NotPanics(t, func() { s.Shutdown(context.Background()) })
}
