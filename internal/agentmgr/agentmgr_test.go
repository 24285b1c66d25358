package agentmgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetward/orchestrator/internal/channel"
	"github.com/fleetward/orchestrator/internal/config"
)

type fakeHandle struct {
	stopped bool
	alive   bool
}

func (h *fakeHandle) Stop(ctx context.Context) error {
	h.stopped = true
	h.alive = false
	return nil
}

func (h *fakeHandle) Alive() bool { return h.alive }

func Test_Register_Get_Unregister(t *testing.T) {
	m := New(&config.Config{})
	def := config.AgentDefinition{AgentID: "main"}
	rt := m.Register(def, 9001, &fakeHandle{alive: true})
	assert.Equal(t, StateStarting, rt.State)

	got, ok := m.Get("main")
	require.True(t, ok)
	assert.Same(t, rt, got)

	m.Unregister("main")
	_, ok = m.Get("main")
	assert.False(t, ok)
}

func Test_SetState(t *testing.T) {
	m := New(&config.Config{})
	m.Register(config.AgentDefinition{AgentID: "main"}, 9001, &fakeHandle{})
	m.SetState("main", StateReady)
	rt, _ := m.Get("main")
	assert.Equal(t, StateReady, rt.State)

	m.SetState("nonexistent", StateReady)
}

func Test_Status(t *testing.T) {
	m := New(&config.Config{})
	m.Register(config.AgentDefinition{AgentID: "main"}, 9001, &fakeHandle{})
	m.Register(config.AgentDefinition{AgentID: "main-sub-1", IsSubagent: true, ParentAgentID: "main"}, 9002, &fakeHandle{})
	m.SetState("main", StateReady)

	entries := m.Status()
	require.Len(t, entries, 2)

	byID := map[string]StatusEntry{}
	for _, e := range entries {
		byID[e.AgentID] = e
	}
	assert.True(t, byID["main"].Available)
	assert.False(t, byID["main-sub-1"].Available)
	assert.True(t, byID["main-sub-1"].IsSubagent)
	assert.Equal(t, "main", byID["main-sub-1"].ParentAgentID)
}

func Test_ActiveSubagents(t *testing.T) {
	rt := newRuntime(config.AgentDefinition{AgentID: "main"}, 9001, &fakeHandle{})
	rt.AddSubagent("main-sub-1")
	rt.AddSubagent("main-sub-2")
	assert.ElementsMatch(t, []string{"main-sub-1", "main-sub-2"}, rt.ActiveSubagents())

	rt.RemoveSubagent("main-sub-1")
	assert.Equal(t, []string{"main-sub-2"}, rt.ActiveSubagents())
}

func Test_StopAll(t *testing.T) {
	m := New(&config.Config{})
	h := &fakeHandle{alive: true}
	m.Register(config.AgentDefinition{AgentID: "main"}, 9001, h)
	m.SetState("main", StateReady)

	m.StopAll(context.Background())

	assert.True(t, h.stopped)
	rt, _ := m.Get("main")
	assert.Equal(t, StateExited, rt.State)
}

func Test_OnMessage_unknownAgent(t *testing.T) {
	m := New(&config.Config{})
	err := m.OnMessage(context.Background(), channel.Message{AgentID: "ghost"})
	assert.Error(t, err)
}
