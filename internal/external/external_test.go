package external

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetward/orchestrator/internal/descriptor"
)

func Test_Parse_emptyDocument(t *testing.T) {
	descs, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, descs)

	descs, err = Parse([]byte("{}"))
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func Test_Parse_stdioAndHTTP(t *testing.T) {
	raw := []byte(`{"mcps":[
		{"name":"fs","transport":"stdio","command":"fs-mcp"},
		{"name":"web","transport":"http","url":"http://localhost:9000"}
	]}`)
	descs, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, descs, 2)

	byName := map[string]*descriptor.Descriptor{}
	for _, d := range descs {
		byName[d.Name] = d
	}
	assert.Equal(t, descriptor.OriginExternalStdio, byName["fs"].Origin)
	assert.Equal(t, descriptor.OriginExternalHTTP, byName["web"].Origin)
	assert.True(t, byName["fs"].Enabled, "enabled defaults true when omitted")
}

func Test_Parse_duplicateName(t *testing.T) {
	raw := []byte(`{"mcps":[{"name":"fs","transport":"stdio","command":"a"},{"name":"fs","transport":"stdio","command":"b"}]}`)
	_, err := Parse(raw)
	assert.Error(t, err)
}

func Test_Parse_malformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{not json`))
	assert.Error(t, err)
}

func Test_Parse_disabledEntry(t *testing.T) {
	raw := []byte(`{"mcps":[{"name":"fs","transport":"stdio","command":"a","enabled":false}]}`)
	descs, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.False(t, descs[0].Enabled)
}

func Test_Load_missingFileIsEmpty(t *testing.T) {
	descs, err := Load("/nonexistent/path/external-mcps.json")
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func Test_Diff(t *testing.T) {
	a := &descriptor.Descriptor{Name: "a"}
	b := &descriptor.Descriptor{Name: "b"}
	c := &descriptor.Descriptor{Name: "c"}

	added, removed := Diff([]*descriptor.Descriptor{a, b}, []*descriptor.Descriptor{b, c})
	require.Len(t, added, 1)
	require.Len(t, removed, 1)
	assert.Equal(t, "c", added[0].Name)
	assert.Equal(t, "a", removed[0].Name)
}
