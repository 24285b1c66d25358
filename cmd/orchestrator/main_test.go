package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_hasVersionFlag(t *testing.T) {
	assert.True(t, hasVersionFlag([]string{"-v"}))
	assert.True(t, hasVersionFlag([]string{"serve", "--version"}))
	assert.False(t, hasVersionFlag([]string{"serve", "--config", "x.yaml"}))
	assert.False(t, hasVersionFlag(nil))
}

func Test_Options_Init(t *testing.T) {
	o := &Options{}
	o.Init("serve")
	assert.NotNil(t, o.Serve)
	assert.Nil(t, o.MCP)

	o2 := &Options{}
	o2.Init("mcp")
	assert.NotNil(t, o2.MCP)

	o3 := &Options{}
	o3.Init("catalog")
	assert.NotNil(t, o3.Catalog)

	o4 := &Options{}
	o4.Init("unknown")
	assert.Nil(t, o4.Serve)
	assert.Nil(t, o4.MCP)
	assert.Nil(t, o4.Catalog)
}
