package main

import (
	"context"
	"fmt"

	flags "github.com/jessevdk/go-flags"
	"github.com/viant/afs"

	"github.com/fleetward/orchestrator/internal/mcpclient"
	"github.com/fleetward/orchestrator/internal/scanner"
)

// MCPCmd groups MCP-inspection sub-commands.
type MCPCmd struct {
	List   *MCPListCmd   `command:"list" description:"List discovered internal MCPs"`
	Health *MCPHealthCmd `command:"health" description:"Spawn every discovered MCP and report health"`
}

func (c *MCPCmd) Execute(args []string) error { return flags.ErrHelp }

// MCPListCmd lists descriptors discovered by the scanner without spawning
// any child process.
type MCPListCmd struct{}

func (c *MCPListCmd) Execute(args []string) error {
	descs, warnings, err := scanner.New(afs.New()).Scan(context.Background())
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Println("warning:", w)
	}
	for _, d := range descs {
		fmt.Printf("%-20s origin=%-16s role=%-10s required=%-5v enabled=%v\n", d.Name, d.Origin, d.Role, d.Required, d.Enabled)
	}
	return nil
}

// MCPHealthCmd spawns every discovered MCP and reports its resulting state.
type MCPHealthCmd struct{}

func (c *MCPHealthCmd) Execute(args []string) error {
	descs, _, err := scanner.New(afs.New()).Scan(context.Background())
	if err != nil {
		return err
	}
	ctx := context.Background()
	for _, d := range descs {
		if !d.Enabled {
			fmt.Printf("%-20s disabled\n", d.Name)
			continue
		}
		cl := mcpclient.New(d, nil)
		err := cl.Initialize(ctx)
		state := cl.State()
		if err != nil {
			fmt.Printf("%-20s state=%-10s error=%v\n", d.Name, state, err)
		} else {
			fmt.Printf("%-20s state=%-10s\n", d.Name, state)
		}
		_ = cl.Close()
	}
	return nil
}
