package main

import (
	"context"
	"fmt"
	"log"

	sdkserver "github.com/mark3labs/mcp-go/server"

	"github.com/fleetward/orchestrator/internal/config"
	"github.com/fleetward/orchestrator/internal/lifecycle"
	"github.com/fleetward/orchestrator/internal/workspace"
)

// ServeCmd starts the orchestrator: discovery, spawn, routing, and the
// front MCP server over stdio.
type ServeCmd struct{}

func (c *ServeCmd) Execute(args []string) error {
	cfgPath := workspace.File(workspace.ConfigFile)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("serve: load config: %w", err)
	}

	logger := log.Default()
	sup := lifecycle.New(cfg, logger)

	ctx := context.Background()
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("serve: startup failed: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- sdkserver.ServeStdio(sup.Front().MCPServer()) }()

	go func() {
		sup.WaitForSignal(ctx)
		done <- nil
	}()

	err = <-done
	sup.Shutdown(context.Background())
	return err
}
