package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/fleetward/orchestrator/internal/config"
	"github.com/fleetward/orchestrator/internal/lifecycle"
	"github.com/fleetward/orchestrator/internal/workspace"
)

// CatalogCmd runs the full startup sequence (spawning every MCP, starting
// the external watcher and channel pollers, registering agents), prints the
// route table as JSON, then shuts down. The front server is built but never
// served.
type CatalogCmd struct{}

func (c *CatalogCmd) Execute(args []string) error {
	cfg, err := config.Load(workspace.File(workspace.ConfigFile))
	if err != nil {
		return fmt.Errorf("catalog: load config: %w", err)
	}

	sup := lifecycle.New(cfg, log.Default())
	ctx := context.Background()
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("catalog: startup failed: %w", err)
	}
	defer sup.Shutdown(context.Background())

	body, err := json.MarshalIndent(sup.Routes(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	return nil
}
