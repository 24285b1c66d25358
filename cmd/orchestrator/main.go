// Command orchestrator runs the Fleetward MCP Orchestrator: discovers a
// fleet of MCP tool servers, supervises them, and presents a single
// aggregated MCP front with Guardian-wrapped, per-agent-policed dispatch.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	flags "github.com/jessevdk/go-flags"
	gopsagent "github.com/google/gops/agent"

	"github.com/fleetward/orchestrator/internal/workspace"
)

const version = "0.1.0"

func main() {
	Run(os.Args[1:])
}

// Run parses flags and executes the selected command.
func Run(args []string) {
	opts := &Options{}
	var first string
	if len(args) > 0 {
		first = args[0]
	}
	opts.Init(first)

	if hasVersionFlag(args) {
		fmt.Println(version)
		os.Exit(0)
	}

	if strings.TrimSpace(os.Getenv("ORCHESTRATOR_GOPS")) != "" {
		if err := gopsagent.Listen(gopsagent.Options{}); err != nil {
			log.Printf("gops agent: %v", err)
		} else {
			defer gopsagent.Close()
		}
	}

	envWS := strings.TrimSpace(os.Getenv("ORCHESTRATOR_WORKSPACE"))
	resolvedWS := workspace.Root()
	if envWS != "" {
		log.Printf("workspace: %s (from $ORCHESTRATOR_WORKSPACE)", resolvedWS)
	} else {
		log.Printf("workspace: %s (default, $ORCHESTRATOR_WORKSPACE not set)", resolvedWS)
	}

	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		log.Fatalf("%v", err)
	}

	if opts.Version {
		fmt.Println(version)
		os.Exit(0)
	}
}

func hasVersionFlag(args []string) bool {
	for _, a := range args {
		if a == "-v" || a == "--version" {
			return true
		}
	}
	return false
}
