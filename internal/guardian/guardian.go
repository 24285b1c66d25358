// Package guardian implements a middleware decorator around the router's
// dispatch point that optionally scans tool-call arguments (input) and
// results (output) through the Guardian MCP, honoring fail-open/fail-closed
// semantics on Guardian outage and writing an append-only JSONL audit
// trail.
//
// The scan-then-classify shape is modeled on Jint8888-Pocket-Omega's
// security scanner (severity-rated findings from a scan call), replacing
// its static regex rules with a call out to a dedicated Guardian MCP.
package guardian

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetward/orchestrator/internal/config"
	"github.com/fleetward/orchestrator/internal/mcpclient"
	"github.com/fleetward/orchestrator/internal/policy"
	"github.com/fleetward/orchestrator/internal/router"
)

// Direction is the scan direction.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// ScanResult is the Guardian MCP's verdict for one scan.
type ScanResult struct {
	Safe       bool
	Confidence float64
	Threats    []string
	Model      string
	Reason     string
}

// MCPFlags is a per-MCP default (input, output) scan pair, sourced from the
// manifest's guardianScan field.
type MCPFlags struct {
	Input  bool
	Output bool
}

// FlagSource resolves per-MCP default flags by name.
type FlagSource interface {
	MCPFlags(mcpName string) (MCPFlags, bool)
}

// Pipeline wraps a Router with Guardian scanning.
type Pipeline struct {
	cfg      config.GuardianConfig
	flags    FlagSource
	guardian func() (*mcpclient.Client, bool) // resolves the live Guardian client
	audit    *AuditLog
}

// New constructs a Pipeline. guardianClient resolves the current Guardian
// MCP client (nil-able — Guardian may not be configured, or may currently
// be down); flags resolves per-MCP manifest defaults.
func New(cfg config.GuardianConfig, flags FlagSource, guardianClient func() (*mcpclient.Client, bool), audit *AuditLog) *Pipeline {
	return &Pipeline{cfg: cfg, flags: flags, guardian: guardianClient, audit: audit}
}

// effectiveFlags merges global default -> per-MCP -> per-agent override,
// lowest to highest precedence.
func effectiveFlags(globalInput, globalOutput bool, mcp MCPFlags, mcpKnown bool, agentInputOverride, agentOutputOverride *bool) (input, output bool) {
	input, output = globalInput, globalOutput
	if mcpKnown {
		input, output = mcp.Input, mcp.Output
	}
	if agentInputOverride != nil {
		input = *agentInputOverride
	}
	if agentOutputOverride != nil {
		output = *agentOutputOverride
	}
	return input, output
}

// Dispatch runs the full Guardian-wrapped dispatch: effective-flag
// resolution, input scan, forward to router, output scan.
func (p *Pipeline) Dispatch(ctx context.Context, r *router.Router, exposedName string, args map[string]interface{}, agentID string, m *policy.Matcher, agentPolicy config.AgentPolicy) mcpclient.CallResult {
	route, ok := r.Get(exposedName)
	if !ok {
		_, result := r.Dispatch(ctx, exposedName, args, agentID, m)
		return result
	}

	// Guardian never scans its own traffic: avoids infinite recursion.
	if guardianClient, ok := p.guardian(); ok && route.MCPName == guardianClient.Descriptor().Name {
		_, result := r.Dispatch(ctx, exposedName, args, agentID, m)
		return result
	}

	if !p.cfg.Enabled {
		_, result := r.Dispatch(ctx, exposedName, args, agentID, m)
		return result
	}

	var mcpFlags MCPFlags
	var mcpKnown bool
	if p.flags != nil {
		mcpFlags, mcpKnown = p.flags.MCPFlags(route.MCPName)
	}
	inputFlag, outputFlag := effectiveFlags(p.cfg.DefaultInput, p.cfg.DefaultOutput, mcpFlags, mcpKnown, agentPolicy.GuardianInputOverride, agentPolicy.GuardianOutputOverride)

	if inputFlag {
		argsJSON, _ := json.Marshal(args)
		verdict, err := p.scan(ctx, DirectionInput, exposedName, route.MCPName, argsJSON)
		if err != nil {
			if p.cfg.FailMode == config.FailClosed {
				return mcpclient.CallResult{OK: false, Kind: mcpclient.KindTransport, Err: fmt.Errorf("security service unavailable")}
			}
			// fail-open: proceed without a recorded verdict.
		} else if !verdict.Safe {
			return mcpclient.CallResult{OK: false, Kind: mcpclient.KindSecurityBlocked, Err: fmt.Errorf("blocked by security policy: %s", verdict.Reason)}
		}
	}

	_, result := r.Dispatch(ctx, exposedName, args, agentID, m)
	if !result.OK || !outputFlag {
		return result
	}

	verdict, err := p.scan(ctx, DirectionOutput, exposedName, route.MCPName, []byte(result.Content))
	if err != nil {
		if p.cfg.FailMode == config.FailClosed {
			return mcpclient.CallResult{OK: false, Kind: mcpclient.KindTransport, Err: fmt.Errorf("security service unavailable (output scan)")}
		}
		return result
	}
	if !verdict.Safe {
		// The side effect has already occurred; the block only replaces the
		// surfaced result.
		return mcpclient.CallResult{OK: false, Kind: mcpclient.KindSecurityBlocked, Err: fmt.Errorf("blocked by security policy: %s", verdict.Reason)}
	}
	return result
}

// scan calls the Guardian MCP's "scan" tool and records the audit entry.
func (p *Pipeline) scan(ctx context.Context, dir Direction, tool, mcp string, content []byte) (ScanResult, error) {
	client, ok := p.guardian()
	if !ok {
		return ScanResult{}, fmt.Errorf("guardian mcp not available")
	}

	start := time.Now()
	res := client.CallTool(ctx, "scan", map[string]interface{}{
		"direction": string(dir),
		"tool":      tool,
		"mcp":       mcp,
		"content":   string(content),
	})
	latency := time.Since(start)

	var verdict ScanResult
	var scanErr error
	if !res.OK {
		scanErr = res.Err
	} else if err := json.Unmarshal([]byte(res.Content), &verdict); err != nil {
		scanErr = fmt.Errorf("guardian: malformed scan response: %w", err)
	}

	sum := sha256.Sum256(content)
	entry := AuditEntry{
		ScanID:        uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Source:        string(dir),
		Tool:          tool,
		MCP:           mcp,
		ContentHash:   hex.EncodeToString(sum[:]),
		ContentLength: len(content),
		Safe:          scanErr == nil && verdict.Safe,
		Confidence:    verdict.Confidence,
		Threats:       verdict.Threats,
		Model:         verdict.Model,
		LatencyMs:     latency.Milliseconds(),
	}
	if p.audit != nil {
		_ = p.audit.Append(entry)
	}
	return verdict, scanErr
}

// MCPFlagsFromDescriptorDefault converts a manifest's guardianScan into
// MCPFlags (helper for descriptor-backed FlagSource implementations).
func MCPFlagsFromDescriptorDefault(input, output bool) MCPFlags {
	return MCPFlags{Input: input, Output: output}
}
