// Package config defines the orchestrator's top-level configuration value:
// router naming policy, the destructive-tool pattern set, Guardian
// flags/fail-mode, agent definitions and channel bindings. Built once at
// startup from $ORCHESTRATOR_WORKSPACE/config.yaml and threaded explicitly
// to the components that need it — no shared mutable singleton.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultDestructivePatterns is the documented default set of
// case-insensitive substrings marking a tool destructive. Configurable via
// RouterConfig.DestructivePatterns.
var defaultDestructivePatterns = []string{
	"delete", "remove", "destroy", "drop", "truncate", "purge", "wipe", "erase",
}

// FailMode is the Guardian-outage behavior.
type FailMode string

const (
	FailOpen   FailMode = "open"
	FailClosed FailMode = "closed"
)

// RouterConfig configures the tool router's naming policy.
type RouterConfig struct {
	Separator             string   `yaml:"separator"`
	AlwaysPrefix          bool     `yaml:"alwaysPrefix"`
	DestructivePatterns   []string `yaml:"destructivePatterns,omitempty"`
	CatalogTruncateLimit  int      `yaml:"catalogTruncateLimit"`
}

// GuardianConfig configures the Guardian scanning pipeline.
type GuardianConfig struct {
	Enabled      bool     `yaml:"enabled"`
	FailMode     FailMode `yaml:"failMode"`
	DefaultInput bool     `yaml:"defaultInput"`
	DefaultOutput bool    `yaml:"defaultOutput"`
	AuditLogFile string   `yaml:"auditLogFile"`
}

// AgentPolicy is an agent's allow/deny tool-name globs plus its per-agent
// Guardian scan overrides.
type AgentPolicy struct {
	AllowedTools          []string `yaml:"allowedTools,omitempty"`
	DeniedTools           []string `yaml:"deniedTools,omitempty"`
	GuardianInputOverride *bool    `yaml:"guardianInputOverride,omitempty"`
	GuardianOutputOverride *bool   `yaml:"guardianOutputOverride,omitempty"`
}

// AgentDefinition describes one configured agent process.
type AgentDefinition struct {
	AgentID                string      `yaml:"agentId"`
	Command                string      `yaml:"command"`
	Args                   []string    `yaml:"args,omitempty"`
	Env                    map[string]string `yaml:"env,omitempty"`
	PortHint               int         `yaml:"portHint,omitempty"`
	Policy                 AgentPolicy `yaml:"policy,omitempty"`
	IsSubagent             bool        `yaml:"isSubagent,omitempty"`
	ParentAgentID          string      `yaml:"parentAgentId,omitempty"`
	MaxConcurrentSubagents int         `yaml:"maxConcurrentSubagents,omitempty"`
	IsDefault              bool        `yaml:"isDefault,omitempty"`
}

// ChannelBindingKey identifies a (channel, chatId) pair.
type ChannelBindingKey struct {
	Channel string `yaml:"channel"`
	ChatID  string `yaml:"chatId"`
}

// ChannelBindingEntry is one entry of the bindings list in config.yaml.
type ChannelBindingEntry struct {
	Channel string `yaml:"channel"`
	ChatID  string `yaml:"chatId"`
	AgentID string `yaml:"agentId"`
}

// SubagentConfig bounds global subagent concurrency and defaults.
type SubagentConfig struct {
	GlobalMaxConcurrent int `yaml:"globalMaxConcurrent"`
	DefaultTimeoutMinutes int `yaml:"defaultTimeoutMinutes"`
	MaxTimeoutMinutes   int `yaml:"maxTimeoutMinutes"`
	KillGraceMs         int `yaml:"killGraceMs"`
	PortRangeStart      int `yaml:"portRangeStart"`
	PortRangeEnd        int `yaml:"portRangeEnd"`
}

// ChannelConfig bounds polling defaults.
type ChannelConfig struct {
	DefaultIntervalMs    int `yaml:"defaultIntervalMs"`
	MinIntervalMs        int `yaml:"minIntervalMs"`
	ChatRefreshMs        int `yaml:"chatRefreshMs"`
	DefaultMaxMessageAgeMs int `yaml:"defaultMaxMessageAgeMs"`
	MaxMessagesPerCycle  int `yaml:"maxMessagesPerCycle"`
	LRUKeepSize          int `yaml:"lruKeepSize"`
	LRUCapSize           int `yaml:"lruCapSize"`
}

// Config is the Orchestrator's full configuration value.
type Config struct {
	Router   RouterConfig          `yaml:"router"`
	Guardian GuardianConfig        `yaml:"guardian"`
	Agents   []AgentDefinition     `yaml:"agents,omitempty"`
	Bindings []ChannelBindingEntry `yaml:"bindings,omitempty"`
	Subagent SubagentConfig        `yaml:"subagent"`
	Channel  ChannelConfig         `yaml:"channel"`
}

// Default returns a Config populated with the documented stock defaults.
func Default() *Config {
	return &Config{
		Router: RouterConfig{
			Separator:            "_",
			AlwaysPrefix:         false,
			DestructivePatterns:  append([]string(nil), defaultDestructivePatterns...),
			CatalogTruncateLimit: 50,
		},
		Guardian: GuardianConfig{
			Enabled:       true,
			FailMode:      FailClosed,
			DefaultInput:  false,
			DefaultOutput: false,
			AuditLogFile:  "guardian-audit.jsonl",
		},
		Subagent: SubagentConfig{
			GlobalMaxConcurrent:   20,
			DefaultTimeoutMinutes: 5,
			MaxTimeoutMinutes:     30,
			KillGraceMs:           5000,
			PortRangeStart:        20000,
			PortRangeEnd:          21000,
		},
		Channel: ChannelConfig{
			DefaultIntervalMs:      10_000,
			MinIntervalMs:          1_000,
			ChatRefreshMs:          5 * 60 * 1000,
			DefaultMaxMessageAgeMs: 2 * 60 * 1000,
			MaxMessagesPerCycle:    3,
			LRUKeepSize:            500,
			LRUCapSize:             1000,
		},
	}
}

// Load reads and merges path onto Default(); a missing file yields the pure
// default configuration.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if len(cfg.Router.DestructivePatterns) == 0 {
		cfg.Router.DestructivePatterns = append([]string(nil), defaultDestructivePatterns...)
	}
	if cfg.Router.Separator == "" {
		cfg.Router.Separator = "_"
	}
	if cfg.Router.CatalogTruncateLimit <= 0 {
		cfg.Router.CatalogTruncateLimit = 50
	}
	return cfg, nil
}

// DefaultAgent returns the configured default agent, if any.
func (c *Config) DefaultAgent() (AgentDefinition, bool) {
	for _, a := range c.Agents {
		if a.IsDefault {
			return a, true
		}
	}
	if len(c.Agents) == 1 {
		return c.Agents[0], true
	}
	return AgentDefinition{}, false
}

// ResolveBinding looks up the agent bound to (channel, chatId), falling back
// to the default agent.
func (c *Config) ResolveBinding(channel, chatID string) (string, bool) {
	for _, b := range c.Bindings {
		if b.Channel == channel && b.ChatID == chatID {
			return b.AgentID, true
		}
	}
	if a, ok := c.DefaultAgent(); ok {
		return a.AgentID, true
	}
	return "", false
}
