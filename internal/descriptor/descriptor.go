// Package descriptor defines the MCP descriptor data model and the
// origins/roles an MCP can take, produced by the scanner and the
// external-MCP loader and consumed by the client supervisor and router.
package descriptor

import "fmt"

// Origin identifies where a descriptor was discovered from.
type Origin string

const (
	OriginInternal     Origin = "internal"
	OriginExternalStdio Origin = "external-stdio"
	OriginExternalHTTP Origin = "external-http"
)

// Role classifies the purpose of an MCP within the fleet.
type Role string

const (
	RoleDefault  Role = "default"
	RoleGuardian Role = "guardian"
	RoleChannel  Role = "channel"
)

// Entrypoint describes how to reach the MCP's process or endpoint.
type Entrypoint struct {
	// stdio
	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Dir     string            `yaml:"dir,omitempty" json:"dir,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// http
	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// ChannelConfig holds role=channel specific settings.
type ChannelConfig struct {
	BotPatterns          []string `yaml:"botPatterns,omitempty" json:"botPatterns,omitempty"`
	ChatRefreshIntervalMs int     `yaml:"chatRefreshIntervalMs,omitempty" json:"chatRefreshIntervalMs,omitempty"`
	MaxMessageAgeMs      int      `yaml:"maxMessageAgeMs,omitempty" json:"maxMessageAgeMs,omitempty"`
}

// GuardianScan declares a per-MCP default input/output scan flag pair.
type GuardianScan struct {
	Input  bool `yaml:"input" json:"input"`
	Output bool `yaml:"output" json:"output"`
}

// Descriptor describes one MCP in the fleet: how to reach it, its role,
// and its policy defaults.
type Descriptor struct {
	Name                  string        `yaml:"mcpName" json:"name"`
	Origin                Origin        `yaml:"-" json:"origin"`
	Entrypoint            Entrypoint    `yaml:"entrypoint,omitempty" json:"-"`
	TimeoutMs             int           `yaml:"timeout,omitempty" json:"timeoutMs,omitempty"`
	Required              bool          `yaml:"required,omitempty" json:"required,omitempty"`
	Sensitive             bool          `yaml:"sensitive,omitempty" json:"sensitive,omitempty"`
	Role                  Role          `yaml:"role,omitempty" json:"role,omitempty"`
	Channel               ChannelConfig `yaml:"channel,omitempty" json:"channel,omitempty"`
	AllowDestructiveTools bool          `yaml:"allowDestructiveTools,omitempty" json:"allowDestructiveTools,omitempty"`
	GuardianScan          GuardianScan  `yaml:"guardianScan,omitempty" json:"guardianScan,omitempty"`
	Enabled               bool          `yaml:"enabled" json:"-"`
}

// Validate enforces the descriptor-level invariants it alone can check
// (cross-descriptor invariants, e.g. uniqueness, are enforced by the caller
// merging a full set).
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("descriptor: name is required")
	}
	if d.TimeoutMs <= 0 {
		d.TimeoutMs = 30_000
	}
	if d.Role == "" {
		d.Role = RoleDefault
	}
	switch d.Origin {
	case OriginExternalHTTP:
		if d.Entrypoint.URL == "" {
			return fmt.Errorf("descriptor %q: http entrypoint requires url", d.Name)
		}
	default:
		if d.Entrypoint.Command == "" {
			return fmt.Errorf("descriptor %q: stdio entrypoint requires command", d.Name)
		}
	}
	return nil
}

// SensitivePrefix returns the prefix that marks a tool name as sensitive for
// this MCP: tool names starting with "<name>_" are treated as sensitive.
func (d *Descriptor) SensitivePrefix() string { return d.Name + "_" }
