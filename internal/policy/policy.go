// Package policy implements the allow/deny glob matching shared by the
// router, the front server and the subagent supervisor: deny always wins on
// overlap.
package policy

import "path/filepath"

// Matcher evaluates an exposed tool name against an allow/deny glob pair.
type Matcher struct {
	allow []string
	deny  []string
}

// New builds a Matcher. A nil or empty allow list means "allow everything
// not denied".
func New(allow, deny []string) Matcher {
	return Matcher{allow: allow, deny: deny}
}

// Allowed reports whether name passes the policy: deny wins on overlap, and
// an empty allow list permits anything not denied.
func (m Matcher) Allowed(name string) bool {
	if matchesAny(m.deny, name) {
		return false
	}
	if len(m.allow) == 0 {
		return true
	}
	return matchesAny(m.allow, name)
}

func matchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
		if p == name {
			return true
		}
	}
	return false
}
