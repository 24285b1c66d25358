package descriptor

import "fmt"

// Set is the full collection of live descriptors, keeping two invariants:
// unique names, and at most one guardian.
type Set struct {
	byName map[string]*Descriptor
}

// NewSet builds an empty Set.
func NewSet() *Set { return &Set{byName: map[string]*Descriptor{}} }

// AddInternal inserts an internally-discovered descriptor. A name that is
// already in the set is rejected with an error: a duplicate internal name is
// a configuration error.
func (s *Set) AddInternal(d *Descriptor) error {
	if _, exists := s.byName[d.Name]; exists {
		return fmt.Errorf("descriptor: duplicate internal mcp name %q", d.Name)
	}
	return s.add(d)
}

// AddExternal inserts an externally-loaded descriptor, skipping (with an
// error the caller should log as a warning, not fail startup on) any entry
// whose name collides with an existing descriptor.
func (s *Set) AddExternal(d *Descriptor) error {
	if _, exists := s.byName[d.Name]; exists {
		return fmt.Errorf("descriptor: external mcp %q collides with an existing name, skipped", d.Name)
	}
	return s.add(d)
}

func (s *Set) add(d *Descriptor) error {
	if d.Role == RoleGuardian {
		for _, existing := range s.byName {
			if existing.Role == RoleGuardian {
				return fmt.Errorf("descriptor: guardian role already assigned to %q, cannot assign to %q", existing.Name, d.Name)
			}
		}
	}
	s.byName[d.Name] = d
	return nil
}

// Remove drops a descriptor by name; a no-op if absent.
func (s *Set) Remove(name string) { delete(s.byName, name) }

// Get returns the descriptor for name, if present.
func (s *Set) Get(name string) (*Descriptor, bool) {
	d, ok := s.byName[name]
	return d, ok
}

// All returns every descriptor currently in the set, in no particular order.
func (s *Set) All() []*Descriptor {
	out := make([]*Descriptor, 0, len(s.byName))
	for _, d := range s.byName {
		out = append(out, d)
	}
	return out
}

// Guardian returns the single guardian-role descriptor, if any.
func (s *Set) Guardian() (*Descriptor, bool) {
	for _, d := range s.byName {
		if d.Role == RoleGuardian {
			return d, true
		}
	}
	return nil, false
}

// Names returns the set's current descriptor names.
func (s *Set) Names() map[string]bool {
	out := make(map[string]bool, len(s.byName))
	for n := range s.byName {
		out[n] = true
	}
	return out
}
