package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Set_AddInternal_duplicate(t *testing.T) {
	s := NewSet()
	d1 := &Descriptor{Name: "fs", Origin: OriginInternal}
	d2 := &Descriptor{Name: "fs", Origin: OriginInternal}

	assert.NoError(t, s.AddInternal(d1))
	assert.Error(t, s.AddInternal(d2))
}

func Test_Set_guardian_uniqueness(t *testing.T) {
	s := NewSet()
	g1 := &Descriptor{Name: "guardian-a", Role: RoleGuardian}
	g2 := &Descriptor{Name: "guardian-b", Role: RoleGuardian}

	assert.NoError(t, s.AddInternal(g1))
	assert.Error(t, s.AddInternal(g2), "at most one guardian descriptor is permitted")

	got, ok := s.Guardian()
	assert.True(t, ok)
	assert.Equal(t, "guardian-a", got.Name)
}

func Test_Set_AddExternal_collidesWithInternal(t *testing.T) {
	s := NewSet()
	assert.NoError(t, s.AddInternal(&Descriptor{Name: "fs", Origin: OriginInternal}))
	err := s.AddExternal(&Descriptor{Name: "fs", Origin: OriginExternalStdio})
	assert.Error(t, err)
}

func Test_Set_Remove(t *testing.T) {
	s := NewSet()
	assert.NoError(t, s.AddInternal(&Descriptor{Name: "fs", Origin: OriginInternal}))
	s.Remove("fs")
	_, ok := s.Get("fs")
	assert.False(t, ok)
}

func Test_Descriptor_Validate(t *testing.T) {
	d := &Descriptor{Name: "fs", Entrypoint: Entrypoint{Command: "fs-mcp"}}
	assert.NoError(t, d.Validate())
	assert.Equal(t, RoleDefault, d.Role)
	assert.Equal(t, 30_000, d.TimeoutMs)

	bad := &Descriptor{Name: ""}
	assert.Error(t, bad.Validate())

	httpBad := &Descriptor{Name: "web", Origin: OriginExternalHTTP}
	assert.Error(t, httpBad.Validate())
}

func Test_Descriptor_SensitivePrefix(t *testing.T) {
	d := &Descriptor{Name: "fs"}
	assert.Equal(t, "fs_", d.SensitivePrefix())
}
