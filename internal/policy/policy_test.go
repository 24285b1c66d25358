package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Matcher_Allowed(t *testing.T) {
	type tc struct {
		name  string
		allow []string
		deny  []string
		tool  string
		want  bool
	}

	cases := []tc{
		{name: "empty allow, no deny permits anything", tool: "fs_read", want: true},
		{name: "empty allow, denied blocks", deny: []string{"fs_*"}, tool: "fs_write", want: false},
		{name: "non-empty allow requires match", allow: []string{"fs_read"}, tool: "fs_write", want: false},
		{name: "non-empty allow matches glob", allow: []string{"fs_*"}, tool: "fs_write", want: true},
		{name: "deny wins on overlap", allow: []string{"fs_*"}, deny: []string{"fs_write"}, tool: "fs_write", want: false},
		{name: "exact match fallback when glob invalid", allow: []string{"weird[name"}, tool: "weird[name", want: true},
	}

	for _, c := range cases {
		m := New(c.allow, c.deny)
		assert.Equal(t, c.want, m.Allowed(c.tool), c.name)
	}
}
