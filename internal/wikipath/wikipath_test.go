package wikipath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikora/wikora/internal/types"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/", "/", true},
		{"/a", "/a", true},
		{"/a/b/c", "/a/b/c", true},
		{"/a/", "/a", true},
		{"", "", false},
		{"a/b", "", false},
		{"/a//b", "", false},
		{"//", "", false},
		{"/a/./b", "", false},
		{"/a/../b", "", false},
		{"/a\x00b", "", false},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if !tt.ok {
			require.Error(t, err, "input %q", tt.in)
			assert.Equal(t, types.KindBadInput, types.KindOf(err))
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestParent(t *testing.T) {
	assert.Equal(t, "/", Parent("/"))
	assert.Equal(t, "/", Parent("/a"))
	assert.Equal(t, "/a", Parent("/a/b"))
	assert.Equal(t, "/a/b", Parent("/a/b/c"))
}

func TestIsDescendantRespectsSegmentBoundary(t *testing.T) {
	assert.True(t, IsDescendant("/a/b", "/a"))
	assert.True(t, IsDescendant("/a/b/c", "/a"))
	assert.False(t, IsDescendant("/ab", "/a"))
	assert.False(t, IsDescendant("/a", "/a"))
	assert.True(t, IsDescendant("/a", "/"))
	assert.False(t, IsDescendant("/", "/"))
}

func TestRebase(t *testing.T) {
	assert.Equal(t, "/y", Rebase("/x", "/x", "/y"))
	assert.Equal(t, "/y/b", Rebase("/x/b", "/x", "/y"))
	assert.Equal(t, "/y/b/c", Rebase("/x/b/c", "/x", "/y"))
	assert.Equal(t, "/b", Rebase("/x/b", "/x", "/"))
}

func TestName(t *testing.T) {
	assert.Equal(t, "/", Name("/"))
	assert.Equal(t, "b", Name("/a/b"))
	assert.Equal(t, "a", Name("/a"))
}
