package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := E(KindConflict, "path %s is occupied", "/a")
	wrapped := fmt.Errorf("creating draft: %w", base)

	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, "path /a is occupied", Reason(wrapped))
	assert.True(t, IsKind(wrapped, KindConflict))
}

func TestUnclassifiedIsInternal(t *testing.T) {
	err := errors.New("disk on fire")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal error", Reason(err), "internal detail never reaches the wire")
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(KindInternal, cause, "encoding record")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "root cause")
}

func TestStampRoundTrip(t *testing.T) {
	s := "2025-06-01T12:34:56.789012"
	parsed, err := ParseStamp(s)
	require.NoError(t, err)
	assert.Equal(t, s, Stamp(parsed))
}
