package assetfs

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikora/wikora/internal/types"
)

const testID = "01JD0000000000000000000000"

func newFS(t *testing.T) *FS {
	t.Helper()
	fs, err := New(filepath.Join(t.TempDir(), "assets"), nil)
	require.NoError(t, err)
	return fs
}

func TestStageCommitOpen(t *testing.T) {
	fs := newFS(t)

	n, err := fs.Stage(testID, strings.NewReader("hello"), 1<<20)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	require.NoError(t, fs.Commit(testID))

	body, err := fs.Open(testID)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// Fan-out layout: root/XX/YY/id.
	assert.Equal(t, filepath.Join(fs.root, testID[0:2], testID[2:4], testID), fs.BodyPath(testID))
}

func TestStageLimit(t *testing.T) {
	fs := newFS(t)

	_, err := fs.Stage(testID, bytes.NewReader(make([]byte, 11)), 10)
	require.Error(t, err)
	assert.Equal(t, types.KindTooLarge, types.KindOf(err))

	// Exactly at the limit is fine.
	n, err := fs.Stage(testID, bytes.NewReader(make([]byte, 10)), 10)
	require.NoError(t, err)
	assert.EqualValues(t, 10, n)
}

func TestDiscardRemovesStaged(t *testing.T) {
	fs := newFS(t)

	_, err := fs.Stage(testID, strings.NewReader("x"), 10)
	require.NoError(t, err)
	fs.Discard(testID)

	_, err = os.Stat(fs.tmpPath(testID))
	assert.True(t, os.IsNotExist(err))
}

func TestSweepRemovesOrphansAndStaging(t *testing.T) {
	fs := newFS(t)

	_, err := fs.Stage("01JD0000000000000000000AAA", strings.NewReader("staged"), 100)
	require.NoError(t, err)

	_, err = fs.Stage(testID, strings.NewReader("kept"), 100)
	require.NoError(t, err)
	require.NoError(t, fs.Commit(testID))

	const orphan = "01JD0000000000000000000BBB"
	_, err = fs.Stage(orphan, strings.NewReader("orphan"), 100)
	require.NoError(t, err)
	require.NoError(t, fs.Commit(orphan))

	require.NoError(t, fs.Sweep(func(id string) bool { return id == testID }))

	_, err = fs.Open(testID)
	assert.NoError(t, err)
	_, err = fs.Open(orphan)
	assert.Error(t, err)
	entries, err := os.ReadDir(filepath.Join(fs.root, tmpDirName))
	require.NoError(t, err)
	assert.Empty(t, entries, "staging cleared on sweep")
}
