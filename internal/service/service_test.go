package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikora/wikora/internal/assetfs"
	"github.com/wikora/wikora/internal/ftindex"
	"github.com/wikora/wikora/internal/store"
	"github.com/wikora/wikora/internal/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "wiki.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	fs, err := assetfs.New(filepath.Join(dir, "assets"), nil)
	require.NoError(t, err)
	idx, err := ftindex.Open(filepath.Join(dir, "index"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return New(st, fs, idx, Options{})
}

func TestWriteFeedsIndex(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	draft, lock, err := svc.CreateDraft(ctx, "/page", "alice")
	require.NoError(t, err)
	_, err = svc.Write(ctx, draft.PageID, "# Findable\n\nunique zanzibar token", "alice", false, lock.Token)
	require.NoError(t, err)

	hits, err := svc.Search(ftindex.Request{Expression: "zanzibar"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, draft.PageID, hits[0].PageID)
	assert.Equal(t, "/page", hits[0].Path)
	assert.EqualValues(t, 1, hits[0].Revision)
}

func TestSearchDropsHardDeletedPages(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	draft, lock, err := svc.CreateDraft(ctx, "/doomed", "alice")
	require.NoError(t, err)
	_, err = svc.Write(ctx, draft.PageID, "quokka content", "alice", false, lock.Token)
	require.NoError(t, err)

	require.NoError(t, svc.HardDelete(ctx, draft.PageID))

	hits, err := svc.Search(ftindex.Request{Expression: "quokka", WithDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, hits, "hard-deleted pages never surface")
}

func TestSearchSoftDeletedVisibility(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	draft, lock, err := svc.CreateDraft(ctx, "/hidden", "alice")
	require.NoError(t, err)
	_, err = svc.Write(ctx, draft.PageID, "wombat content", "alice", false, lock.Token)
	require.NoError(t, err)
	require.NoError(t, svc.SoftDelete(ctx, draft.PageID, false))

	hits, err := svc.Search(ftindex.Request{Expression: "wombat"})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = svc.Search(ftindex.Request{Expression: "wombat", WithDeleted: true})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.True(t, hits[0].Deleted)
}

func TestSearchPathResolvedAtMatchedRevision(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	draft, lock, err := svc.CreateDraft(ctx, "/before", "alice")
	require.NoError(t, err)
	_, err = svc.Write(ctx, draft.PageID, "axolotl content", "alice", false, lock.Token)
	require.NoError(t, err)
	require.NoError(t, svc.Rename(ctx, draft.PageID, "/after", false))

	hits, err := svc.Search(ftindex.Request{Expression: "axolotl", AllRevision: true})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	byRev := map[uint64]string{}
	for _, h := range hits {
		byRev[h.Revision] = h.Path
	}
	assert.Equal(t, "/before", byRev[1])
	assert.Equal(t, "/after", byRev[2])
}

func TestUploadRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	draft, lock, err := svc.CreateDraft(ctx, "/page", "alice")
	require.NoError(t, err)
	_, err = svc.Write(ctx, draft.PageID, "content", "alice", false, lock.Token)
	require.NoError(t, err)

	info, err := svc.Upload(ctx, draft.PageID, "note.txt", "text/plain", strings.NewReader("hello body"), "alice", "")
	require.NoError(t, err)
	assert.EqualValues(t, 10, info.Size)

	meta, body, err := svc.OpenAsset(info.AssetID)
	require.NoError(t, err)
	defer body.Close()
	assert.Equal(t, "note.txt", meta.OriginalName)

	// The staged file is gone; only the final body remains.
	entries, err := os.ReadDir(svc.assets.TempDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadAbortLeavesNoFile(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	draft, lock, err := svc.CreateDraft(ctx, "/page", "alice")
	require.NoError(t, err)
	_, err = svc.Write(ctx, draft.PageID, "content", "alice", false, lock.Token)
	require.NoError(t, err)

	_, err = svc.Upload(ctx, draft.PageID, "a.txt", "text/plain", strings.NewReader("x"), "alice", "")
	require.NoError(t, err)

	// Duplicate name aborts the transaction; the staged body must be
	// cleaned up.
	_, err = svc.Upload(ctx, draft.PageID, "a.txt", "text/plain", strings.NewReader("y"), "alice", "")
	require.Equal(t, types.KindConflict, types.KindOf(err))

	entries, err := os.ReadDir(svc.assets.TempDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "no staged leftovers after abort")
}

func TestHardDeleteAssetRemovesBody(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	draft, lock, err := svc.CreateDraft(ctx, "/page", "alice")
	require.NoError(t, err)
	_, err = svc.Write(ctx, draft.PageID, "content", "alice", false, lock.Token)
	require.NoError(t, err)
	info, err := svc.Upload(ctx, draft.PageID, "a.txt", "text/plain", strings.NewReader("x"), "alice", "")
	require.NoError(t, err)

	require.NoError(t, svc.HardDeleteAsset(ctx, info.AssetID))
	_, _, err = svc.OpenAsset(info.AssetID)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestFirstUserBootstrapsRoot(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddUser(ctx, "alice", "Alice", "password-1", true)
	require.NoError(t, err)

	rootID, err := svc.Store().Resolve("/")
	require.NoError(t, err)
	src, err := svc.Store().Source(rootID, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", src.UserName)

	// The second user does not re-bootstrap.
	_, err = svc.AddUser(ctx, "bob", "Bob", "password-2", false)
	require.NoError(t, err)
	meta, err := svc.Store().Meta(rootID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, meta.Latest)
}

func TestRebuildIndexFromStore(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	draft, lock, err := svc.CreateDraft(ctx, "/page", "alice")
	require.NoError(t, err)
	_, err = svc.Write(ctx, draft.PageID, "pangolin content", "alice", false, lock.Token)
	require.NoError(t, err)

	require.NoError(t, svc.RebuildIndex())

	hits, err := svc.Search(ftindex.Request{Expression: "pangolin"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestCompactEvictsFromIndex(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	draft, lock, err := svc.CreateDraft(ctx, "/page", "alice")
	require.NoError(t, err)
	_, err = svc.Write(ctx, draft.PageID, "numbat early", "alice", false, lock.Token)
	require.NoError(t, err)
	_, err = svc.Write(ctx, draft.PageID, "numbat late", "alice", false, "")
	require.NoError(t, err)

	require.NoError(t, svc.Compact(ctx, draft.PageID, 2))

	hits, err := svc.Search(ftindex.Request{Expression: "numbat", AllRevision: true})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.EqualValues(t, 2, hits[0].Revision)
}
