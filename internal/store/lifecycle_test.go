package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikora/wikora/internal/types"
)

func TestRenameAppendsRevisionAndHistory(t *testing.T) {
	s, _ := newTestStore(t)
	id := addPage(t, s, "/a", "alice", "content")

	_, err := s.Rename(id, "/b", false)
	require.NoError(t, err)

	meta, err := s.Meta(id)
	require.NoError(t, err)
	assert.Equal(t, "/b", meta.Path)
	assert.EqualValues(t, 2, meta.Latest)
	assert.Equal(t, []uint64{1, 2}, meta.RenameRevisions)

	src, err := s.Source(id, 2)
	require.NoError(t, err)
	require.NotNil(t, src.Rename)
	assert.Equal(t, "/a", src.Rename.From)
	assert.Equal(t, "/b", src.Rename.To)

	// Historical path resolution.
	p, err := s.PathAt(id, 1)
	require.NoError(t, err)
	assert.Equal(t, "/a", p)
	p, err = s.PathAt(id, 2)
	require.NoError(t, err)
	assert.Equal(t, "/b", p)

	_, err = s.Resolve("/a")
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
	got, err := s.Resolve("/b")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	mustCheck(t, s)
}

func TestRenameRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	id := addPage(t, s, "/a", "alice", "content")

	_, err := s.Rename(id, "/b", false)
	require.NoError(t, err)
	_, err = s.Rename(id, "/a", false)
	require.NoError(t, err)

	got, err := s.Resolve("/a")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	meta, err := s.Meta(id)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, meta.RenameRevisions)

	mustCheck(t, s)
}

func TestRenameConflict(t *testing.T) {
	s, _ := newTestStore(t)
	idA := addPage(t, s, "/a", "alice", "a")
	addPage(t, s, "/b", "alice", "b")

	_, err := s.Rename(idA, "/b", false)
	assert.Equal(t, types.KindConflict, types.KindOf(err))

	// Draft paths conflict too.
	_, _, err = s.CreateDraft("/c", "alice")
	require.NoError(t, err)
	_, err = s.Rename(idA, "/c", false)
	assert.Equal(t, types.KindConflict, types.KindOf(err))

	mustCheck(t, s)
}

func TestRenameGuards(t *testing.T) {
	s, _ := newTestStore(t)
	_, _, err := s.Bootstrap("alice")
	require.NoError(t, err)
	rootID, err := s.RootPageID()
	require.NoError(t, err)

	_, err = s.Rename(rootID, "/elsewhere", false)
	assert.Equal(t, types.KindForbidden, types.KindOf(err), "root is immutable")

	id := addPage(t, s, "/a", "alice", "a")
	_, err = s.Rename(id, "/a/b", false)
	assert.Equal(t, types.KindBadInput, types.KindOf(err), "cannot move under itself")

	_, err = s.Acquire(id, "bob")
	require.NoError(t, err)
	_, err = s.Rename(id, "/b", false)
	assert.Equal(t, types.KindLocked, types.KindOf(err))
}

func TestRecursiveRename(t *testing.T) {
	s, _ := newTestStore(t)
	parent := addPage(t, s, "/a", "alice", "a")
	child := addPage(t, s, "/a/x", "alice", "x")
	grand := addPage(t, s, "/a/x/y", "alice", "y")
	sibling := addPage(t, s, "/ab", "alice", "boundary")

	_, err := s.Rename(parent, "/b", true)
	require.NoError(t, err)

	for path, id := range map[string]string{
		"/b":     parent,
		"/b/x":   child,
		"/b/x/y": grand,
		"/ab":    sibling, // segment boundary: /ab is not under /a
	} {
		got, err := s.Resolve(path)
		require.NoError(t, err, "path %s", path)
		assert.Equal(t, id, got, "path %s", path)
	}

	// Every moved page carries its own rename revision.
	for _, id := range []string{parent, child, grand} {
		meta, err := s.Meta(id)
		require.NoError(t, err)
		assert.EqualValues(t, 2, meta.Latest)
		assert.Equal(t, []uint64{1, 2}, meta.RenameRevisions)
	}
	meta, err := s.Meta(sibling)
	require.NoError(t, err)
	assert.EqualValues(t, 1, meta.Latest)

	mustCheck(t, s)
}

func TestRecursiveRenameBlockedByLockedDescendant(t *testing.T) {
	s, _ := newTestStore(t)
	parent := addPage(t, s, "/a", "alice", "a")
	child := addPage(t, s, "/a/x", "alice", "x")

	_, err := s.Acquire(child, "bob")
	require.NoError(t, err)

	_, err = s.Rename(parent, "/b", true)
	assert.Equal(t, types.KindLocked, types.KindOf(err))

	// All-or-nothing: nothing moved.
	_, err = s.Resolve("/a")
	require.NoError(t, err)
	_, err = s.Resolve("/a/x")
	require.NoError(t, err)

	mustCheck(t, s)
}

func TestSoftDeleteAndRestoreRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	id := addPage(t, s, "/p", "alice", "v1")
	_, _, err := s.Write(id, "v2", "alice", false, "")
	require.NoError(t, err)

	_, err = s.SoftDelete(id, false)
	require.NoError(t, err)

	_, err = s.Resolve("/p")
	assert.Equal(t, types.KindNotFound, types.KindOf(err))

	// The path is reusable while the old page sits in the deleted set.
	_, _, err = s.CreateDraft("/p", "bob")
	require.NoError(t, err)

	cands, err := s.DeletedCandidates("/p")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, id, cands[0].PageID)
	assert.True(t, cands[0].Deleted)

	// Restore somewhere else: revisions and rename history untouched.
	require.NoError(t, s.Restore(id, "/q", false))
	meta, err := s.Meta(id)
	require.NoError(t, err)
	assert.Equal(t, "/q", meta.Path)
	assert.EqualValues(t, 2, meta.Latest)
	assert.Equal(t, []uint64{1}, meta.RenameRevisions)
	assert.False(t, meta.Deleted)

	cands, err = s.DeletedCandidates("/p")
	require.NoError(t, err)
	assert.Empty(t, cands)

	mustCheck(t, s)
}

func TestRestoreConflict(t *testing.T) {
	s, _ := newTestStore(t)
	id := addPage(t, s, "/p", "alice", "v1")
	_, err := s.SoftDelete(id, false)
	require.NoError(t, err)
	addPage(t, s, "/p", "bob", "replacement")

	err = s.Restore(id, "/p", false)
	assert.Equal(t, types.KindConflict, types.KindOf(err))

	require.NoError(t, s.Restore(id, "/p2", false))
	mustCheck(t, s)
}

func TestSoftDeleteGuards(t *testing.T) {
	s, _ := newTestStore(t)
	_, _, err := s.Bootstrap("alice")
	require.NoError(t, err)
	rootID, err := s.RootPageID()
	require.NoError(t, err)

	_, err = s.SoftDelete(rootID, false)
	assert.Equal(t, types.KindForbidden, types.KindOf(err))

	id := addPage(t, s, "/p", "alice", "v1")
	_, err = s.SoftDelete(id, false)
	require.NoError(t, err)
	_, err = s.SoftDelete(id, false)
	assert.Equal(t, types.KindGone, types.KindOf(err))
}

func TestRecursiveSoftDeleteAndRestore(t *testing.T) {
	s, _ := newTestStore(t)
	parent := addPage(t, s, "/a", "alice", "a")
	child := addPage(t, s, "/a/x", "alice", "x")

	_, err := s.SoftDelete(parent, true)
	require.NoError(t, err)
	for _, p := range []string{"/a", "/a/x"} {
		_, err = s.Resolve(p)
		assert.Equal(t, types.KindNotFound, types.KindOf(err), "path %s", p)
	}

	require.NoError(t, s.Restore(parent, "/b", true))
	got, err := s.Resolve("/b")
	require.NoError(t, err)
	assert.Equal(t, parent, got)
	got, err = s.Resolve("/b/x")
	require.NoError(t, err)
	assert.Equal(t, child, got)

	mustCheck(t, s)
}

func TestHardDeleteLeavesZombies(t *testing.T) {
	s, _ := newTestStore(t)
	id := addPage(t, s, "/p", "alice", "v1")
	asset, err := s.AddAsset(s.ids.NewID(), id, "pic.png", "image/png", 3, "alice", "")
	require.NoError(t, err)

	eff, err := s.HardDelete(id)
	require.NoError(t, err)
	require.Len(t, eff.Index, 1)
	assert.Equal(t, EventEvictPage, eff.Index[0].Op)
	assert.Empty(t, eff.RemoveBodies, "zombie bodies stay on disk")

	_, err = s.Meta(id)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
	_, err = s.Resolve("/p")
	assert.Equal(t, types.KindNotFound, types.KindOf(err))

	// The asset survives by id, deleted, with a dangling owner.
	info, err := s.AssetMeta(asset.AssetID)
	require.NoError(t, err)
	assert.True(t, info.Deleted)
	assert.Equal(t, id, info.Owner)

	mustCheck(t, s)
}

func TestHardDeleteOfSoftDeletedPage(t *testing.T) {
	s, _ := newTestStore(t)
	id := addPage(t, s, "/p", "alice", "v1")
	_, err := s.SoftDelete(id, false)
	require.NoError(t, err)

	_, err = s.HardDelete(id)
	require.NoError(t, err)

	cands, err := s.DeletedCandidates("/p")
	require.NoError(t, err)
	assert.Empty(t, cands)

	mustCheck(t, s)
}

func TestZombieReassignmentRevives(t *testing.T) {
	s, _ := newTestStore(t)
	id := addPage(t, s, "/p", "alice", "v1")
	asset, err := s.AddAsset(s.ids.NewID(), id, "pic.png", "image/png", 3, "alice", "")
	require.NoError(t, err)
	_, err = s.HardDelete(id)
	require.NoError(t, err)

	newOwner := addPage(t, s, "/q", "bob", "q")
	require.NoError(t, s.ReassignAsset(asset.AssetID, newOwner))

	info, err := s.AssetMeta(asset.AssetID)
	require.NoError(t, err)
	assert.Equal(t, newOwner, info.Owner)
	assert.False(t, info.Deleted)

	gotID, err := s.ResolveAssetName(newOwner, "pic.png")
	require.NoError(t, err)
	assert.Equal(t, asset.AssetID, gotID)

	mustCheck(t, s)
}
