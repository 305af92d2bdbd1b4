package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikora/wikora/internal/types"
)

func TestCreateDraftOccupiesPath(t *testing.T) {
	s, _ := newTestStore(t)

	draft, lock, err := s.CreateDraft("/new", "alice")
	require.NoError(t, err)
	assert.Equal(t, "/new", draft.Path)
	assert.Equal(t, lock.Token, draft.LockToken)
	assert.Equal(t, draft.PageID, lock.Target)

	id, err := s.Resolve("/new")
	require.NoError(t, err)
	assert.Equal(t, draft.PageID, id)

	// A draft has no revisions yet.
	_, err = s.Source(draft.PageID, 0)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))

	// The path is taken, by a live page or another draft alike.
	_, _, err = s.CreateDraft("/new", "bob")
	assert.Equal(t, types.KindConflict, types.KindOf(err))

	mustCheck(t, s)
}

func TestDraftPromotion(t *testing.T) {
	s, _ := newTestStore(t)

	draft, lock, err := s.CreateDraft("/page", "alice")
	require.NoError(t, err)

	rev, eff, err := s.Write(draft.PageID, "# Hello", "alice", false, lock.Token)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rev)
	require.Len(t, eff.Index, 1)
	assert.Equal(t, EventIndex, eff.Index[0].Op)

	meta, err := s.Meta(draft.PageID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, meta.Latest)
	assert.EqualValues(t, 1, meta.Oldest)
	assert.Equal(t, []uint64{1}, meta.RenameRevisions)
	assert.False(t, meta.Locked, "promotion consumes the lock")

	src, err := s.Source(draft.PageID, 1)
	require.NoError(t, err)
	assert.Equal(t, "# Hello", src.Source)
	require.NotNil(t, src.Rename)
	assert.Empty(t, src.Rename.From)
	assert.Equal(t, "/page", src.Rename.To)

	mustCheck(t, s)
}

func TestDraftPromotionRequiresLockToken(t *testing.T) {
	s, _ := newTestStore(t)

	draft, _, err := s.CreateDraft("/page", "alice")
	require.NoError(t, err)

	_, _, err = s.Write(draft.PageID, "x", "alice", false, "")
	assert.Equal(t, types.KindLocked, types.KindOf(err))

	_, _, err = s.Write(draft.PageID, "x", "alice", false, "bogus")
	assert.Equal(t, types.KindForbidden, types.KindOf(err))
}

func TestDraftAmendRejected(t *testing.T) {
	s, _ := newTestStore(t)

	draft, lock, err := s.CreateDraft("/page", "alice")
	require.NoError(t, err)

	_, _, err = s.Write(draft.PageID, "x", "alice", true, lock.Token)
	assert.Equal(t, types.KindForbidden, types.KindOf(err))
}

func TestDraftReleaseReturnsToPreCreationState(t *testing.T) {
	s, _ := newTestStore(t)

	draft, lock, err := s.CreateDraft("/gone", "alice")
	require.NoError(t, err)

	_, err = s.Release(draft.PageID, lock.Token, "alice")
	require.NoError(t, err)

	_, err = s.Resolve("/gone")
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
	_, err = s.Meta(draft.PageID)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
	locks, err := s.Locks()
	require.NoError(t, err)
	assert.Empty(t, locks)

	// The path is immediately reusable.
	_, _, err = s.CreateDraft("/gone", "bob")
	require.NoError(t, err)

	mustCheck(t, s)
}

func TestDraftReleaseHardDeletesAssets(t *testing.T) {
	s, _ := newTestStore(t)

	draft, lock, err := s.CreateDraft("/d", "alice")
	require.NoError(t, err)

	info, err := s.AddAsset(s.ids.NewID(), draft.PageID, "pic.png", "image/png", 3, "alice", lock.Token)
	require.NoError(t, err)

	eff, err := s.Release(draft.PageID, lock.Token, "alice")
	require.NoError(t, err)
	assert.Contains(t, eff.RemoveBodies, info.AssetID, "draft teardown removes asset bodies")

	_, err = s.AssetMeta(info.AssetID)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))

	mustCheck(t, s)
}
