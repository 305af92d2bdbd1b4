package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listPaths(items []ListItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Path
	}
	return out
}

func TestListForwardPagination(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 1; i <= 5; i++ {
		addPage(t, s, fmt.Sprintf("/n/p%d", i), "alice", "x")
	}

	res, err := s.List("/n", "", Forward, 2, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/n/p1", "/n/p2"}, listPaths(res.Items))
	require.True(t, res.HasMore)
	assert.Equal(t, "/n/p2", res.Anchor)

	// The cursor entry is excluded: strictly greater entries only.
	res, err = s.List("/n", res.Anchor, Forward, 2, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/n/p3", "/n/p4"}, listPaths(res.Items))
	require.True(t, res.HasMore)

	res, err = s.List("/n", res.Anchor, Forward, 2, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/n/p5"}, listPaths(res.Items))
	assert.False(t, res.HasMore)
	assert.Empty(t, res.Anchor, "anchor only present with has_more")
}

func TestListRewind(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 1; i <= 3; i++ {
		addPage(t, s, fmt.Sprintf("/n/p%d", i), "alice", "x")
	}

	res, err := s.List("/n", "", Rewind, 2, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/n/p3", "/n/p2"}, listPaths(res.Items))
	require.True(t, res.HasMore)

	res, err = s.List("/n", res.Anchor, Rewind, 2, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/n/p1"}, listPaths(res.Items))
	assert.False(t, res.HasMore)
}

func TestListWithDeletedMergesBothIndexes(t *testing.T) {
	s, _ := newTestStore(t)
	addPage(t, s, "/n/alive", "alice", "x")
	dead := addPage(t, s, "/n/dead", "alice", "x")
	_, err := s.SoftDelete(dead, false)
	require.NoError(t, err)

	res, err := s.List("/n", "", Forward, 10, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/n/alive"}, listPaths(res.Items))

	res, err = s.List("/n", "", Forward, 10, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"/n/alive", "/n/dead"}, listPaths(res.Items))
	assert.True(t, res.Items[1].Deleted)
}

func TestListIncludesDrafts(t *testing.T) {
	s, _ := newTestStore(t)
	addPage(t, s, "/n/page", "alice", "x")
	_, _, err := s.CreateDraft("/n/draft", "alice")
	require.NoError(t, err)

	res, err := s.List("/n", "", Forward, 10, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/n/draft", "/n/page"}, listPaths(res.Items))
	assert.True(t, res.Items[0].Draft)

	// Drafts never show up as deleted candidates.
	cands, err := s.DeletedCandidates("/n/draft")
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestDeletedCandidatesManyPerPath(t *testing.T) {
	s, _ := newTestStore(t)

	first := addPage(t, s, "/p", "alice", "one")
	_, err := s.SoftDelete(first, false)
	require.NoError(t, err)
	second := addPage(t, s, "/p", "alice", "two")
	_, err = s.SoftDelete(second, false)
	require.NoError(t, err)

	cands, err := s.DeletedCandidates("/p")
	require.NoError(t, err)
	require.Len(t, cands, 2)
	// Ascending by page id, which is issue order.
	assert.Equal(t, first, cands[0].PageID)
	assert.Equal(t, second, cands[1].PageID)

	mustCheck(t, s)
}

func TestResolveRejectsMalformedPaths(t *testing.T) {
	s, _ := newTestStore(t)
	for _, p := range []string{"", "rel", "/a//b"} {
		_, err := s.Resolve(p)
		assert.Error(t, err, "path %q", p)
	}
}
