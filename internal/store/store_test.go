package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wikora/wikora/internal/ident"
)

// testClock is a movable wall clock shared with the store's id generator.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)}
	s, err := Open(filepath.Join(t.TempDir(), "wiki.db"), Options{
		IDs: ident.NewAt(clock.Now),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

// mustCheck asserts the invariant scan finds nothing.
func mustCheck(t *testing.T, s *Store) {
	t.Helper()
	problems, err := s.Check()
	require.NoError(t, err)
	require.Empty(t, problems, "invariant violations")
}

// addPage creates a promoted page at path with one revision.
func addPage(t *testing.T, s *Store, path, user, source string) string {
	t.Helper()
	draft, lock, err := s.CreateDraft(path, user)
	require.NoError(t, err)
	_, _, err = s.Write(draft.PageID, source, user, false, lock.Token)
	require.NoError(t, err)
	return draft.PageID
}
