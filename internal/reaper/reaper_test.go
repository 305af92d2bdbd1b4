package reaper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikora/wikora/internal/assetfs"
	"github.com/wikora/wikora/internal/ftindex"
	"github.com/wikora/wikora/internal/service"
	"github.com/wikora/wikora/internal/store"
)

func TestRunClearsExpiredLocks(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "wiki.db"), store.Options{
		LockTTL: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer st.Close()
	fs, err := assetfs.New(filepath.Join(dir, "assets"), nil)
	require.NoError(t, err)
	idx, err := ftindex.Open(filepath.Join(dir, "index"), nil)
	require.NoError(t, err)
	defer idx.Close()
	svc := service.New(st, fs, idx, service.Options{})

	ctx := context.Background()
	draft, lock, err := svc.CreateDraft(ctx, "/page", "alice")
	require.NoError(t, err)
	_, err = svc.Write(ctx, draft.PageID, "content", "alice", false, lock.Token)
	require.NoError(t, err)
	_, err = svc.Acquire(ctx, draft.PageID, "alice")
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = New(svc, 20*time.Millisecond, nil).Run(runCtx)
	}()

	require.Eventually(t, func() bool {
		meta, err := st.Meta(draft.PageID)
		return err == nil && !meta.Locked
	}, 2*time.Second, 20*time.Millisecond, "expired lock reaped")

	cancel()
	<-done

	locks, err := st.Locks()
	require.NoError(t, err)
	assert.Empty(t, locks)
}
