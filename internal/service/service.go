// Package service composes the persistence engine, the asset tree and the
// full-text index into the wiki's operations. Each mutating call runs one
// store transaction; filesystem and index side effects are applied only
// after it commits, with a compensating delete when placing a committed
// asset body fails.
package service

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/wikora/wikora/internal/assetfs"
	"github.com/wikora/wikora/internal/ftindex"
	"github.com/wikora/wikora/internal/metrics"
	"github.com/wikora/wikora/internal/store"
	"github.com/wikora/wikora/internal/types"
)

// Service is the operation surface the HTTP layer and the CLI share.
type Service struct {
	store          *store.Store
	assets         *assetfs.FS
	index          *ftindex.Index
	metrics        *metrics.Metrics
	log            *logrus.Entry
	templatePrefix string
	maxAssetSize   int64
}

// Options configure a service.
type Options struct {
	TemplatePrefix string
	MaxAssetSize   int64
	Metrics        *metrics.Metrics
	Log            *logrus.Logger
}

// New wires a service over its three stores.
func New(st *store.Store, fs *assetfs.FS, idx *ftindex.Index, opts Options) *Service {
	if opts.TemplatePrefix == "" {
		opts.TemplatePrefix = "/templates"
	}
	if opts.MaxAssetSize == 0 {
		opts.MaxAssetSize = store.MaxAssetSize
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Disabled()
	}
	logger := opts.Log
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		store:          st,
		assets:         fs,
		index:          idx,
		metrics:        opts.Metrics,
		log:            logger.WithField("component", "service"),
		templatePrefix: opts.TemplatePrefix,
		maxAssetSize:   opts.MaxAssetSize,
	}
}

// Store exposes the engine for the maintenance CLI.
func (s *Service) Store() *store.Store { return s.store }

// Index exposes the full-text coordinator for the maintenance CLI.
func (s *Service) Index() *ftindex.Index { return s.index }

// Assets exposes the body tree for the maintenance CLI.
func (s *Service) Assets() *assetfs.FS { return s.assets }

// apply plays a committed transaction's side effects.
func (s *Service) apply(ctx context.Context, op string, eff *store.Effects) {
	if eff == nil {
		return
	}
	s.metrics.CountOp(ctx, op)
	if len(eff.Index) > 0 {
		s.index.Apply(eff.Index)
		s.metrics.IndexOps.Add(ctx, int64(len(eff.Index)))
	}
	for _, assetID := range eff.RemoveBodies {
		s.assets.Remove(assetID)
	}
}

// --- Page operations ---

// CreateDraft occupies path with a fresh draft and returns its lock.
func (s *Service) CreateDraft(ctx context.Context, path, user string) (*types.DraftInfo, *types.LockInfo, error) {
	draft, lock, err := s.store.CreateDraft(path, user)
	if err != nil {
		return nil, nil, err
	}
	s.metrics.CountOp(ctx, "create_draft")
	return draft, lock, nil
}

// Write stores source for a page or promotes a draft.
func (s *Service) Write(ctx context.Context, pageID, source, user string, amend bool, token string) (uint64, error) {
	rev, eff, err := s.store.Write(pageID, source, user, amend, token)
	if err != nil {
		return 0, err
	}
	s.apply(ctx, "write", eff)
	return rev, nil
}

// Rollback appends a revision equal to target's content.
func (s *Service) Rollback(ctx context.Context, pageID string, target uint64) (uint64, error) {
	rev, eff, err := s.store.Rollback(pageID, target)
	if err != nil {
		return 0, err
	}
	s.apply(ctx, "rollback", eff)
	return rev, nil
}

// Compact discards revisions below keepFrom.
func (s *Service) Compact(ctx context.Context, pageID string, keepFrom uint64) error {
	eff, err := s.store.Compact(pageID, keepFrom)
	if err != nil {
		return err
	}
	s.apply(ctx, "compact", eff)
	return nil
}

// Rename moves a page (and with recursive, its subtree).
func (s *Service) Rename(ctx context.Context, pageID, newPath string, recursive bool) error {
	eff, err := s.store.Rename(pageID, newPath, recursive)
	if err != nil {
		return err
	}
	s.apply(ctx, "rename", eff)
	return nil
}

// SoftDelete hides a page (and with recursive, its subtree) from routing.
func (s *Service) SoftDelete(ctx context.Context, pageID string, recursive bool) error {
	eff, err := s.store.SoftDelete(pageID, recursive)
	if err != nil {
		return err
	}
	s.apply(ctx, "soft_delete", eff)
	return nil
}

// HardDelete removes a page irreversibly, leaving zombie assets behind.
func (s *Service) HardDelete(ctx context.Context, pageID string) error {
	eff, err := s.store.HardDelete(pageID)
	if err != nil {
		return err
	}
	s.apply(ctx, "hard_delete", eff)
	return nil
}

// Restore reattaches a soft-deleted page at targetPath.
func (s *Service) Restore(ctx context.Context, pageID, targetPath string, recursive bool) error {
	if err := s.store.Restore(pageID, targetPath, recursive); err != nil {
		return err
	}
	s.metrics.CountOp(ctx, "restore")
	return nil
}

// --- Lock operations ---

// Acquire locks a page for user.
func (s *Service) Acquire(ctx context.Context, pageID, user string) (*types.LockInfo, error) {
	lock, err := s.store.Acquire(pageID, user)
	if err != nil {
		return nil, err
	}
	s.metrics.CountOp(ctx, "lock_acquire")
	return lock, nil
}

// Extend rotates a lock's token and deadline.
func (s *Service) Extend(ctx context.Context, pageID, token, user string) (*types.LockInfo, error) {
	lock, err := s.store.Extend(pageID, token, user)
	if err != nil {
		return nil, err
	}
	s.metrics.CountOp(ctx, "lock_extend")
	return lock, nil
}

// Release unlocks a page; releasing a draft discards it.
func (s *Service) Release(ctx context.Context, pageID, token, user string) error {
	eff, err := s.store.Release(pageID, token, user)
	if err != nil {
		return err
	}
	s.apply(ctx, "lock_release", eff)
	return nil
}

// ForceUnlock clears a lock without authentication (admin).
func (s *Service) ForceUnlock(ctx context.Context, pageID string) error {
	eff, err := s.store.ForceUnlock(pageID)
	if err != nil {
		return err
	}
	s.apply(ctx, "force_unlock", eff)
	return nil
}

// DropLock removes a lock row by token (admin).
func (s *Service) DropLock(ctx context.Context, token string) error {
	eff, err := s.store.DropLock(token)
	if err != nil {
		return err
	}
	s.apply(ctx, "drop_lock", eff)
	return nil
}

// ReapExpired clears expired locks; the background reaper calls this.
func (s *Service) ReapExpired(ctx context.Context) (int, error) {
	n, eff, err := s.store.ReapExpired(s.store.IDs().Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.Reaps.Add(ctx, int64(n))
	}
	s.apply(ctx, "reap", eff)
	return n, nil
}

// --- Asset operations ---

// Upload stages body bytes, records metadata in one transaction, and
// finalizes the body on commit. An aborted transaction leaves no file
// behind.
func (s *Service) Upload(ctx context.Context, owner, fileName, mime string, body io.Reader, uploader, token string) (*types.AssetInfo, error) {
	assetID := s.store.IDs().NewID()
	size, err := s.assets.Stage(assetID, body, s.maxAssetSize)
	if err != nil {
		return nil, err
	}
	info, err := s.store.AddAsset(assetID, owner, fileName, mime, size, uploader, token)
	if err != nil {
		s.assets.Discard(assetID)
		return nil, err
	}
	if err := s.assets.Commit(assetID); err != nil {
		// The metadata committed but the body cannot be placed; delete the
		// rows again rather than serving a bodiless asset.
		s.log.WithError(err).WithField("asset_id", assetID).Error("finalizing asset body failed; compensating")
		if _, derr := s.store.HardDeleteAsset(assetID); derr != nil {
			s.log.WithError(derr).WithField("asset_id", assetID).Error("compensating delete failed; sweep will repair")
		}
		s.assets.Discard(assetID)
		return nil, err
	}
	s.metrics.CountOp(ctx, "upload")
	return info, nil
}

// OpenAsset returns metadata and a body reader for download.
func (s *Service) OpenAsset(assetID string) (*types.AssetInfo, io.ReadCloser, error) {
	info, err := s.store.AssetMeta(assetID)
	if err != nil {
		return nil, nil, err
	}
	body, err := s.assets.Open(assetID)
	if err != nil {
		return nil, nil, err
	}
	return info, body, nil
}

// SoftDeleteAsset flags an asset deleted, keeping the body.
func (s *Service) SoftDeleteAsset(ctx context.Context, assetID string) error {
	if err := s.store.SoftDeleteAsset(assetID); err != nil {
		return err
	}
	s.metrics.CountOp(ctx, "asset_soft_delete")
	return nil
}

// UndeleteAsset clears the deleted flag.
func (s *Service) UndeleteAsset(ctx context.Context, assetID string) error {
	if err := s.store.UndeleteAsset(assetID); err != nil {
		return err
	}
	s.metrics.CountOp(ctx, "asset_undelete")
	return nil
}

// HardDeleteAsset removes metadata and body.
func (s *Service) HardDeleteAsset(ctx context.Context, assetID string) error {
	eff, err := s.store.HardDeleteAsset(assetID)
	if err != nil {
		return err
	}
	s.apply(ctx, "asset_hard_delete", eff)
	return nil
}

// ReassignAsset moves an asset to a new owner page (admin), reviving
// zombies.
func (s *Service) ReassignAsset(ctx context.Context, assetID, newOwner string) error {
	if err := s.store.ReassignAsset(assetID, newOwner); err != nil {
		return err
	}
	s.metrics.CountOp(ctx, "asset_reassign")
	return nil
}

// --- Users & bootstrap ---

// AddUser creates a credential row; registering the first user bootstraps
// the root page in its name.
func (s *Service) AddUser(ctx context.Context, name, displayName, password string, admin bool) (*types.User, error) {
	user, err := s.store.AddUser(name, displayName, password, admin)
	if err != nil {
		return nil, err
	}
	bootstrapped, err := s.store.Bootstrapped()
	if err != nil {
		return nil, err
	}
	if !bootstrapped {
		_, eff, err := s.store.Bootstrap(name)
		if err != nil {
			return nil, err
		}
		s.apply(ctx, "bootstrap", eff)
	}
	s.metrics.CountOp(ctx, "user_add")
	return user, nil
}

// --- Search & templates ---

// Search runs a full-text query and post-filters hits against live state.
func (s *Service) Search(req ftindex.Request) ([]types.SearchHit, error) {
	return s.index.Search(req, func(pageID string, rev uint64) (bool, string, bool, uint64) {
		meta, err := s.store.Meta(pageID)
		if err != nil || meta.Draft {
			return false, "", false, 0
		}
		if rev < meta.Oldest || rev > meta.Latest {
			return false, "", false, 0
		}
		path, err := s.store.PathAt(pageID, rev)
		if err != nil {
			path = meta.Path
		}
		return true, path, meta.Deleted, meta.Latest
	})
}

// Templates snapshots the template pages.
func (s *Service) Templates() ([]types.PageMeta, error) {
	return s.store.Templates(s.templatePrefix)
}

// RebuildIndex reconstructs the full-text index from the store.
func (s *Service) RebuildIndex() error {
	return s.index.Rebuild(s.store.EachRevision)
}

// SweepAssets removes asset bodies without metadata and clears staging.
// Run at startup.
func (s *Service) SweepAssets() error {
	return s.assets.Sweep(func(assetID string) bool {
		ok, err := s.store.HasAsset(assetID)
		return err == nil && ok
	})
}
