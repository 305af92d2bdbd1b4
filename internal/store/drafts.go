package store

import (
	"github.com/wikora/wikora/internal/kvstore"
	"github.com/wikora/wikora/internal/types"
	"github.com/wikora/wikora/internal/wikipath"
)

// CreateDraft occupies path with a new draft page and issues its creation
// lock, all in one transaction. The path must not be held by a live page or
// another draft.
func (s *Store) CreateDraft(path, user string) (*types.DraftInfo, *types.LockInfo, error) {
	p, err := wikipath.Normalize(path)
	if err != nil {
		return nil, nil, err
	}
	var (
		draft *types.DraftInfo
		lock  *types.LockInfo
	)
	err = s.update(func(tx *kvstore.Tx) error {
		if tx.Table(tblPaths).Has([]byte(p)) {
			return types.E(types.KindConflict, "path %s is occupied", p)
		}
		pageID := s.ids.NewID()
		lock, err = s.issueLock(tx, pageID, user)
		if err != nil {
			return err
		}
		draft = &types.DraftInfo{PageID: pageID, Path: p, LockToken: lock.Token}
		if err := putPageIndex(tx, &types.PageIndex{Draft: draft}); err != nil {
			return err
		}
		return tx.Table(tblPaths).Put([]byte(p), []byte(pageID))
	})
	if err != nil {
		return nil, nil, err
	}
	return draft, lock, nil
}

// dropDraft hard-deletes a draft: releases its path, removes the index row
// and hard-deletes any attached assets. The caller has already dropped the
// lock row.
func dropDraft(tx *kvstore.Tx, draft *types.DraftInfo, eff *Effects) error {
	if err := tx.Table(tblPaths).Delete([]byte(draft.Path)); err != nil {
		return err
	}
	if err := hardDeleteOwnedAssets(tx, draft.PageID, eff); err != nil {
		return err
	}
	return tx.Table(tblPages).Delete([]byte(draft.PageID))
}
