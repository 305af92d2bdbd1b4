package store

import (
	"github.com/wikora/wikora/internal/kvstore"
	"github.com/wikora/wikora/internal/types"
	"github.com/wikora/wikora/internal/wikipath"
)

// pageMove is one (page, old path, new path) step of a rename or restore.
type pageMove struct {
	page    *types.PageInfo
	oldPath string
	newPath string
}

// Rename moves a page, and with recursive its whole live subtree, to a new
// path in one transaction. Every moved page gains a revision carrying the
// rename event. Fails Conflict when a target path is occupied, Locked when
// the page or any moved descendant is locked.
func (s *Store) Rename(pageID, newPath string, recursive bool) (*Effects, error) {
	target, err := wikipath.Normalize(newPath)
	if err != nil {
		return nil, err
	}
	eff := &Effects{}
	err = s.update(func(tx *kvstore.Tx) error {
		page, err := getPage(tx, pageID)
		if err != nil {
			return err
		}
		if !page.State.Live() {
			return types.E(types.KindGone, "page %s is deleted", pageID)
		}
		oldPath := page.State.Current
		if wikipath.IsRoot(oldPath) {
			return types.E(types.KindForbidden, "the root page cannot be renamed")
		}
		if target == oldPath {
			return types.E(types.KindBadInput, "page is already at %s", target)
		}
		if wikipath.IsDescendant(target, oldPath) {
			return types.E(types.KindBadInput, "cannot move %s under itself", oldPath)
		}
		moves, err := s.gatherMoves(tx, page, oldPath, target, recursive)
		if err != nil {
			return err
		}
		// Vacate every old path first so subtree targets cannot collide
		// with paths that are themselves moving.
		for _, mv := range moves {
			if err := tx.Table(tblPaths).Delete([]byte(mv.oldPath)); err != nil {
				return err
			}
		}
		for _, mv := range moves {
			if tx.Table(tblPaths).Has([]byte(mv.newPath)) {
				return types.E(types.KindConflict, "path %s is occupied", mv.newPath)
			}
			if err := tx.Table(tblPaths).Put([]byte(mv.newPath), []byte(mv.page.PageID)); err != nil {
				return err
			}
		}
		// Record the rename events after the whole layout settled so link
		// resolution sees the post-rename state.
		for _, mv := range moves {
			if err := s.recordRename(tx, mv, eff); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return eff, nil
}

// gatherMoves collects the pages a rename touches and verifies none is
// locked. Drafts hold their creation lock by definition, so a draft in the
// subtree fails the operation.
func (s *Store) gatherMoves(tx *kvstore.Tx, page *types.PageInfo, oldPath, target string, recursive bool) ([]pageMove, error) {
	lock, err := s.liveLock(tx, page.LockToken)
	if err != nil {
		return nil, err
	}
	if lock != nil {
		return nil, types.E(types.KindLocked, "page %s is locked", page.PageID)
	}
	moves := []pageMove{{page: page, oldPath: oldPath, newPath: target}}
	if !recursive {
		return moves, nil
	}
	err = tx.Table(tblPaths).Ascend([]byte(oldPath+"/"), nil, func(k, v []byte) (bool, error) {
		idx, err := getPageIndex(tx, string(v))
		if err != nil {
			return false, err
		}
		if idx.Draft != nil {
			return false, types.E(types.KindLocked, "draft at %s blocks the operation", idx.Draft.Path)
		}
		sub := idx.Page
		subLock, err := s.liveLock(tx, sub.LockToken)
		if err != nil {
			return false, err
		}
		if subLock != nil {
			return false, types.E(types.KindLocked, "page %s is locked", sub.PageID)
		}
		moves = append(moves, pageMove{
			page:    sub,
			oldPath: string(k),
			newPath: wikipath.Rebase(string(k), oldPath, target),
		})
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return moves, nil
}

// recordRename appends the revision carrying the rename event and updates
// the page row.
func (s *Store) recordRename(tx *kvstore.Tx, mv pageMove, eff *Effects) error {
	latest, err := getRevision(tx, mv.page.PageID, mv.page.Latest)
	if err != nil {
		return err
	}
	rev := mv.page.Latest + 1
	src := &types.PageSource{
		Revision:  rev,
		CreatedAt: s.ids.Stamp(),
		UserName:  latest.UserName,
		Source:    latest.Source,
		Rename: &types.RenameInfo{
			From:     mv.oldPath,
			To:       mv.newPath,
			LinkRefs: resolveLinks(tx, latest.Source),
		},
	}
	if err := putRevision(tx, mv.page.PageID, src); err != nil {
		return err
	}
	mv.page.Latest = rev
	mv.page.State = types.PathState{Current: mv.newPath}
	mv.page.RenameRevisions = append(mv.page.RenameRevisions, rev)
	if err := putPage(tx, mv.page); err != nil {
		return err
	}
	eff.index(indexEvent(mv.page.PageID, rev, src.Source))
	return nil
}

// SoftDelete hides a page from path routing while keeping its data. With
// recursive the whole live subtree goes in one transaction. Owned assets
// are soft-deleted alongside.
func (s *Store) SoftDelete(pageID string, recursive bool) (*Effects, error) {
	eff := &Effects{}
	err := s.update(func(tx *kvstore.Tx) error {
		page, err := getPage(tx, pageID)
		if err != nil {
			return err
		}
		if !page.State.Live() {
			return types.E(types.KindGone, "page %s is already deleted", pageID)
		}
		oldPath := page.State.Current
		if wikipath.IsRoot(oldPath) {
			return types.E(types.KindForbidden, "the root page cannot be deleted")
		}
		moves, err := s.gatherMoves(tx, page, oldPath, oldPath, recursive)
		if err != nil {
			return err
		}
		for _, mv := range moves {
			if err := softDeleteOne(tx, mv.page, mv.oldPath); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return eff, nil
}

func softDeleteOne(tx *kvstore.Tx, page *types.PageInfo, path string) error {
	if err := tx.Table(tblPaths).Delete([]byte(path)); err != nil {
		return err
	}
	if err := tx.Multimap(tblDeleted).Add([]byte(path), []byte(page.PageID)); err != nil {
		return err
	}
	page.State = types.PathState{LastDeleted: path}
	if err := putPage(tx, page); err != nil {
		return err
	}
	return softDeleteOwnedAssets(tx, page.PageID)
}

// HardDelete removes a page irreversibly: every revision, both path
// indexes and the page row. Owned assets are soft-deleted and left behind
// as zombies for an administrator to reassign or purge.
func (s *Store) HardDelete(pageID string) (*Effects, error) {
	eff := &Effects{}
	err := s.update(func(tx *kvstore.Tx) error {
		idx, err := getPageIndex(tx, pageID)
		if err != nil {
			return err
		}
		if idx.Draft != nil {
			// Draft teardown goes through the lock release path; reaching
			// here is the admin CLI, which forces it.
			if idx.Draft.LockToken != "" {
				if err := dropLock(tx, idx.Draft.LockToken); err != nil {
					return err
				}
			}
			return dropDraft(tx, idx.Draft, eff)
		}
		page := idx.Page
		if page.State.Live() {
			if wikipath.IsRoot(page.State.Current) {
				return types.E(types.KindForbidden, "the root page cannot be deleted")
			}
			lock, err := s.liveLock(tx, page.LockToken)
			if err != nil {
				return err
			}
			if lock != nil {
				return types.E(types.KindLocked, "page %s is locked", pageID)
			}
			if err := tx.Table(tblPaths).Delete([]byte(page.State.Current)); err != nil {
				return err
			}
		} else {
			if err := tx.Multimap(tblDeleted).Remove([]byte(page.State.LastDeleted), []byte(pageID)); err != nil {
				return err
			}
		}
		if page.LockToken != "" {
			if err := dropLock(tx, page.LockToken); err != nil {
				return err
			}
		}
		for rev := page.GCMin; rev <= page.Latest; rev++ {
			if err := tx.Table(tblRevisions).Delete(revKey(pageID, rev)); err != nil {
				return err
			}
		}
		if err := zombifyOwnedAssets(tx, pageID); err != nil {
			return err
		}
		if err := tx.Table(tblPages).Delete([]byte(pageID)); err != nil {
			return err
		}
		eff.index(evictPage(pageID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return eff, nil
}

// zombifyOwnedAssets soft-deletes a hard-deleted page's assets and cuts
// their path-side rows, leaving only the id-addressed metadata with a
// dangling owner reference.
func zombifyOwnedAssets(tx *kvstore.Tx, pageID string) error {
	refs, err := tx.Multimap(tblPageAssets).Refs([]byte(pageID))
	if err != nil {
		return err
	}
	for _, ref := range refs {
		info, err := getAsset(tx, string(ref))
		if err != nil {
			return err
		}
		info.Deleted = true
		if err := putAsset(tx, info); err != nil {
			return err
		}
		if err := tx.Table(tblAssetNames).Delete(nameKey(pageID, info.OriginalName)); err != nil {
			return err
		}
		if err := tx.Multimap(tblPageAssets).Remove([]byte(pageID), []byte(info.AssetID)); err != nil {
			return err
		}
	}
	return nil
}

// Restore reattaches a soft-deleted page at targetPath without appending a
// revision. With recursive, soft-deleted descendants of the page's last
// deleted path come back preserving their relative paths.
func (s *Store) Restore(pageID, targetPath string, recursive bool) error {
	target, err := wikipath.Normalize(targetPath)
	if err != nil {
		return err
	}
	return s.update(func(tx *kvstore.Tx) error {
		page, err := getPage(tx, pageID)
		if err != nil {
			return err
		}
		if page.State.Live() {
			return types.E(types.KindConflict, "page %s is not deleted", pageID)
		}
		oldPath := page.State.LastDeleted
		if err := restoreOne(tx, page, target); err != nil {
			return err
		}
		if !recursive {
			return nil
		}
		// Collect first: restoring mutates the multimap being walked.
		type cand struct {
			id   string
			path string
		}
		var cands []cand
		err = tx.Multimap(tblDeleted).AscendKeys([]byte(oldPath+"/"), func(key, ref []byte) (bool, error) {
			cands = append(cands, cand{id: string(ref), path: string(key)})
			return true, nil
		})
		if err != nil {
			return err
		}
		for _, c := range cands {
			sub, err := getPage(tx, c.id)
			if err != nil {
				return err
			}
			if err := restoreOne(tx, sub, wikipath.Rebase(c.path, oldPath, target)); err != nil {
				return err
			}
		}
		return nil
	})
}

func restoreOne(tx *kvstore.Tx, page *types.PageInfo, target string) error {
	if tx.Table(tblPaths).Has([]byte(target)) {
		return types.E(types.KindConflict, "path %s is occupied", target)
	}
	if err := tx.Multimap(tblDeleted).Remove([]byte(page.State.LastDeleted), []byte(page.PageID)); err != nil {
		return err
	}
	if err := tx.Table(tblPaths).Put([]byte(target), []byte(page.PageID)); err != nil {
		return err
	}
	page.State = types.PathState{Current: target}
	if err := putPage(tx, page); err != nil {
		return err
	}
	return undeleteOwnedAssets(tx, page.PageID)
}

// undeleteOwnedAssets clears the deleted flag the page's soft delete set.
func undeleteOwnedAssets(tx *kvstore.Tx, pageID string) error {
	refs, err := tx.Multimap(tblPageAssets).Refs([]byte(pageID))
	if err != nil {
		return err
	}
	for _, ref := range refs {
		info, err := getAsset(tx, string(ref))
		if err != nil {
			return err
		}
		if !info.Deleted {
			continue
		}
		info.Deleted = false
		if err := putAsset(tx, info); err != nil {
			return err
		}
	}
	return nil
}
