package store

import (
	"regexp"

	"github.com/wikora/wikora/internal/kvstore"
	"github.com/wikora/wikora/internal/types"
	"github.com/wikora/wikora/internal/wikipath"
)

// linkPattern matches the target of Markdown inline links pointing at
// absolute wiki paths.
var linkPattern = regexp.MustCompile(`\]\(\s*(/[^)\s]*)\s*\)`)

// resolveLinks maps every absolute path referenced by source to the page id
// it resolves to at this instant, or "" when dangling. Stored on rename
// revisions so historical renders can follow links as they were.
func resolveLinks(tx *kvstore.Tx, source string) map[string]string {
	refs := make(map[string]string)
	for _, m := range linkPattern.FindAllStringSubmatch(source, -1) {
		p, err := wikipath.Normalize(m[1])
		if err != nil {
			continue
		}
		if _, seen := refs[p]; seen {
			continue
		}
		if raw := tx.Table(tblPaths).Get([]byte(p)); raw != nil {
			refs[p] = string(raw)
		} else {
			refs[p] = ""
		}
	}
	if len(refs) == 0 {
		return nil
	}
	return refs
}

// Write stores page source. On a draft this is the promotion to revision 1;
// on a promoted page it appends, or overwrites the latest row when amend is
// set. A successful write releases the page's lock.
func (s *Store) Write(pageID, source, user string, amend bool, token string) (uint64, *Effects, error) {
	var rev uint64
	eff := &Effects{}
	err := s.update(func(tx *kvstore.Tx) error {
		idx, err := getPageIndex(tx, pageID)
		if err != nil {
			return err
		}
		if idx.Draft != nil {
			if amend {
				return types.E(types.KindForbidden, "cannot amend a draft")
			}
			rev, err = s.promoteDraft(tx, idx.Draft, source, user, token, eff)
			return err
		}
		page := idx.Page
		if !page.State.Live() {
			return types.E(types.KindGone, "page %s is deleted", pageID)
		}
		if err := s.authenticate(tx, page.LockToken, token, user); err != nil {
			return err
		}
		if amend {
			rev, err = s.amendLatest(tx, page, source, user)
		} else {
			rev, err = s.appendRevision(tx, page, source, user)
		}
		if err != nil {
			return err
		}
		eff.index(indexEvent(pageID, rev, source))
		return s.releaseAfterWrite(tx, page)
	})
	if err != nil {
		return 0, nil, err
	}
	return rev, eff, nil
}

// promoteDraft turns a draft into a page at revision 1, recording the
// creation path as the first rename event.
func (s *Store) promoteDraft(tx *kvstore.Tx, draft *types.DraftInfo, source, user, token string, eff *Effects) (uint64, error) {
	if err := s.authenticate(tx, draft.LockToken, token, user); err != nil {
		return 0, err
	}
	src := &types.PageSource{
		Revision:  1,
		CreatedAt: s.ids.Stamp(),
		UserName:  user,
		Source:    source,
		Rename: &types.RenameInfo{
			To:       draft.Path,
			LinkRefs: resolveLinks(tx, source),
		},
	}
	if err := putRevision(tx, draft.PageID, src); err != nil {
		return 0, err
	}
	page := &types.PageInfo{
		PageID:          draft.PageID,
		State:           types.PathState{Current: draft.Path},
		Latest:          1,
		GCMin:           1,
		RenameRevisions: []uint64{1},
	}
	if err := putPage(tx, page); err != nil {
		return 0, err
	}
	if draft.LockToken != "" {
		if err := dropLock(tx, draft.LockToken); err != nil {
			return 0, err
		}
	}
	eff.index(indexEvent(draft.PageID, 1, source))
	return 1, nil
}

// appendRevision adds revision latest+1 with no rename info.
func (s *Store) appendRevision(tx *kvstore.Tx, page *types.PageInfo, source, user string) (uint64, error) {
	rev := page.Latest + 1
	src := &types.PageSource{
		Revision:  rev,
		CreatedAt: s.ids.Stamp(),
		UserName:  user,
		Source:    source,
	}
	if err := putRevision(tx, page.PageID, src); err != nil {
		return 0, err
	}
	page.Latest = rev
	return rev, nil
}

// amendLatest overwrites the latest row's source text in place. Only the
// latest revision's author may amend.
func (s *Store) amendLatest(tx *kvstore.Tx, page *types.PageInfo, source, user string) (uint64, error) {
	src, err := getRevision(tx, page.PageID, page.Latest)
	if err != nil {
		return 0, err
	}
	if src.UserName != user {
		return 0, types.E(types.KindForbidden, "only the author of revision %d may amend it", page.Latest)
	}
	src.Source = source
	if err := putRevision(tx, page.PageID, src); err != nil {
		return 0, err
	}
	return page.Latest, nil
}

// releaseAfterWrite drops the lock a successful source write consumed.
func (s *Store) releaseAfterWrite(tx *kvstore.Tx, page *types.PageInfo) error {
	if page.LockToken != "" {
		if err := dropLock(tx, page.LockToken); err != nil {
			return err
		}
		page.LockToken = ""
	}
	return putPage(tx, page)
}

// Rollback appends a new revision whose content equals target's. History
// neither moves nor shrinks. Fails while the page is locked.
func (s *Store) Rollback(pageID string, target uint64) (uint64, *Effects, error) {
	var rev uint64
	eff := &Effects{}
	err := s.update(func(tx *kvstore.Tx) error {
		page, err := getPage(tx, pageID)
		if err != nil {
			return err
		}
		if !page.State.Live() {
			return types.E(types.KindGone, "page %s is deleted", pageID)
		}
		lock, err := s.liveLock(tx, page.LockToken)
		if err != nil {
			return err
		}
		if lock != nil {
			return types.E(types.KindLocked, "page %s is locked", pageID)
		}
		if target < page.GCMin || target > page.Latest {
			return types.E(types.KindNotFound, "page %s has no revision %d", pageID, target)
		}
		old, err := getRevision(tx, pageID, target)
		if err != nil {
			return err
		}
		rev, err = s.appendRevision(tx, page, old.Source, old.UserName)
		if err != nil {
			return err
		}
		eff.index(indexEvent(pageID, rev, old.Source))
		return putPage(tx, page)
	})
	if err != nil {
		return 0, nil, err
	}
	return rev, eff, nil
}

// Compact removes revisions [gc_min, keepFrom-1] and advances gc_min.
// Rename history entries for evicted revisions are dropped. Fails while
// the page is locked.
func (s *Store) Compact(pageID string, keepFrom uint64) (*Effects, error) {
	eff := &Effects{}
	err := s.update(func(tx *kvstore.Tx) error {
		page, err := getPage(tx, pageID)
		if err != nil {
			return err
		}
		lock, err := s.liveLock(tx, page.LockToken)
		if err != nil {
			return err
		}
		if lock != nil {
			return types.E(types.KindLocked, "page %s is locked", pageID)
		}
		if keepFrom > page.Latest {
			return types.E(types.KindBadInput, "keep_from %d exceeds latest revision %d", keepFrom, page.Latest)
		}
		if keepFrom <= page.GCMin {
			return nil // nothing to evict
		}
		for rev := page.GCMin; rev < keepFrom; rev++ {
			if err := tx.Table(tblRevisions).Delete(revKey(pageID, rev)); err != nil {
				return err
			}
			eff.index(evictRevision(pageID, rev))
		}
		kept := page.RenameRevisions[:0]
		for _, r := range page.RenameRevisions {
			if r >= keepFrom {
				kept = append(kept, r)
			}
		}
		page.RenameRevisions = kept
		page.GCMin = keepFrom
		return putPage(tx, page)
	})
	if err != nil {
		return nil, err
	}
	return eff, nil
}
