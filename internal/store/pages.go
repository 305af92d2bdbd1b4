package store

import (
	"github.com/wikora/wikora/internal/kvstore"
	"github.com/wikora/wikora/internal/types"
	"github.com/wikora/wikora/internal/wikipath"
)

// Meta returns the read-model for one page id (draft or promoted).
func (s *Store) Meta(id string) (*types.PageMeta, error) {
	var meta *types.PageMeta
	err := s.view(func(tx *kvstore.Tx) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx.Draft != nil {
			meta = &types.PageMeta{
				PageID: idx.Draft.PageID,
				Path:   idx.Draft.Path,
				Draft:  true,
				Locked: true, // a draft always holds its creation lock
			}
			return nil
		}
		meta, err = pageMeta(tx, idx.Page)
		return err
	})
	return meta, err
}

// pageMeta builds the read-model inside a transaction.
func pageMeta(tx *kvstore.Tx, p *types.PageInfo) (*types.PageMeta, error) {
	meta := &types.PageMeta{
		PageID:          p.PageID,
		Path:            p.State.Path(),
		Latest:          p.Latest,
		Oldest:          p.GCMin,
		RenameRevisions: append([]uint64(nil), p.RenameRevisions...),
		Locked:          p.LockToken != "",
		Deleted:         !p.State.Live(),
	}
	if oldest, err := getRevision(tx, p.PageID, p.GCMin); err == nil {
		meta.CreatedAt = oldest.CreatedAt
	}
	if latest, err := getRevision(tx, p.PageID, p.Latest); err == nil {
		meta.UpdatedAt = latest.CreatedAt
	}
	return meta, nil
}

// Source returns one revision's row. rev zero means latest. Pinned reads of
// drafts answer NotFound because drafts have no revisions.
func (s *Store) Source(id string, rev uint64) (*types.PageSource, error) {
	var src *types.PageSource
	err := s.view(func(tx *kvstore.Tx) error {
		page, err := getPage(tx, id)
		if err != nil {
			return err
		}
		if rev == 0 {
			rev = page.Latest
		}
		if rev < page.GCMin || rev > page.Latest {
			return types.E(types.KindNotFound, "page %s has no revision %d", id, rev)
		}
		src, err = getRevision(tx, id, rev)
		return err
	})
	return src, err
}

// History lists revision metadata for [oldest, latest], ascending.
func (s *Store) History(id string) ([]types.RevisionMeta, error) {
	var out []types.RevisionMeta
	err := s.view(func(tx *kvstore.Tx) error {
		page, err := getPage(tx, id)
		if err != nil {
			return err
		}
		for rev := page.GCMin; rev <= page.Latest; rev++ {
			src, err := getRevision(tx, id, rev)
			if err != nil {
				return err
			}
			m := types.RevisionMeta{
				Revision:  src.Revision,
				CreatedAt: src.CreatedAt,
				UserName:  src.UserName,
				Renamed:   src.Rename != nil,
				Path:      resolvePathAt(tx, page, rev),
			}
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

// PathAt resolves the page's path as of revision rev by walking the rename
// history: the greatest rename revision ≤ rev names the path.
func (s *Store) PathAt(id string, rev uint64) (string, error) {
	var path string
	err := s.view(func(tx *kvstore.Tx) error {
		page, err := getPage(tx, id)
		if err != nil {
			return err
		}
		path = resolvePathAt(tx, page, rev)
		return nil
	})
	return path, err
}

// resolvePathAt walks rename_revisions inside a transaction and reads the
// winning revision's rename target.
func resolvePathAt(tx *kvstore.Tx, p *types.PageInfo, rev uint64) string {
	var at uint64
	for _, r := range p.RenameRevisions {
		if r > rev {
			break
		}
		at = r
	}
	if at == 0 {
		// Every listed rename row was compacted away; the page's current
		// path is the only answer left.
		return p.State.Path()
	}
	src, err := getRevision(tx, p.PageID, at)
	if err != nil || src.Rename == nil {
		return p.State.Path()
	}
	return src.Rename.To
}

// Parent returns the meta of the page at the parent path of id's page.
// With recursive, it walks up until a live page is found; the root answers
// for itself.
func (s *Store) Parent(id string, recursive bool) (*types.PageMeta, error) {
	var meta *types.PageMeta
	err := s.view(func(tx *kvstore.Tx) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		var path string
		if idx.Draft != nil {
			path = idx.Draft.Path
		} else {
			path = idx.Page.State.Path()
		}
		for {
			path = wikipath.Parent(path)
			raw := tx.Table(tblPaths).Get([]byte(path))
			if raw != nil {
				page, err := getPage(tx, string(raw))
				if err != nil {
					return err
				}
				meta, err = pageMeta(tx, page)
				return err
			}
			if !recursive {
				return types.E(types.KindNotFound, "no page at %s", path)
			}
			if wikipath.IsRoot(path) {
				return types.E(types.KindNotFound, "root page missing")
			}
		}
	})
	return meta, err
}

// RootPageID returns the bootstrap page id, or NotFound before bootstrap.
func (s *Store) RootPageID() (string, error) {
	var id string
	err := s.view(func(tx *kvstore.Tx) error {
		raw := tx.Table(tblMeta).Get([]byte(metaRootPage))
		if raw == nil {
			return types.E(types.KindNotFound, "root page not bootstrapped")
		}
		id = string(raw)
		return nil
	})
	return id, err
}
