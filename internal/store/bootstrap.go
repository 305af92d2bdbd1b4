package store

import (
	"bytes"
	_ "embed"

	"github.com/wikora/wikora/internal/kvstore"
	"github.com/wikora/wikora/internal/types"
	"github.com/wikora/wikora/internal/wikipath"
)

//go:embed seed/root.md
var rootSeed string

// Bootstrapped reports whether the root page exists.
func (s *Store) Bootstrapped() (bool, error) {
	_, err := s.RootPageID()
	if err != nil {
		if types.IsKind(err, types.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Bootstrap creates the root page at "/" from the embedded seed document,
// authored by user. Idempotent: a bootstrapped store is left alone.
func (s *Store) Bootstrap(user string) (string, *Effects, error) {
	eff := &Effects{}
	var pageID string
	err := s.update(func(tx *kvstore.Tx) error {
		if tx.Table(tblMeta).Get([]byte(metaRootPage)) != nil {
			return nil
		}
		pageID = s.ids.NewID()
		src := &types.PageSource{
			Revision:  1,
			CreatedAt: s.ids.Stamp(),
			UserName:  user,
			Source:    rootSeed,
			Rename:    &types.RenameInfo{To: wikipath.Root},
		}
		if err := putRevision(tx, pageID, src); err != nil {
			return err
		}
		page := &types.PageInfo{
			PageID:          pageID,
			State:           types.PathState{Current: wikipath.Root},
			Latest:          1,
			GCMin:           1,
			RenameRevisions: []uint64{1},
		}
		if err := putPage(tx, page); err != nil {
			return err
		}
		if err := tx.Table(tblPaths).Put([]byte(wikipath.Root), []byte(pageID)); err != nil {
			return err
		}
		if err := tx.Table(tblMeta).Put([]byte(metaRootPage), []byte(pageID)); err != nil {
			return err
		}
		eff.index(indexEvent(pageID, 1, rootSeed))
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	if pageID != "" {
		s.log.WithField("page_id", pageID).Info("bootstrapped root page")
	}
	return pageID, eff, nil
}

// Templates snapshots the non-deleted, non-draft pages under the template
// prefix, ordered by name.
func (s *Store) Templates(prefix string) ([]types.PageMeta, error) {
	pfx, err := wikipath.Normalize(prefix)
	if err != nil {
		return nil, err
	}
	var out []types.PageMeta
	err = s.view(func(tx *kvstore.Tx) error {
		return tx.Table(tblPaths).Ascend([]byte(pfx+"/"), nil, func(_, v []byte) (bool, error) {
			idx, err := getPageIndex(tx, string(v))
			if err != nil {
				return false, err
			}
			if idx.Draft != nil {
				return true, nil
			}
			meta, err := pageMeta(tx, idx.Page)
			if err != nil {
				return false, err
			}
			out = append(out, *meta)
			return true, nil
		})
	})
	return out, err
}

// EachRevision walks every stored revision of every promoted page, for
// index rebuilds. The page id is recovered from the composite row key.
func (s *Store) EachRevision(fn func(pageID string, rev uint64, source string) error) error {
	return s.view(func(tx *kvstore.Tx) error {
		return tx.Table(tblRevisions).Ascend(nil, nil, func(k, v []byte) (bool, error) {
			var src types.PageSource
			if err := unmarshal(v, &src); err != nil {
				return false, err
			}
			sep := bytes.IndexByte(k, 0x00)
			if sep < 0 {
				return false, types.E(types.KindInternal, "malformed revision key")
			}
			if err := fn(string(k[:sep]), src.Revision, src.Source); err != nil {
				return false, err
			}
			return true, nil
		})
	})
}
