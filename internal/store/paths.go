package store

import (
	"github.com/wikora/wikora/internal/kvstore"
	"github.com/wikora/wikora/internal/types"
	"github.com/wikora/wikora/internal/wikipath"
)

// DefaultListLimit applies when a list request does not set a limit.
const DefaultListLimit = 50

// ListDirection selects enumeration order.
type ListDirection int

const (
	// Forward enumerates ascending from the cursor (exclusive).
	Forward ListDirection = iota
	// Rewind enumerates descending from the cursor (exclusive).
	Rewind
)

// ListItem is one entry of a prefix listing.
type ListItem struct {
	Path    string `json:"path"`
	PageID  string `json:"page_id"`
	Deleted bool   `json:"deleted,omitempty"`
	Draft   bool   `json:"draft,omitempty"`
}

// ListResult is a listing page. Anchor is set only when more entries
// remain past the returned window.
type ListResult struct {
	Items   []ListItem `json:"items"`
	Anchor  string     `json:"anchor,omitempty"`
	HasMore bool       `json:"has_more"`
}

// Resolve maps a live path to its page id.
func (s *Store) Resolve(path string) (string, error) {
	p, err := wikipath.Normalize(path)
	if err != nil {
		return "", err
	}
	var id string
	err = s.view(func(tx *kvstore.Tx) error {
		raw := tx.Table(tblPaths).Get([]byte(p))
		if raw == nil {
			return types.E(types.KindNotFound, "no page at %s", p)
		}
		id = string(raw)
		return nil
	})
	return id, err
}

// List enumerates pages under prefix in lexicographic path order. The
// cursor entry itself is excluded. With withDeleted, pages whose last
// deleted path falls under the prefix are merged in; drafts appear only in
// the live walk.
func (s *Store) List(prefix, cursor string, dir ListDirection, limit int, withDeleted bool) (*ListResult, error) {
	if prefix == "" {
		prefix = wikipath.Root
	}
	pfx, err := wikipath.Normalize(prefix)
	if err != nil {
		return nil, err
	}
	if cursor != "" {
		if cursor, err = wikipath.Normalize(cursor); err != nil {
			return nil, err
		}
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var live, deleted []ListItem
	err = s.view(func(tx *kvstore.Tx) error {
		// Over-collect by one so HasMore is exact after the merge.
		want := limit + 1
		if err := collectLive(tx, pfx, cursor, dir, want, &live); err != nil {
			return err
		}
		if withDeleted {
			return collectDeleted(tx, pfx, cursor, dir, want, &deleted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	merged := mergeListings(live, deleted, dir)
	res := &ListResult{}
	if len(merged) > limit {
		res.HasMore = true
		merged = merged[:limit]
		res.Anchor = merged[len(merged)-1].Path
	}
	res.Items = merged
	return res, nil
}

func collectLive(tx *kvstore.Tx, pfx, cursor string, dir ListDirection, want int, out *[]ListItem) error {
	var after []byte
	if cursor != "" {
		after = []byte(cursor)
	}
	visit := func(k, v []byte) (bool, error) {
		item := ListItem{Path: string(k), PageID: string(v)}
		idx, err := getPageIndex(tx, item.PageID)
		if err != nil {
			return false, err
		}
		item.Draft = idx.Draft != nil
		*out = append(*out, item)
		return len(*out) < want, nil
	}
	if dir == Rewind {
		return tx.Table(tblPaths).Descend([]byte(pfx), after, visit)
	}
	return tx.Table(tblPaths).Ascend([]byte(pfx), after, visit)
}

func collectDeleted(tx *kvstore.Tx, pfx, cursor string, dir ListDirection, want int, out *[]ListItem) error {
	if dir == Rewind {
		// The deleted multimap is small relative to the live index; walk the
		// prefix ascending and take the tail in reverse.
		var asc []ListItem
		err := tx.Multimap(tblDeleted).AscendKeys([]byte(pfx), func(key, ref []byte) (bool, error) {
			p := string(key)
			if cursor != "" && p >= cursor {
				return true, nil
			}
			asc = append(asc, ListItem{Path: p, PageID: string(ref), Deleted: true})
			return true, nil
		})
		if err != nil {
			return err
		}
		for i := len(asc) - 1; i >= 0 && len(*out) < want; i-- {
			*out = append(*out, asc[i])
		}
		return nil
	}
	return tx.Multimap(tblDeleted).AscendKeys([]byte(pfx), func(key, ref []byte) (bool, error) {
		p := string(key)
		if cursor != "" && p <= cursor {
			return true, nil
		}
		*out = append(*out, ListItem{Path: p, PageID: string(ref), Deleted: true})
		return len(*out) < want, nil
	})
}

// mergeListings interleaves live and deleted windows preserving path order.
func mergeListings(a, b []ListItem, dir ListDirection) []ListItem {
	out := make([]ListItem, 0, len(a)+len(b))
	i, j := 0, 0
	less := func(x, y ListItem) bool {
		if x.Path != y.Path {
			if dir == Rewind {
				return x.Path > y.Path
			}
			return x.Path < y.Path
		}
		return x.PageID < y.PageID
	}
	for i < len(a) && j < len(b) {
		if less(a[i], b[j]) {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// DeletedCandidates returns the pages whose last deleted path equals path,
// ascending by page id. Drafts never appear: draft removal is a hard
// delete.
func (s *Store) DeletedCandidates(path string) ([]types.PageMeta, error) {
	p, err := wikipath.Normalize(path)
	if err != nil {
		return nil, err
	}
	var out []types.PageMeta
	err = s.view(func(tx *kvstore.Tx) error {
		refs, err := tx.Multimap(tblDeleted).Refs([]byte(p))
		if err != nil {
			return err
		}
		for _, ref := range refs {
			page, err := getPage(tx, string(ref))
			if err != nil {
				return err
			}
			meta, err := pageMeta(tx, page)
			if err != nil {
				return err
			}
			out = append(out, *meta)
		}
		return nil
	})
	return out, err
}
