package store

import (
	"bytes"
	"fmt"

	"github.com/wikora/wikora/internal/kvstore"
	"github.com/wikora/wikora/internal/types"
)

// Check scans every table and reports invariant violations as one message
// per finding. An empty result means the store is consistent. The store
// tests call it; it takes one snapshot transaction.
func (s *Store) Check() ([]string, error) {
	var problems []string
	bad := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	err := s.view(func(tx *kvstore.Tx) error {
		// Page rows against the path tables and revision coverage.
		err := tx.Table(tblPages).Ascend(nil, nil, func(k, v []byte) (bool, error) {
			var idx types.PageIndex
			if err := unmarshal(v, &idx); err != nil {
				return false, err
			}
			id := string(k)
			if idx.Draft != nil {
				if got := tx.Table(tblPaths).Get([]byte(idx.Draft.Path)); !bytes.Equal(got, k) {
					bad("draft %s does not own its path %s", id, idx.Draft.Path)
				}
				if idx.Draft.LockToken == "" {
					bad("draft %s has no lock", id)
				}
				return true, nil
			}
			p := idx.Page
			if p.State.Live() {
				if got := tx.Table(tblPaths).Get([]byte(p.State.Current)); !bytes.Equal(got, k) {
					bad("live page %s does not own its path %s", id, p.State.Current)
				}
			} else {
				found := false
				refs, err := tx.Multimap(tblDeleted).Refs([]byte(p.State.LastDeleted))
				if err != nil {
					return false, err
				}
				for _, ref := range refs {
					if bytes.Equal(ref, k) {
						found = true
					}
				}
				if !found {
					bad("deleted page %s missing from deleted-path multimap at %s", id, p.State.LastDeleted)
				}
				if got := tx.Table(tblPaths).Get([]byte(p.State.LastDeleted)); bytes.Equal(got, k) {
					bad("deleted page %s still routed at %s", id, p.State.LastDeleted)
				}
			}
			for rev := p.GCMin; rev <= p.Latest; rev++ {
				if !tx.Table(tblRevisions).Has(revKey(id, rev)) {
					bad("page %s missing revision %d of [%d,%d]", id, rev, p.GCMin, p.Latest)
				}
			}
			if tx.Table(tblRevisions).Has(revKey(id, p.Latest+1)) {
				bad("page %s has a revision beyond latest %d", id, p.Latest)
			}
			if p.GCMin > 1 && tx.Table(tblRevisions).Has(revKey(id, p.GCMin-1)) {
				bad("page %s has a revision below gc_min %d", id, p.GCMin)
			}
			if p.GCMin == 1 {
				if len(p.RenameRevisions) == 0 || p.RenameRevisions[0] != 1 {
					bad("page %s rename history does not start at revision 1", id)
				}
			}
			last := uint64(0)
			for _, r := range p.RenameRevisions {
				if r <= last {
					bad("page %s rename history not strictly ascending", id)
				}
				last = r
				if r < p.GCMin || r > p.Latest {
					bad("page %s rename revision %d outside [%d,%d]", id, r, p.GCMin, p.Latest)
				} else if src, err := getRevision(tx, id, r); err != nil || src.Rename == nil {
					bad("page %s revision %d listed as rename but carries no rename info", id, r)
				}
			}
			if p.LockToken != "" && !tx.Table(tblLocks).Has([]byte(p.LockToken)) {
				bad("page %s links lock %s which does not exist", id, p.LockToken)
			}
			return true, nil
		})
		if err != nil {
			return err
		}

		// Path table entries must point at existing rows.
		err = tx.Table(tblPaths).Ascend(nil, nil, func(k, v []byte) (bool, error) {
			if !tx.Table(tblPages).Has(v) {
				bad("path %s routes to missing page %s", k, v)
			}
			return true, nil
		})
		if err != nil {
			return err
		}

		// Lock rows must be linked back from their targets.
		err = tx.Table(tblLocks).Ascend(nil, nil, func(k, v []byte) (bool, error) {
			var lock types.LockInfo
			if err := unmarshal(v, &lock); err != nil {
				return false, err
			}
			idx, err := getPageIndex(tx, lock.Target)
			if err != nil {
				if types.IsKind(err, types.KindNotFound) {
					bad("lock %s targets missing page %s", k, lock.Target)
					return true, nil
				}
				return false, err
			}
			if currentLockToken(idx) != lock.Token {
				bad("lock %s not linked from its target %s", k, lock.Target)
			}
			return true, nil
		})
		if err != nil {
			return err
		}

		// Name rows must agree with asset ownership and liveness.
		err = tx.Table(tblAssetNames).Ascend(nil, nil, func(k, v []byte) (bool, error) {
			info, err := getAsset(tx, string(v))
			if err != nil {
				bad("name row %q references missing asset %s", k, v)
				return true, nil
			}
			sep := bytes.IndexByte(k, 0x00)
			if sep < 0 || info.Owner != string(k[:sep]) {
				bad("asset %s name row owner mismatch", info.AssetID)
			}
			return true, nil
		})
		if err != nil {
			return err
		}

		// Every non-zombie asset must be back-linked from its owner page.
		return tx.Table(tblAssets).Ascend(nil, nil, func(k, v []byte) (bool, error) {
			var info types.AssetInfo
			if err := unmarshal(v, &info); err != nil {
				return false, err
			}
			if !tx.Table(tblPages).Has([]byte(info.Owner)) {
				if !info.Deleted {
					bad("zombie asset %s is not marked deleted", info.AssetID)
				}
				return true, nil // zombie, allowed
			}
			refs, err := tx.Multimap(tblPageAssets).Refs([]byte(info.Owner))
			if err != nil {
				return false, err
			}
			linked := false
			for _, ref := range refs {
				if bytes.Equal(ref, k) {
					linked = true
				}
			}
			if !linked {
				bad("asset %s missing from its owner's asset set", info.AssetID)
			}
			return true, nil
		})
	})
	return problems, err
}
