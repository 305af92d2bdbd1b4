package store

import (
	"github.com/wikora/wikora/internal/kvstore"
	"github.com/wikora/wikora/internal/types"
)

// MaxAssetSize is the upload ceiling. Exactly this size is accepted.
const MaxAssetSize = 10 << 20

// AddAsset records an uploaded body's metadata under a caller-chosen id:
// the body is staged on disk under the asset id before this transaction
// opens, and the caller finalizes or removes it depending on the commit
// outcome. Requires lock authentication when the owner page is locked.
func (s *Store) AddAsset(assetID, owner, fileName, mime string, size int64, uploader, token string) (*types.AssetInfo, error) {
	if fileName == "" {
		return nil, types.E(types.KindBadInput, "empty file name")
	}
	if size > MaxAssetSize {
		return nil, types.E(types.KindTooLarge, "asset exceeds %d bytes", MaxAssetSize)
	}
	var info *types.AssetInfo
	err := s.update(func(tx *kvstore.Tx) error {
		idx, err := getPageIndex(tx, owner)
		if err != nil {
			return err
		}
		if idx.Page != nil && !idx.Page.State.Live() {
			return types.E(types.KindGone, "page %s is deleted", owner)
		}
		if err := s.authenticate(tx, currentLockToken(idx), token, uploader); err != nil {
			return err
		}
		if tx.Table(tblAssetNames).Has(nameKey(owner, fileName)) {
			return types.E(types.KindConflict, "page already has an asset named %s", fileName)
		}
		info = &types.AssetInfo{
			AssetID:      assetID,
			Owner:        owner,
			OriginalName: fileName,
			MIME:         mime,
			Size:         size,
			CreatedAt:    s.ids.Stamp(),
			Uploader:     uploader,
		}
		if err := putAsset(tx, info); err != nil {
			return err
		}
		if err := tx.Table(tblAssetNames).Put(nameKey(owner, fileName), []byte(assetID)); err != nil {
			return err
		}
		return tx.Multimap(tblPageAssets).Add([]byte(owner), []byte(assetID))
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func getAsset(tx *kvstore.Tx, assetID string) (*types.AssetInfo, error) {
	raw := tx.Table(tblAssets).Get([]byte(assetID))
	if raw == nil {
		return nil, types.E(types.KindNotFound, "asset %s not found", assetID)
	}
	var info types.AssetInfo
	if err := unmarshal(raw, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func putAsset(tx *kvstore.Tx, info *types.AssetInfo) error {
	raw, err := marshal(info)
	if err != nil {
		return err
	}
	return tx.Table(tblAssets).Put([]byte(info.AssetID), raw)
}

// AssetMeta returns one asset's metadata. Zombies resolve here by design.
func (s *Store) AssetMeta(assetID string) (*types.AssetInfo, error) {
	var info *types.AssetInfo
	err := s.view(func(tx *kvstore.Tx) error {
		var err error
		info, err = getAsset(tx, assetID)
		return err
	})
	return info, err
}

// PageAssets lists a page's assets ascending by id. Soft-deleted assets
// are included with their flag set.
func (s *Store) PageAssets(pageID string) ([]types.AssetInfo, error) {
	var out []types.AssetInfo
	err := s.view(func(tx *kvstore.Tx) error {
		if _, err := getPageIndex(tx, pageID); err != nil {
			return err
		}
		refs, err := tx.Multimap(tblPageAssets).Refs([]byte(pageID))
		if err != nil {
			return err
		}
		for _, ref := range refs {
			info, err := getAsset(tx, string(ref))
			if err != nil {
				return err
			}
			out = append(out, *info)
		}
		return nil
	})
	return out, err
}

// ResolveAssetName maps (page, file name) to the asset id for indirect
// retrieval. Soft-deleted assets do not resolve by name.
func (s *Store) ResolveAssetName(pageID, fileName string) (string, error) {
	var id string
	err := s.view(func(tx *kvstore.Tx) error {
		raw := tx.Table(tblAssetNames).Get(nameKey(pageID, fileName))
		if raw == nil {
			return types.E(types.KindNotFound, "page %s has no asset named %s", pageID, fileName)
		}
		info, err := getAsset(tx, string(raw))
		if err != nil {
			return err
		}
		if info.Deleted {
			return types.E(types.KindGone, "asset %s is deleted", info.AssetID)
		}
		id = info.AssetID
		return nil
	})
	return id, err
}

// SoftDeleteAsset marks an asset deleted; the body stays on disk.
func (s *Store) SoftDeleteAsset(assetID string) error {
	return s.update(func(tx *kvstore.Tx) error {
		info, err := getAsset(tx, assetID)
		if err != nil {
			return err
		}
		if info.Deleted {
			return types.E(types.KindGone, "asset %s is already deleted", assetID)
		}
		info.Deleted = true
		return putAsset(tx, info)
	})
}

// UndeleteAsset clears the deleted flag. Zombies stay zombies: the owner
// back-reference is not checked here.
func (s *Store) UndeleteAsset(assetID string) error {
	return s.update(func(tx *kvstore.Tx) error {
		info, err := getAsset(tx, assetID)
		if err != nil {
			return err
		}
		if !info.Deleted {
			return types.E(types.KindConflict, "asset %s is not deleted", assetID)
		}
		info.Deleted = false
		return putAsset(tx, info)
	})
}

// HardDeleteAsset removes the metadata rows; the body removal happens
// after commit via the returned effects.
func (s *Store) HardDeleteAsset(assetID string) (*Effects, error) {
	eff := &Effects{}
	err := s.update(func(tx *kvstore.Tx) error {
		info, err := getAsset(tx, assetID)
		if err != nil {
			return err
		}
		return hardDeleteAssetRows(tx, info, eff)
	})
	return eff, err
}

// hardDeleteAssetRows removes every metadata row of one asset.
func hardDeleteAssetRows(tx *kvstore.Tx, info *types.AssetInfo, eff *Effects) error {
	if err := tx.Table(tblAssets).Delete([]byte(info.AssetID)); err != nil {
		return err
	}
	if err := tx.Table(tblAssetNames).Delete(nameKey(info.Owner, info.OriginalName)); err != nil {
		return err
	}
	if err := tx.Multimap(tblPageAssets).Remove([]byte(info.Owner), []byte(info.AssetID)); err != nil {
		return err
	}
	eff.removeBody(info.AssetID)
	return nil
}

// softDeleteOwnedAssets flags every asset of a page deleted. Used by page
// soft-delete; hard delete uses zombifyOwnedAssets instead.
func softDeleteOwnedAssets(tx *kvstore.Tx, pageID string) error {
	refs, err := tx.Multimap(tblPageAssets).Refs([]byte(pageID))
	if err != nil {
		return err
	}
	for _, ref := range refs {
		info, err := getAsset(tx, string(ref))
		if err != nil {
			return err
		}
		if info.Deleted {
			continue
		}
		info.Deleted = true
		if err := putAsset(tx, info); err != nil {
			return err
		}
	}
	return nil
}

// hardDeleteOwnedAssets removes every asset of a page, metadata and body.
// Draft teardown uses this; promoted pages keep zombies instead.
func hardDeleteOwnedAssets(tx *kvstore.Tx, pageID string, eff *Effects) error {
	refs, err := tx.Multimap(tblPageAssets).Refs([]byte(pageID))
	if err != nil {
		return err
	}
	for _, ref := range refs {
		info, err := getAsset(tx, string(ref))
		if err != nil {
			return err
		}
		if err := hardDeleteAssetRows(tx, info, eff); err != nil {
			return err
		}
	}
	return nil
}

// ReassignAsset moves an asset to a new owner page (admin surface). A
// zombie revives when the new owner is live.
func (s *Store) ReassignAsset(assetID, newOwner string) error {
	return s.update(func(tx *kvstore.Tx) error {
		info, err := getAsset(tx, assetID)
		if err != nil {
			return err
		}
		idx, err := getPageIndex(tx, newOwner)
		if err != nil {
			return err
		}
		if idx.Page != nil && !idx.Page.State.Live() {
			return types.E(types.KindGone, "page %s is deleted", newOwner)
		}
		if tx.Table(tblAssetNames).Has(nameKey(newOwner, info.OriginalName)) {
			return types.E(types.KindConflict, "page already has an asset named %s", info.OriginalName)
		}
		// The old owner may be hard-deleted; its rows are then absent and
		// these deletes are no-ops.
		if err := tx.Table(tblAssetNames).Delete(nameKey(info.Owner, info.OriginalName)); err != nil {
			return err
		}
		if err := tx.Multimap(tblPageAssets).Remove([]byte(info.Owner), []byte(assetID)); err != nil {
			return err
		}
		info.Owner = newOwner
		info.Deleted = false
		if err := putAsset(tx, info); err != nil {
			return err
		}
		if err := tx.Table(tblAssetNames).Put(nameKey(newOwner, info.OriginalName), []byte(assetID)); err != nil {
			return err
		}
		return tx.Multimap(tblPageAssets).Add([]byte(newOwner), []byte(assetID))
	})
}

// Assets lists every asset row ascending by id (admin surface).
func (s *Store) Assets() ([]types.AssetInfo, error) {
	var out []types.AssetInfo
	err := s.view(func(tx *kvstore.Tx) error {
		return tx.Table(tblAssets).Ascend(nil, nil, func(_, v []byte) (bool, error) {
			var info types.AssetInfo
			if err := unmarshal(v, &info); err != nil {
				return false, err
			}
			out = append(out, info)
			return true, nil
		})
	})
	return out, err
}

// HasAsset reports whether an asset row exists, for the orphan sweep.
func (s *Store) HasAsset(assetID string) (bool, error) {
	var ok bool
	err := s.view(func(tx *kvstore.Tx) error {
		ok = tx.Table(tblAssets).Has([]byte(assetID))
		return nil
	})
	return ok, err
}
