package store

import (
	"time"

	"github.com/wikora/wikora/internal/ident"
	"github.com/wikora/wikora/internal/kvstore"
	"github.com/wikora/wikora/internal/types"
)

// issueLock creates a fresh lock row for target and returns it. The expiry
// derives from the token's own time prefix, so the token is the single
// source of truth for lock age.
func (s *Store) issueLock(tx *kvstore.Tx, target, user string) (*types.LockInfo, error) {
	token := s.ids.NewID()
	issued, err := ident.IDTime(token)
	if err != nil {
		return nil, err
	}
	lock := &types.LockInfo{
		Token:  token,
		Target: target,
		User:   user,
		Expire: types.Stamp(issued.Add(s.lockTTL)),
	}
	raw, err := marshal(lock)
	if err != nil {
		return nil, err
	}
	if err := tx.Table(tblLocks).Put([]byte(token), raw); err != nil {
		return nil, err
	}
	return lock, nil
}

func dropLock(tx *kvstore.Tx, token string) error {
	return tx.Table(tblLocks).Delete([]byte(token))
}

func getLock(tx *kvstore.Tx, token string) (*types.LockInfo, error) {
	raw := tx.Table(tblLocks).Get([]byte(token))
	if raw == nil {
		return nil, types.E(types.KindNotFound, "lock %s not found", token)
	}
	var lock types.LockInfo
	if err := unmarshal(raw, &lock); err != nil {
		return nil, err
	}
	return &lock, nil
}

// currentLockToken reads the token link from either index variant.
func currentLockToken(idx *types.PageIndex) string {
	if idx.Draft != nil {
		return idx.Draft.LockToken
	}
	return idx.Page.LockToken
}

// setLockToken writes the token link back to either index variant.
func setLockToken(tx *kvstore.Tx, idx *types.PageIndex, token string) error {
	if idx.Draft != nil {
		idx.Draft.LockToken = token
	} else {
		idx.Page.LockToken = token
	}
	return putPageIndex(tx, idx)
}

// liveLock returns the current lock if present and unexpired. An expired
// lock is treated as absent; the reaper removes the row later.
func (s *Store) liveLock(tx *kvstore.Tx, lockToken string) (*types.LockInfo, error) {
	if lockToken == "" {
		return nil, nil
	}
	lock, err := getLock(tx, lockToken)
	if err != nil {
		if types.IsKind(err, types.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if lock.Expired(s.ids.Now()) {
		return nil, nil
	}
	return lock, nil
}

// authenticate verifies that (token, user) grants write authority given the
// page's current token link. An unlocked page needs no proof; a locked page
// requires the exact current token and the holding user.
func (s *Store) authenticate(tx *kvstore.Tx, currentToken, token, user string) error {
	lock, err := s.liveLock(tx, currentToken)
	if err != nil {
		return err
	}
	if lock == nil {
		return nil
	}
	if token == "" {
		return types.E(types.KindLocked, "page is locked")
	}
	if token != lock.Token || user != lock.User {
		return types.E(types.KindForbidden, "lock authentication failed")
	}
	return nil
}

// requireHolder verifies token and user against the current live lock,
// which must exist.
func (s *Store) requireHolder(tx *kvstore.Tx, currentToken, token, user string) (*types.LockInfo, error) {
	lock, err := s.liveLock(tx, currentToken)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, types.E(types.KindNotFound, "page is not locked")
	}
	if token != lock.Token || user != lock.User {
		return nil, types.E(types.KindForbidden, "lock authentication failed")
	}
	return lock, nil
}

// Acquire locks a promoted page for user. Locking an already locked page
// is a conflict, holder identity notwithstanding.
func (s *Store) Acquire(pageID, user string) (*types.LockInfo, error) {
	var lock *types.LockInfo
	err := s.update(func(tx *kvstore.Tx) error {
		page, err := getPage(tx, pageID)
		if err != nil {
			return err
		}
		if !page.State.Live() {
			return types.E(types.KindGone, "page %s is deleted", pageID)
		}
		current, err := s.liveLock(tx, page.LockToken)
		if err != nil {
			return err
		}
		if current != nil {
			return types.E(types.KindConflict, "page %s is already locked", pageID)
		}
		if page.LockToken != "" {
			// Stale row the reaper has not swept yet.
			if err := dropLock(tx, page.LockToken); err != nil {
				return err
			}
		}
		lock, err = s.issueLock(tx, pageID, user)
		if err != nil {
			return err
		}
		page.LockToken = lock.Token
		return putPage(tx, page)
	})
	return lock, err
}

// Extend rotates the lock token and moves the deadline. The old token is
// invalid the instant this commits.
func (s *Store) Extend(pageID, token, user string) (*types.LockInfo, error) {
	var lock *types.LockInfo
	err := s.update(func(tx *kvstore.Tx) error {
		idx, err := getPageIndex(tx, pageID)
		if err != nil {
			return err
		}
		current, err := s.requireHolder(tx, currentLockToken(idx), token, user)
		if err != nil {
			return err
		}
		if err := dropLock(tx, current.Token); err != nil {
			return err
		}
		lock, err = s.issueLock(tx, pageID, user)
		if err != nil {
			return err
		}
		return setLockToken(tx, idx, lock.Token)
	})
	return lock, err
}

// Release unlocks a page. Releasing a draft's lock abandons the draft: the
// draft and its assets are hard-deleted in the same transaction.
func (s *Store) Release(pageID, token, user string) (*Effects, error) {
	eff := &Effects{}
	err := s.update(func(tx *kvstore.Tx) error {
		idx, err := getPageIndex(tx, pageID)
		if err != nil {
			return err
		}
		current, err := s.requireHolder(tx, currentLockToken(idx), token, user)
		if err != nil {
			return err
		}
		if err := dropLock(tx, current.Token); err != nil {
			return err
		}
		if idx.Draft != nil {
			return dropDraft(tx, idx.Draft, eff)
		}
		return setLockToken(tx, idx, "")
	})
	return eff, err
}

// ForceUnlock clears a page's lock without authentication (admin surface).
// Unlocking a draft abandons it.
func (s *Store) ForceUnlock(pageID string) (*Effects, error) {
	eff := &Effects{}
	err := s.update(func(tx *kvstore.Tx) error {
		idx, err := getPageIndex(tx, pageID)
		if err != nil {
			return err
		}
		token := currentLockToken(idx)
		if token == "" {
			return types.E(types.KindNotFound, "page %s is not locked", pageID)
		}
		if err := dropLock(tx, token); err != nil {
			return err
		}
		if idx.Draft != nil {
			return dropDraft(tx, idx.Draft, eff)
		}
		return setLockToken(tx, idx, "")
	})
	return eff, err
}

// Locks lists every lock row, expired included, ascending by token (and
// therefore by issue time).
func (s *Store) Locks() ([]types.LockInfo, error) {
	var out []types.LockInfo
	err := s.view(func(tx *kvstore.Tx) error {
		return tx.Table(tblLocks).Ascend(nil, nil, func(_, v []byte) (bool, error) {
			var lock types.LockInfo
			if err := unmarshal(v, &lock); err != nil {
				return false, err
			}
			out = append(out, lock)
			return true, nil
		})
	})
	return out, err
}

// DropLock removes a lock row by token and detaches it from its target
// (admin surface).
func (s *Store) DropLock(token string) (*Effects, error) {
	eff := &Effects{}
	err := s.update(func(tx *kvstore.Tx) error {
		lock, err := getLock(tx, token)
		if err != nil {
			return err
		}
		if err := dropLock(tx, token); err != nil {
			return err
		}
		return detachLock(tx, lock, eff)
	})
	return eff, err
}

// detachLock clears the page side of a removed lock row. Draft targets are
// abandoned wholesale.
func detachLock(tx *kvstore.Tx, lock *types.LockInfo, eff *Effects) error {
	idx, err := getPageIndex(tx, lock.Target)
	if err != nil {
		if types.IsKind(err, types.KindNotFound) {
			return nil
		}
		return err
	}
	if currentLockToken(idx) != lock.Token {
		return nil
	}
	if idx.Draft != nil {
		return dropDraft(tx, idx.Draft, eff)
	}
	return setLockToken(tx, idx, "")
}

// ReapExpired removes every lock whose deadline passed at now. Expired
// draft locks take their draft (and its assets) with them.
func (s *Store) ReapExpired(now time.Time) (int, *Effects, error) {
	// Collect candidates under a snapshot, then clear them in one write
	// transaction, re-checking each row inside it.
	var candidates []string
	err := s.view(func(tx *kvstore.Tx) error {
		return tx.Table(tblLocks).Ascend(nil, nil, func(k, v []byte) (bool, error) {
			var lock types.LockInfo
			if err := unmarshal(v, &lock); err != nil {
				return false, err
			}
			if lock.Expired(now) {
				candidates = append(candidates, string(k))
			}
			return true, nil
		})
	})
	if err != nil || len(candidates) == 0 {
		return 0, &Effects{}, err
	}
	eff := &Effects{}
	reaped := 0
	err = s.update(func(tx *kvstore.Tx) error {
		for _, token := range candidates {
			lock, err := getLock(tx, token)
			if err != nil {
				if types.IsKind(err, types.KindNotFound) {
					continue // released or rotated since the scan
				}
				return err
			}
			if !lock.Expired(now) {
				continue
			}
			if err := dropLock(tx, token); err != nil {
				return err
			}
			if err := detachLock(tx, lock, eff); err != nil {
				return err
			}
			reaped++
		}
		return nil
	})
	if reaped > 0 {
		s.log.WithField("count", reaped).Info("reaped expired locks")
	}
	return reaped, eff, err
}
