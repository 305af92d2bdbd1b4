package store

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/wikora/wikora/internal/kvstore"
	"github.com/wikora/wikora/internal/types"
)

// BcryptCost is the hashing cost for stored passwords.
const BcryptCost = 10

// AddUser creates a credential row. The first user triggers no side
// effects here; root-page bootstrap is the service layer's business.
func (s *Store) AddUser(name, displayName, password string, admin bool) (*types.User, error) {
	if name == "" {
		return nil, types.E(types.KindBadInput, "empty user name")
	}
	if password == "" {
		return nil, types.E(types.KindBadInput, "empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return nil, types.Wrap(types.KindInternal, err, "hashing password")
	}
	user := &types.User{
		Name:         name,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Admin:        admin,
		CreatedAt:    s.ids.Stamp(),
	}
	err = s.update(func(tx *kvstore.Tx) error {
		if tx.Table(tblUsers).Has([]byte(name)) {
			return types.E(types.KindConflict, "user %s already exists", name)
		}
		raw, err := marshal(user)
		if err != nil {
			return err
		}
		return tx.Table(tblUsers).Put([]byte(name), raw)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser loads one credential row.
func (s *Store) GetUser(name string) (*types.User, error) {
	var user *types.User
	err := s.view(func(tx *kvstore.Tx) error {
		raw := tx.Table(tblUsers).Get([]byte(name))
		if raw == nil {
			return types.E(types.KindNotFound, "user %s not found", name)
		}
		user = &types.User{}
		return unmarshal(raw, user)
	})
	return user, err
}

// Authenticate verifies name/password and returns the user row.
func (s *Store) Authenticate(name, password string) (*types.User, error) {
	user, err := s.GetUser(name)
	if err != nil {
		if types.IsKind(err, types.KindNotFound) {
			return nil, types.E(types.KindForbidden, "authentication failed")
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, types.E(types.KindForbidden, "authentication failed")
	}
	return user, nil
}

// EditUser updates display name, password and admin flag. Empty password
// keeps the current hash.
func (s *Store) EditUser(name, displayName, password string, admin *bool) (*types.User, error) {
	var user *types.User
	err := s.update(func(tx *kvstore.Tx) error {
		raw := tx.Table(tblUsers).Get([]byte(name))
		if raw == nil {
			return types.E(types.KindNotFound, "user %s not found", name)
		}
		user = &types.User{}
		if err := unmarshal(raw, user); err != nil {
			return err
		}
		if displayName != "" {
			user.DisplayName = displayName
		}
		if password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
			if err != nil {
				return types.Wrap(types.KindInternal, err, "hashing password")
			}
			user.PasswordHash = string(hash)
		}
		if admin != nil {
			user.Admin = *admin
		}
		out, err := marshal(user)
		if err != nil {
			return err
		}
		return tx.Table(tblUsers).Put([]byte(name), out)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes a credential row. Pages and assets created by the
// user keep their author strings.
func (s *Store) DeleteUser(name string) error {
	return s.update(func(tx *kvstore.Tx) error {
		if !tx.Table(tblUsers).Has([]byte(name)) {
			return types.E(types.KindNotFound, "user %s not found", name)
		}
		return tx.Table(tblUsers).Delete([]byte(name))
	})
}

// Users lists every credential row ascending by name.
func (s *Store) Users() ([]types.User, error) {
	var out []types.User
	err := s.view(func(tx *kvstore.Tx) error {
		return tx.Table(tblUsers).Ascend(nil, nil, func(_, v []byte) (bool, error) {
			var u types.User
			if err := unmarshal(v, &u); err != nil {
				return false, err
			}
			out = append(out, u)
			return true, nil
		})
	})
	return out, err
}

// UserCount reports how many users exist, for bootstrap decisions.
func (s *Store) UserCount() (int, error) {
	n := 0
	err := s.view(func(tx *kvstore.Tx) error {
		return tx.Table(tblUsers).Ascend(nil, nil, func(_, _ []byte) (bool, error) {
			n++
			return true, nil
		})
	})
	return n, err
}
