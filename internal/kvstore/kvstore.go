// Package kvstore wraps bbolt with the table model the store layer works
// in: ordered keyed tables plus multimap tables, mutated inside exactly one
// serializable write transaction, read through snapshot views.
package kvstore

import (
	"bytes"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/wikora/wikora/internal/types"
)

// TableName identifies one bucket. Names are registered at Open time so a
// typo fails startup, not a transaction.
type TableName string

// DB is an open database file. One writer at a time; readers snapshot.
type DB struct {
	bolt   *bolt.DB
	tables []TableName
}

// Open opens (creating if needed) the database at path and ensures every
// registered table exists.
func Open(path string, tables []TableName) (*DB, error) {
	b, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening kv database %s: %w", path, err)
	}
	err = b.Update(func(tx *bolt.Tx) error {
		for _, name := range tables {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("creating table %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return &DB{bolt: b, tables: tables}, nil
}

// Close releases the database file.
func (d *DB) Close() error { return d.bolt.Close() }

// Path returns the database file path.
func (d *DB) Path() string { return d.bolt.Path() }

// Update runs fn inside the single write transaction. Returning an error
// rolls every mutation back.
func (d *DB) Update(fn func(tx *Tx) error) error {
	return d.bolt.Update(func(btx *bolt.Tx) error {
		return fn(&Tx{btx: btx})
	})
}

// View runs fn against a consistent snapshot.
func (d *DB) View(fn func(tx *Tx) error) error {
	return d.bolt.View(func(btx *bolt.Tx) error {
		return fn(&Tx{btx: btx})
	})
}

// Tx is one transaction, write or snapshot.
type Tx struct {
	btx *bolt.Tx
}

// OnCommit registers fn to run if and only if this transaction commits.
// Write transactions only.
func (tx *Tx) OnCommit(fn func()) {
	tx.btx.OnCommit(fn)
}

// Table returns the handle for a registered unique-key table.
func (tx *Tx) Table(name TableName) Table {
	b := tx.btx.Bucket([]byte(name))
	if b == nil {
		panic(fmt.Sprintf("kvstore: unregistered table %q", name))
	}
	return Table{b: b}
}

// Multimap returns the handle for a registered multimap table.
func (tx *Tx) Multimap(name TableName) Multimap {
	return Multimap{t: tx.Table(name)}
}

// Table is an ordered unique-key table.
type Table struct {
	b *bolt.Bucket
}

// Get returns the value for key, or nil when absent. The returned slice is
// only valid for the duration of the transaction.
func (t Table) Get(key []byte) []byte { return t.b.Get(key) }

// Put stores key → val.
func (t Table) Put(key, val []byte) error {
	if err := t.b.Put(key, val); err != nil {
		return types.Wrap(types.KindInternal, err, "kv put")
	}
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (t Table) Delete(key []byte) error {
	if err := t.b.Delete(key); err != nil {
		return types.Wrap(types.KindInternal, err, "kv delete")
	}
	return nil
}

// Has reports whether key is present.
func (t Table) Has(key []byte) bool { return t.b.Get(key) != nil }

// Ascend iterates keys with the given prefix in ascending order, starting
// strictly after the after key when it is non-nil. fn returns false to stop.
func (t Table) Ascend(prefix, after []byte, fn func(k, v []byte) (bool, error)) error {
	c := t.b.Cursor()
	var k, v []byte
	if after != nil {
		k, v = c.Seek(after)
		if k != nil && bytes.Equal(k, after) {
			k, v = c.Next()
		}
	} else {
		k, v = c.Seek(prefix)
	}
	for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		cont, err := fn(k, v)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// Descend iterates keys with the given prefix in descending order, starting
// strictly before the before key when it is non-nil.
func (t Table) Descend(prefix, before []byte, fn func(k, v []byte) (bool, error)) error {
	c := t.b.Cursor()
	var k, v []byte
	if before != nil {
		k, v = c.Seek(before)
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
	} else {
		// Position on the last key within the prefix range: seek the
		// smallest key greater than every prefixed key.
		upper := upperBound(prefix)
		if upper == nil {
			k, v = c.Last()
		} else {
			k, v = c.Seek(upper)
			if k == nil {
				k, v = c.Last()
			} else {
				k, v = c.Prev()
			}
		}
	}
	for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Prev() {
		cont, err := fn(k, v)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// upperBound returns the smallest byte string greater than every string
// with the given prefix, or nil when no such string exists.
func upperBound(prefix []byte) []byte {
	up := bytes.Clone(prefix)
	for i := len(up) - 1; i >= 0; i-- {
		if up[i] < 0xff {
			up[i]++
			return up[:i+1]
		}
	}
	return nil
}

// sep separates the key from the reference in multimap entries. Keys are
// validated to never contain NUL.
const sep = 0x00

// Multimap is an ordered table where one key holds many references,
// encoded as composite `key NUL ref` entries.
type Multimap struct {
	t Table
}

func compose(key, ref []byte) []byte {
	k := make([]byte, 0, len(key)+1+len(ref))
	k = append(k, key...)
	k = append(k, sep)
	k = append(k, ref...)
	return k
}

// Add records ref under key. Adding an existing pair is a no-op.
func (m Multimap) Add(key, ref []byte) error {
	return m.t.Put(compose(key, ref), ref)
}

// Remove deletes one pair.
func (m Multimap) Remove(key, ref []byte) error {
	return m.t.Delete(compose(key, ref))
}

// Refs returns every reference stored under key, in ascending order.
func (m Multimap) Refs(key []byte) ([][]byte, error) {
	var out [][]byte
	err := m.t.Ascend(append(bytes.Clone(key), sep), nil, func(_, v []byte) (bool, error) {
		out = append(out, bytes.Clone(v))
		return true, nil
	})
	return out, err
}

// RemoveAll deletes every pair under key and returns how many were removed.
func (m Multimap) RemoveAll(key []byte) (int, error) {
	refs, err := m.Refs(key)
	if err != nil {
		return 0, err
	}
	for _, ref := range refs {
		if err := m.Remove(key, ref); err != nil {
			return 0, err
		}
	}
	return len(refs), nil
}

// AscendKeys iterates distinct (key, ref) pairs whose key has the given
// prefix, ascending.
func (m Multimap) AscendKeys(prefix []byte, fn func(key, ref []byte) (bool, error)) error {
	return m.t.Ascend(prefix, nil, func(k, v []byte) (bool, error) {
		i := bytes.IndexByte(k, sep)
		if i < 0 {
			return true, nil
		}
		return fn(k[:i], v)
	})
}
