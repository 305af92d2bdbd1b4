package kvstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tblPages TableName = "pages"
	tblPaths TableName = "paths"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), []TableName{tblPages, tblPaths})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPutGetDelete(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Update(func(tx *Tx) error {
		return tx.Table(tblPages).Put([]byte("k"), []byte("v"))
	}))

	require.NoError(t, db.View(func(tx *Tx) error {
		assert.Equal(t, []byte("v"), tx.Table(tblPages).Get([]byte("k")))
		assert.Nil(t, tx.Table(tblPages).Get([]byte("missing")))
		return nil
	}))

	require.NoError(t, db.Update(func(tx *Tx) error {
		return tx.Table(tblPages).Delete([]byte("k"))
	}))
	require.NoError(t, db.View(func(tx *Tx) error {
		assert.False(t, tx.Table(tblPages).Has([]byte("k")))
		return nil
	}))
}

func TestUpdateRollsBackOnError(t *testing.T) {
	db := openTestDB(t)

	boom := assert.AnError
	err := db.Update(func(tx *Tx) error {
		if err := tx.Table(tblPages).Put([]byte("k"), []byte("v")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, db.View(func(tx *Tx) error {
		assert.Nil(t, tx.Table(tblPages).Get([]byte("k")))
		return nil
	}))
}

func TestAscendDescendWithCursor(t *testing.T) {
	db := openTestDB(t)

	keys := []string{"/a", "/a/b", "/a/c", "/ab", "/b"}
	require.NoError(t, db.Update(func(tx *Tx) error {
		tbl := tx.Table(tblPaths)
		for _, k := range keys {
			if err := tbl.Put([]byte(k), []byte("x")); err != nil {
				return err
			}
		}
		return nil
	}))

	collect := func(fn func(tbl Table, out *[]string) error) []string {
		var out []string
		require.NoError(t, db.View(func(tx *Tx) error {
			return fn(tx.Table(tblPaths), &out)
		}))
		return out
	}

	all := collect(func(tbl Table, out *[]string) error {
		return tbl.Ascend([]byte("/a"), nil, func(k, _ []byte) (bool, error) {
			*out = append(*out, string(k))
			return true, nil
		})
	})
	assert.Equal(t, []string{"/a", "/a/b", "/a/c", "/ab"}, all)

	afterCursor := collect(func(tbl Table, out *[]string) error {
		return tbl.Ascend([]byte("/a"), []byte("/a/b"), func(k, _ []byte) (bool, error) {
			*out = append(*out, string(k))
			return true, nil
		})
	})
	assert.Equal(t, []string{"/a/c", "/ab"}, afterCursor, "cursor key itself is excluded")

	desc := collect(func(tbl Table, out *[]string) error {
		return tbl.Descend([]byte("/a"), nil, func(k, _ []byte) (bool, error) {
			*out = append(*out, string(k))
			return true, nil
		})
	})
	assert.Equal(t, []string{"/ab", "/a/c", "/a/b", "/a"}, desc)

	descBefore := collect(func(tbl Table, out *[]string) error {
		return tbl.Descend([]byte("/a"), []byte("/a/c"), func(k, _ []byte) (bool, error) {
			*out = append(*out, string(k))
			return true, nil
		})
	})
	assert.Equal(t, []string{"/a/b", "/a"}, descBefore)
}

func TestMultimap(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Update(func(tx *Tx) error {
		m := tx.Multimap(tblPaths)
		for _, ref := range []string{"id2", "id1", "id3"} {
			if err := m.Add([]byte("/p"), []byte(ref)); err != nil {
				return err
			}
		}
		return m.Add([]byte("/q"), []byte("id9"))
	}))

	require.NoError(t, db.View(func(tx *Tx) error {
		refs, err := tx.Multimap(tblPaths).Refs([]byte("/p"))
		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("id1"), []byte("id2"), []byte("id3")}, refs)
		return nil
	}))

	require.NoError(t, db.Update(func(tx *Tx) error {
		return tx.Multimap(tblPaths).Remove([]byte("/p"), []byte("id2"))
	}))
	require.NoError(t, db.View(func(tx *Tx) error {
		refs, err := tx.Multimap(tblPaths).Refs([]byte("/p"))
		require.NoError(t, err)
		assert.Len(t, refs, 2)
		refsQ, err := tx.Multimap(tblPaths).Refs([]byte("/q"))
		require.NoError(t, err)
		assert.Len(t, refsQ, 1, "other keys unaffected")
		return nil
	}))
}

func TestUpperBound(t *testing.T) {
	assert.Equal(t, []byte("/b"), upperBound([]byte("/a")))
	assert.Nil(t, upperBound([]byte{0xff}))
	assert.Nil(t, upperBound(nil))
}
