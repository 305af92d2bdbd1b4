// Package store implements the wiki's persistence engine: page identity,
// path routing, revision history, locks, assets and users, kept mutually
// consistent by running every mutating operation inside exactly one write
// transaction of the KV substrate.
package store

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wikora/wikora/internal/ident"
	"github.com/wikora/wikora/internal/kvstore"
	"github.com/wikora/wikora/internal/types"
)

// Table registry. Every persistent relation lives in one of these buckets.
const (
	tblPages      kvstore.TableName = "pages"       // page_id -> PageIndex
	tblPaths      kvstore.TableName = "paths"       // live path -> page_id (drafts included)
	tblDeleted    kvstore.TableName = "deleted"     // multimap: deleted path -> page_id
	tblRevisions  kvstore.TableName = "revisions"   // page_id NUL be64(rev) -> PageSource
	tblLocks      kvstore.TableName = "locks"       // token -> LockInfo
	tblAssets     kvstore.TableName = "assets"      // asset_id -> AssetInfo
	tblAssetNames kvstore.TableName = "asset_names" // page_id NUL file_name -> asset_id
	tblPageAssets kvstore.TableName = "page_assets" // multimap: page_id -> asset_id
	tblUsers      kvstore.TableName = "users"       // name -> User
	tblMeta       kvstore.TableName = "meta"        // singletons (root page id)
)

func allTables() []kvstore.TableName {
	return []kvstore.TableName{
		tblPages, tblPaths, tblDeleted, tblRevisions, tblLocks,
		tblAssets, tblAssetNames, tblPageAssets, tblUsers, tblMeta,
	}
}

const (
	// DefaultLockTTL bounds how long an edit lock holds without extension.
	DefaultLockTTL = 300 * time.Second

	metaRootPage = "root_page_id"
)

// Store owns the KV database and the identifier service.
type Store struct {
	db      *kvstore.DB
	ids     *ident.Generator
	lockTTL time.Duration
	log     *logrus.Entry
}

// Options tune an opened store.
type Options struct {
	LockTTL time.Duration    // zero means DefaultLockTTL
	IDs     *ident.Generator // nil means a fresh system-clock generator
	Log     *logrus.Logger   // nil means the standard logger
}

// Open opens (creating if needed) the database file at path.
func Open(path string, opts Options) (*Store, error) {
	db, err := kvstore.Open(path, allTables())
	if err != nil {
		return nil, err
	}
	if opts.LockTTL == 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if opts.IDs == nil {
		opts.IDs = ident.New()
	}
	logger := opts.Log
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{
		db:      db,
		ids:     opts.IDs,
		lockTTL: opts.LockTTL,
		log:     logger.WithField("component", "store"),
	}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// IDs exposes the identifier service (the asset staging path needs ids
// before the transaction opens).
func (s *Store) IDs() *ident.Generator { return s.ids }

// LockTTL returns the configured lock lifetime.
func (s *Store) LockTTL() time.Duration { return s.lockTTL }

// update opens the single write transaction.
func (s *Store) update(fn func(tx *kvstore.Tx) error) error {
	return s.db.Update(fn)
}

// view opens a snapshot read transaction.
func (s *Store) view(fn func(tx *kvstore.Tx) error) error {
	return s.db.View(fn)
}

// revKey encodes the composite revision key. Page ids are fixed-width
// ULIDs, but the NUL keeps the encoding self-delimiting anyway.
func revKey(pageID string, rev uint64) []byte {
	k := make([]byte, 0, len(pageID)+9)
	k = append(k, pageID...)
	k = append(k, 0x00)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], rev)
	return append(k, b[:]...)
}

// revPrefix is the scan prefix covering every revision of a page.
func revPrefix(pageID string) []byte {
	return append([]byte(pageID), 0x00)
}

// nameKey encodes the per-page unique file-name key.
func nameKey(pageID, fileName string) []byte {
	k := make([]byte, 0, len(pageID)+1+len(fileName))
	k = append(k, pageID...)
	k = append(k, 0x00)
	return append(k, fileName...)
}

func marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, types.Wrap(types.KindInternal, err, "encoding record")
	}
	return b, nil
}

func unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return types.Wrap(types.KindInternal, err, "decoding record")
	}
	return nil
}

// getPageIndex loads the tagged index row for id, or NotFound.
func getPageIndex(tx *kvstore.Tx, id string) (*types.PageIndex, error) {
	raw := tx.Table(tblPages).Get([]byte(id))
	if raw == nil {
		return nil, types.E(types.KindNotFound, "page %s not found", id)
	}
	var idx types.PageIndex
	if err := unmarshal(raw, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

func putPageIndex(tx *kvstore.Tx, idx *types.PageIndex) error {
	raw, err := marshal(idx)
	if err != nil {
		return err
	}
	return tx.Table(tblPages).Put([]byte(idx.ID()), raw)
}

// getPage loads the index row and requires the promoted-page variant.
func getPage(tx *kvstore.Tx, id string) (*types.PageInfo, error) {
	idx, err := getPageIndex(tx, id)
	if err != nil {
		return nil, err
	}
	if idx.Page == nil {
		return nil, types.E(types.KindNotFound, "page %s has no revisions yet", id)
	}
	return idx.Page, nil
}

func putPage(tx *kvstore.Tx, p *types.PageInfo) error {
	return putPageIndex(tx, &types.PageIndex{Page: p})
}

func getRevision(tx *kvstore.Tx, pageID string, rev uint64) (*types.PageSource, error) {
	raw := tx.Table(tblRevisions).Get(revKey(pageID, rev))
	if raw == nil {
		return nil, types.E(types.KindNotFound, "page %s has no revision %d", pageID, rev)
	}
	var src types.PageSource
	if err := unmarshal(raw, &src); err != nil {
		return nil, err
	}
	return &src, nil
}

func putRevision(tx *kvstore.Tx, pageID string, src *types.PageSource) error {
	raw, err := marshal(src)
	if err != nil {
		return err
	}
	return tx.Table(tblRevisions).Put(revKey(pageID, src.Revision), raw)
}
