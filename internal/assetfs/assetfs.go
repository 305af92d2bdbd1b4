// Package assetfs places asset bodies on disk. Bodies live under
// root/XX/YY/<asset_id> where XX and YY are fixed-width prefixes of the
// id, bounding per-directory fan-out. Uploads stage to a temp directory
// first and are moved into place only once the owning KV transaction
// commits.
package assetfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/wikora/wikora/internal/types"
)

const tmpDirName = "tmp"

// FS is one asset tree rooted at a directory.
type FS struct {
	root string
	log  *logrus.Entry
}

// New opens the tree at root, creating it and its staging directory.
func New(root string, log *logrus.Logger) (*FS, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := os.MkdirAll(filepath.Join(root, tmpDirName), 0o700); err != nil {
		return nil, fmt.Errorf("creating asset tree %s: %w", root, err)
	}
	return &FS{root: root, log: log.WithField("component", "assetfs")}, nil
}

// Root returns the tree's root directory.
func (f *FS) Root() string { return f.root }

// TempDir returns the staging directory.
func (f *FS) TempDir() string { return filepath.Join(f.root, tmpDirName) }

// BodyPath returns the final location for an asset id.
func (f *FS) BodyPath(assetID string) string {
	return filepath.Join(f.root, assetID[0:2], assetID[2:4], assetID)
}

// tmpPath returns the staging location for an asset id.
func (f *FS) tmpPath(assetID string) string {
	return filepath.Join(f.root, tmpDirName, assetID)
}

// Stage streams r into the staging area under assetID, refusing bodies
// over limit bytes. Returns the byte count written.
func (f *FS) Stage(assetID string, r io.Reader, limit int64) (int64, error) {
	dst, err := os.OpenFile(f.tmpPath(assetID), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, types.Wrap(types.KindInternal, err, "staging asset body")
	}
	n, err := io.Copy(dst, io.LimitReader(r, limit+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.tmpPath(assetID))
		return 0, types.Wrap(types.KindInternal, err, "staging asset body")
	}
	if n > limit {
		_ = os.Remove(f.tmpPath(assetID))
		return 0, types.E(types.KindTooLarge, "asset exceeds %d bytes", limit)
	}
	return n, nil
}

// Commit moves a staged body into its final location.
func (f *FS) Commit(assetID string) error {
	final := f.BodyPath(assetID)
	if err := os.MkdirAll(filepath.Dir(final), 0o700); err != nil {
		return types.Wrap(types.KindInternal, err, "placing asset body")
	}
	if err := os.Rename(f.tmpPath(assetID), final); err != nil {
		return types.Wrap(types.KindInternal, err, "placing asset body")
	}
	return nil
}

// Discard removes a staged body after an aborted transaction.
func (f *FS) Discard(assetID string) {
	if err := os.Remove(f.tmpPath(assetID)); err != nil && !os.IsNotExist(err) {
		f.log.WithError(err).WithField("asset_id", assetID).Warn("discarding staged body")
	}
}

// Open returns a reader over a committed body.
func (f *FS) Open(assetID string) (*os.File, error) {
	file, err := os.Open(f.BodyPath(assetID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.E(types.KindNotFound, "asset %s has no body", assetID)
		}
		return nil, types.Wrap(types.KindInternal, err, "opening asset body")
	}
	return file, nil
}

// Remove deletes a committed body. A missing body is not an error; a
// failed removal is logged and left for the orphan sweep.
func (f *FS) Remove(assetID string) {
	if err := os.Remove(f.BodyPath(assetID)); err != nil && !os.IsNotExist(err) {
		f.log.WithError(err).WithField("asset_id", assetID).Warn("removing asset body; sweep will retry")
	}
}

// Sweep walks the tree, removes bodies the keep predicate rejects, and
// clears the staging directory. Run at startup.
func (f *FS) Sweep(keep func(assetID string) bool) error {
	tmp := filepath.Join(f.root, tmpDirName)
	entries, err := os.ReadDir(tmp)
	if err == nil {
		for _, e := range entries {
			_ = os.Remove(filepath.Join(tmp, e.Name()))
		}
	}
	return filepath.Walk(f.root, func(path string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return err
		}
		if filepath.Dir(path) == tmp {
			return nil
		}
		id := filepath.Base(path)
		if keep(id) {
			return nil
		}
		f.log.WithField("asset_id", id).Info("removing orphan asset body")
		return os.Remove(path)
	})
}
