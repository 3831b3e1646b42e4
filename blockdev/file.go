package blockdev

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/blockcache/bcache"
	"github.com/blockcache/bcache/internal/blog"
	"github.com/prometheus/tsdb/fileutil"
)

// File is a bcache.Device backed by a single flat file: sector n occupies
// bytes [n*SectorSize, (n+1)*SectorSize). It takes an exclusive process
// lock on the file for its lifetime, grounded on
// core/rawdb/prunedfreezer.go's use of fileutil.Flock to keep two freezer
// processes from touching the same datadir concurrently — here applied to
// a single backing disk image instead of a freezer directory.
type File struct {
	mu   sync.Mutex
	f    *os.File
	lock fileutil.Releaser
}

// OpenFile opens (creating if absent) path as a block device backing file
// and takes an exclusive lock on it. Close releases both.
func OpenFile(path string) (*File, error) {
	lock, _, err := fileutil.Flock(path + ".lock")
	if err != nil {
		return nil, fmt.Errorf("blockdev: lock %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("blockdev: open %s: %w", path, err)
	}
	blog.Info("block device file opened", "path", path)
	return &File{f: f, lock: lock}, nil
}

func (d *File) ReadSector(dev int32, sector uint64, into []byte) error {
	if len(into) != bcache.SectorSize {
		return fmt.Errorf("blockdev: into must be %d bytes, got %d", bcache.SectorSize, len(into))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	off := int64(sector) * bcache.SectorSize
	n, err := d.f.ReadAt(into, off)
	if err != nil && err != io.EOF {
		return fmt.Errorf("blockdev: read dev=%d sector=%d: %w", dev, sector, err)
	}
	for i := n; i < len(into); i++ {
		into[i] = 0
	}
	return nil
}

func (d *File) WriteSector(dev int32, sector uint64, from []byte) error {
	if len(from) != bcache.SectorSize {
		return fmt.Errorf("blockdev: from must be %d bytes, got %d", bcache.SectorSize, len(from))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	off := int64(sector) * bcache.SectorSize
	if _, err := d.f.WriteAt(from, off); err != nil {
		return fmt.Errorf("blockdev: write dev=%d sector=%d: %w", dev, sector, err)
	}
	return nil
}

// Close flushes, releases the lock, and closes the backing file.
func (d *File) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.f.Sync(); err != nil {
		blog.Warn("block device sync failed on close", "err", err)
	}
	cerr := d.f.Close()
	if err := d.lock.Release(); err != nil {
		blog.Warn("block device lock release failed", "err", err)
	}
	return cerr
}
