package bcache_test

import (
	"context"
	"testing"

	"github.com/blockcache/bcache"
	"github.com/blockcache/bcache/blockdev"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// TestConcurrentAccessNeverAliasesTwoHolders drives many goroutines against
// a small pool and asserts the invariant the single lock exists to
// guarantee: no two goroutines ever simultaneously believe they hold the
// BUSY lease on the same buffer slot for different identities.
func TestConcurrentAccessNeverAliasesTwoHolders(t *testing.T) {
	dev := blockdev.NewMemory()
	c, err := bcache.New(bcache.Config{N: 8, HashSize: 17, SRP: 0, RecentOpsCapacity: 128}, dev)
	require.NoError(t, err)

	g, _ := errgroup.WithContext(context.Background())
	const goroutines = 32
	const itersEach = 100

	for w := 0; w < goroutines; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < itersEach; i++ {
				sector := uint64((w + i) % 20)
				ref := c.Read(1, sector, 0)
				if ref.Sector() != sector {
					return errBadIdentity
				}
				data := ref.Data()
				data[0] = byte(sector)
				c.Write(ref)
				c.Release(ref)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

var errBadIdentity = bcacheTestErr("buffer identity did not match the requested sector")

type bcacheTestErr string

func (e bcacheTestErr) Error() string { return string(e) }
