package bcache

// Device is a synchronous block device driver: the single point where the
// cache leaves its own address space. Everything above this interface is
// in scope for this module; everything below it (physical sectors, disk
// controllers, cloud volumes) is not.
//
// Implementations must be safe to call without holding any lock the cache
// itself may already be holding — ReadSector/WriteSector are always
// invoked outside the cache's own mutex, since a device access may block
// for an arbitrarily long time.
type Device interface {
	// ReadSector fills into with the current contents of (dev,sector).
	// len(into) is always SectorSize.
	ReadSector(dev int32, sector uint64, into []byte) error

	// WriteSector persists from to (dev,sector). len(from) is always
	// SectorSize.
	WriteSector(dev int32, sector uint64, from []byte) error
}
