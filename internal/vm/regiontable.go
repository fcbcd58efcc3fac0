package vm

import (
	"encoding/binary"

	"github.com/SaberVM/SaberVM/internal/region"
)

// regionTable assigns small integer handles to *region.Region values so
// that "Region*" and "Pointer" operands, which must live as plain bytes
// on the segmented operand stack, can identify which Region they belong
// to. A native process address would be self-identifying, but Go gives
// no safe equivalent for a value that must round-trip through an
// untyped byte buffer, so a Pointer's wire-format reference packs a
// region handle into its high bits alongside the region-relative
// payload offset.
type regionTable struct {
	byHandle map[uint64]*region.Region
	byRegion map[*region.Region]uint64
	next     uint64

	// all retains every region ever created, including ones free has since
	// dropped from byHandle/byRegion, so stats() can report totals across
	// a whole run rather than just the regions still live.
	all []*region.Region
}

func newRegionTable() *regionTable {
	return &regionTable{
		byHandle: make(map[uint64]*region.Region),
		byRegion: make(map[*region.Region]uint64),
	}
}

// create allocates a fresh region and returns its handle.
func (rt *regionTable) create(capacity uint64) (handle uint64, r *region.Region) {
	r = region.NewRegion(capacity, region.DefaultConfig())
	rt.next++
	handle = rt.next
	rt.byHandle[handle] = r
	rt.byRegion[r] = handle
	rt.all = append(rt.all, r)

	return handle, r
}

// stats sums the allocation counters of every region this table has ever
// created, including ones already dropped by free: free removes a region
// from the handle maps but its counters still describe real past work.
func (rt *regionTable) stats() region.Stats {
	var agg region.Stats

	for _, r := range rt.all {
		s := r.Stats()
		agg.Allocations += s.Allocations
		agg.Frees += s.Frees
		agg.Reuses += s.Reuses
		agg.BytesLive += s.BytesLive
		agg.PeakBytes += s.PeakBytes
	}

	return agg
}

// free drops a region by handle. The C original recursively frees a
// linked chain of 4096-byte blocks; this implementation's Region is a
// single fixed-capacity buffer, so freeing is just removing it from the
// table and letting the garbage collector reclaim the backing slice.
func (rt *regionTable) free(handle uint64) {
	if r, ok := rt.byHandle[handle]; ok {
		delete(rt.byRegion, r)
	}

	delete(rt.byHandle, handle)
}

// get resolves a handle back to its Region.
func (rt *regionTable) get(handle uint64) *region.Region {
	return rt.byHandle[handle]
}

const (
	referenceOffsetBits = 40
	referenceOffsetMask = (uint64(1) << referenceOffsetBits) - 1
)

func packReference(handle, offset uint64) uint64 {
	return (handle << referenceOffsetBits) | (offset & referenceOffsetMask)
}

func unpackReference(ref uint64) (handle, offset uint64) {
	return ref >> referenceOffsetBits, ref & referenceOffsetMask
}

// encodePointer serializes p into its 16-byte on-stack form. Sentinel
// (data-section) pointers carry their raw data-section offset directly,
// matching region.EncodePointer; heap pointers pack p.R's handle
// alongside the region-relative offset.
func (rt *regionTable) encodePointer(p region.Pointer) [16]byte {
	if p.IsSentinel() {
		return region.EncodePointer(p)
	}

	handle := rt.byRegion[p.R]

	var b [16]byte

	binary.LittleEndian.PutUint64(b[0:8], uint64(p.Generation))
	binary.LittleEndian.PutUint64(b[8:16], packReference(handle, p.Reference))

	return b
}

// decodePointer is encodePointer's inverse.
func (rt *regionTable) decodePointer(b []byte) region.Pointer {
	generation := int64(binary.LittleEndian.Uint64(b[0:8]))
	raw := binary.LittleEndian.Uint64(b[8:16])

	if generation < 0 {
		return region.Pointer{Generation: generation, Reference: raw}
	}

	handle, offset := unpackReference(raw)

	return region.Pointer{Generation: generation, R: rt.get(handle), Reference: offset}
}
