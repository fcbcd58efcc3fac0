// Package region implements SaberVM's arena-style memory region: a
// non-moving, non-growing allocator with generation-tagged pointers so
// that aliased use-after-free can be caught without tracing.
package region

import (
	"encoding/binary"
	"fmt"

	vmerrors "github.com/SaberVM/SaberVM/internal/errors"
)

// headerSize is the 16-byte metadata header preceding every allocation:
// an 8-byte signed generation followed by an 8-byte unsigned size.
const headerSize = 16

// SentinelGeneration marks a Pointer whose referent lives in the
// read-only data section of the program image and has no header.
const SentinelGeneration int64 = -1

// Config is a small knob struct passed to constructors instead of a pile
// of positional arguments, even though only BoundsChecked is meaningful
// for a region today.
type Config struct {
	// BoundsChecked enables this package's own range check (with a
	// capacity-naming panic message) in ReadAt and WriteAt. Always true
	// outside of benchmarks; exposed so tests can exercise the unchecked
	// path deliberately.
	BoundsChecked bool
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{BoundsChecked: true}
}

// Stats tracks per-region allocation counters for diagnostics and tests.
type Stats struct {
	Allocations uint64
	Frees       uint64
	Reuses      uint64
	BytesLive   uint64
	PeakBytes   uint64
}

// Region is a non-moving arena: a flat byte buffer that objects are
// bump-allocated from, with a first-fit free-list scan once the bump
// path is exhausted. Regions are freed wholesale; the region-scope
// analysis performed ahead of time by the compiler guarantees no
// Pointer outlives the Region it was allocated from.
type Region struct {
	data     []byte
	offset   uint64
	capacity uint64
	config   Config
	stats    Stats
}

// Pointer is a generation-tagged handle into a Region's backing buffer.
// Reference is a byte offset within the owning Region's data rather than
// a raw address: Go gives no safe way to keep a bare pointer into a
// slice's backing array across the slice's lifetime, so the offset is
// resolved back against the Region at check/dereference time instead.
//
// R is nil exactly when Generation is the data-section sentinel
// (SentinelGeneration): the referent then lives in the program image's
// read-only data section, identified by Reference alone, and owns no
// Region at all.
type Pointer struct {
	Generation int64
	R          *Region
	Reference  uint64
}

// IsSentinel reports whether p refers to data-section-resident memory.
func (p Pointer) IsSentinel() bool { return p.Generation < 0 }

// DataSectionPointer builds the sentinel Pointer used by
// load-from-data-section: generation -1, no owning Region, Reference is
// an absolute byte offset into the program image's data section.
func DataSectionPointer(offset uint64) Pointer {
	return Pointer{Generation: SentinelGeneration, Reference: offset}
}

// NewRegion creates a region with the given fixed payload capacity.
// Regions never grow after creation: once alloc_object cannot find a fit,
// the runtime treats it as a terminal AllocationTooLarge failure rather
// than expanding the backing buffer.
func NewRegion(capacity uint64, config Config) *Region {
	return &Region{
		data:     make([]byte, capacity),
		capacity: capacity,
		config:   config,
	}
}

// Capacity returns the region's total byte capacity.
func (r *Region) Capacity() uint64 { return r.capacity }

// Stats returns a snapshot of the region's allocation counters.
func (r *Region) Stats() Stats { return r.stats }

// AllocObject allocates size uninitialized payload bytes, trying bump
// allocation first and first-fit reuse of a freed slot second.
func (r *Region) AllocObject(size uint64) (Pointer, error) {
	if r.offset+headerSize+size <= r.capacity {
		return r.bumpAlloc(size), nil
	}

	if p, ok := r.reuseSlot(size); ok {
		return p, nil
	}

	return Pointer{}, vmerrors.AllocationTooLarge(size, r.capacity)
}

func (r *Region) bumpAlloc(size uint64) Pointer {
	off := r.offset
	writeHeader(r.data[off:], 1, size)
	r.offset = off + headerSize + size

	r.stats.Allocations++
	r.stats.BytesLive += size
	if r.stats.BytesLive > r.stats.PeakBytes {
		r.stats.PeakBytes = r.stats.BytesLive
	}

	return Pointer{Generation: 1, R: r, Reference: off + headerSize}
}

// reuseSlot scans from offset 0 forward over existing allocation headers
// for a freed slot (negative generation) whose recorded size fits the
// request. The first such slot is revived in place; its recorded size
// becomes the requested size (slots are never split or coalesced).
func (r *Region) reuseSlot(size uint64) (Pointer, bool) {
	off := uint64(0)
	for off < r.offset {
		gen, storedSize := readHeader(r.data[off:])

		if gen < 0 && size <= storedSize {
			newGen := -gen + 1
			writeHeader(r.data[off:], newGen, size)

			r.stats.Allocations++
			r.stats.Reuses++
			r.stats.BytesLive += size
			if r.stats.BytesLive > r.stats.PeakBytes {
				r.stats.PeakBytes = r.stats.BytesLive
			}

			return Pointer{Generation: newGen, R: r, Reference: off + headerSize}, true
		}

		off += headerSize + storedSize
	}

	return Pointer{}, false
}

// CheckPointer verifies p still refers to a live allocation: sentinel
// pointers (data-section resident) always succeed; heap pointers must
// match the generation stored at their header.
func CheckPointer(p Pointer) error {
	if p.IsSentinel() {
		return nil
	}

	gen, _ := readHeader(p.R.data[p.Reference-headerSize:])
	if gen != p.Generation {
		return vmerrors.UseAfterFree(p.Generation, gen)
	}

	return nil
}

// FreeObject marks p's allocation freed by negating its stored
// generation in place. Aliases of p become invalid on their next
// CheckPointer; p itself is unaffected as a value, only the header is.
func FreeObject(p Pointer) error {
	if err := CheckPointer(p); err != nil {
		return err
	}

	r := p.R
	gen, size := readHeader(r.data[p.Reference-headerSize:])
	writeHeader(r.data[p.Reference-headerSize:], -gen, size)

	r.stats.Frees++
	if r.stats.BytesLive >= size {
		r.stats.BytesLive -= size
	}

	return nil
}

// PayloadSize returns the size recorded in p's allocation header.
func PayloadSize(p Pointer) uint64 {
	_, size := readHeader(p.R.data[p.Reference-headerSize:])
	return size
}

// boundsCheck validates that [off, off+size) falls within the region's
// backing buffer when the region's config enables it, panicking with a
// message naming the region's capacity instead of letting the raw slice
// index panic with no context. Disabled, the slice index below still
// bounds-checks itself (Go gives no way to opt out of that), just without
// this package's diagnostic framing — the knob exists so benchmarks and
// tests can compare the two paths, not to allow a genuinely unchecked
// access.
func (r *Region) boundsCheck(off, size uint64) {
	if !r.config.BoundsChecked {
		return
	}

	if off+size > uint64(len(r.data)) {
		panic(fmt.Sprintf("region: access [%d:%d) exceeds capacity %d", off, off+size, r.capacity))
	}
}

// ReadAt copies size bytes starting at byte offset off within the
// region's backing buffer (payload-relative addressing for Pointer.Reference).
func (r *Region) ReadAt(off uint64, size uint64) []byte {
	r.boundsCheck(off, size)
	return r.data[off : off+size]
}

// WriteAt copies b into the region's backing buffer at byte offset off.
func (r *Region) WriteAt(off uint64, b []byte) {
	r.boundsCheck(off, uint64(len(b)))
	copy(r.data[off:off+uint64(len(b))], b)
}

// EncodePointer serializes p into the 16-byte on-stack representation
// (8-byte generation, 8-byte reference), matching the C original's
// `Pointer{i64 generation; u8 *reference;}` layout on a 64-bit machine.
func EncodePointer(p Pointer) [16]byte {
	var b [16]byte

	binary.LittleEndian.PutUint64(b[0:8], uint64(p.Generation))
	binary.LittleEndian.PutUint64(b[8:16], p.Reference)

	return b
}

// DecodePointer deserializes a 16-byte on-stack representation back into
// a Pointer bound to owner (nil for a data-section sentinel).
func DecodePointer(b []byte, owner *Region) Pointer {
	generation := int64(binary.LittleEndian.Uint64(b[0:8]))
	reference := binary.LittleEndian.Uint64(b[8:16])

	p := Pointer{Generation: generation, Reference: reference}
	if generation >= 0 {
		p.R = owner
	}

	return p
}

func writeHeader(dst []byte, generation int64, size uint64) {
	binary.LittleEndian.PutUint64(dst[0:8], uint64(generation))
	binary.LittleEndian.PutUint64(dst[8:16], size)
}

func readHeader(src []byte) (generation int64, size uint64) {
	generation = int64(binary.LittleEndian.Uint64(src[0:8]))
	size = binary.LittleEndian.Uint64(src[8:16])

	return generation, size
}
