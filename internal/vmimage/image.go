// Package vmimage parses the SaberVM program image format and provides
// the little-endian instruction-parameter decoder the interpreter reads
// opcode immediates with.
package vmimage

import (
	"encoding/binary"

	vmerrors "github.com/SaberVM/SaberVM/internal/errors"
)

// headerSize is the width of the leading data_section_size field.
const headerSize = 4

// Image is a parsed program image: a read-only data section and the
// code that follows it.
type Image struct {
	Raw         []byte
	DataSection []byte
	Code        []byte
	// EntryPC is the program counter of the first code byte, i.e.
	// 4 + data_section_size, expressed as an offset into Code (always 0).
	EntryPC uint32
}

// Parse reads the 4-byte little-endian data_section_size header and
// slices the data section and code out of buf.
func Parse(buf []byte) (*Image, error) {
	if len(buf) < headerSize {
		return nil, vmerrors.InvalidImage(len(buf))
	}

	dataSize := binary.LittleEndian.Uint32(buf[0:headerSize])
	if uint64(headerSize)+uint64(dataSize) > uint64(len(buf)) {
		return nil, vmerrors.InvalidImage(len(buf))
	}

	return &Image{
		Raw:         buf,
		DataSection: buf[headerSize : headerSize+dataSize],
		Code:        buf[headerSize+dataSize:],
		EntryPC:     0,
	}, nil
}

// Decoder is a little-endian cursor over a code buffer, advancing pc by
// exactly the width of the value decoded. The compiler is trusted to
// have produced a well-formed instruction stream: no bounds checking is
// performed here.
type Decoder struct {
	Code []byte
	PC   uint32
}

// U8 reads and consumes one byte.
func (d *Decoder) U8() uint8 {
	v := d.Code[d.PC]
	d.PC++

	return v
}

// I32 reads and consumes a little-endian signed 32-bit literal.
func (d *Decoder) I32() int32 {
	v := int32(binary.LittleEndian.Uint32(d.Code[d.PC : d.PC+4]))
	d.PC += 4

	return v
}

// U32 reads and consumes a little-endian unsigned 32-bit value (code
// offsets, the `call`/jump targets, global-function literals).
func (d *Decoder) U32() uint32 {
	v := binary.LittleEndian.Uint32(d.Code[d.PC : d.PC+4])
	d.PC += 4

	return v
}

// USize reads and consumes a little-endian 8-byte size parameter (used
// for offset/size/elem_size/tpl_size immediates).
func (d *Decoder) USize() uint64 {
	v := binary.LittleEndian.Uint64(d.Code[d.PC : d.PC+8])
	d.PC += 8

	return v
}
