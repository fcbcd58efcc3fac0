// Package vm implements SaberVM's opcode dispatch loop: the single-
// threaded interpreter that executes one handler's code from its
// CodeOffset until it halts or yields on a pending stdin read.
package vm

import (
	"encoding/binary"
	"io"

	"github.com/SaberVM/SaberVM/internal/asyncio"
	vmerrors "github.com/SaberVM/SaberVM/internal/errors"
	"github.com/SaberVM/SaberVM/internal/region"
	"github.com/SaberVM/SaberVM/internal/scheduler"
	"github.com/SaberVM/SaberVM/internal/stack"
	"github.com/SaberVM/SaberVM/internal/vmimage"
)

// Outcome reports how a task's run ended.
type Outcome int

const (
	// Halted means the task executed a halt opcode; Status holds its
	// exit status byte.
	Halted Outcome = iota
	// Yielded means the task executed read and is now waiting on stdin;
	// it is not rescheduled until asyncio.Bridge.Drain posts it again.
	Yielded
)

// Interp holds the state shared across every task run against one
// program image: the region table (so Region* and Pointer values can
// round-trip through the operand stack) plus the scheduler and asyncio
// bridge tasks post new work to.
type Interp struct {
	image   *vmimage.Image
	regions *regionTable
	sched   *scheduler.Scheduler
	stdin   *asyncio.Bridge
	stdout  io.Writer
	stderr  io.Writer
}

// New returns an Interp ready to run tasks against image.
func New(image *vmimage.Image, sched *scheduler.Scheduler, stdin *asyncio.Bridge, stdout, stderr io.Writer) *Interp {
	return &Interp{
		image:   image,
		regions: newRegionTable(),
		sched:   sched,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}
}

// Stats aggregates allocation counters across every region this Interp has
// created over its lifetime, for callers like cmd/sabervm's -stats flag.
func (in *Interp) Stats() region.Stats {
	return in.regions.stats()
}

// Run executes h.CodeOffset starting from a fresh stack with h's
// parameter bytes pushed, then h.Env pushed on top. It returns once the
// task halts or yields.
func (in *Interp) Run(h scheduler.Handler) (outcome Outcome, status byte, err error) {
	s := stack.New()

	if h.ParamSize > 0 {
		paramBytes := in.regions.encodePointer(h.Param)
		s.Push(paramBytes[:])
	}

	envBytes := in.regions.encodePointer(h.Env)
	s.Push(envBytes[:])

	pc := h.CodeOffset

	for {
		op := Opcode(in.image.Code[pc])
		opPC := pc
		pc++

		dec := vmimage.Decoder{Code: in.image.Code, PC: pc}

		switch op {
		case OpGet:
			off := int(dec.USize())
			size := int(dec.USize())

			val, gerr := s.Get(off, size)
			if gerr != nil {
				return 0, 0, gerr
			}

			s.Push(val)

		case OpInit:
			off := int(dec.USize())
			size := int(dec.USize())
			tplSize := int(dec.USize())

			val := s.Pop(size)
			if perr := s.Put(tplSize-off-size, val); perr != nil {
				return 0, 0, perr
			}

		case OpInitInPlace:
			off := dec.USize()
			size := int(dec.USize())

			val := s.Pop(size)
			ptrBytes := s.Pop(16)

			ptr := in.regions.decodePointer(ptrBytes)
			if perr := region.CheckPointer(ptr); perr != nil {
				return 0, 0, perr
			}

			in.writeAt(ptr, off, val)
			s.Push(ptrBytes)

		case OpMalloc:
			size := dec.USize()

			handle := readU64(s.Pop(8))
			r := in.regions.get(handle)

			ptr, merr := r.AllocObject(size)
			if merr != nil {
				return 0, 0, merr
			}

			encoded := in.regions.encodePointer(ptr)
			s.Push(encoded[:])

		case OpAlloca:
			size := int(dec.USize())
			s.Alloca(size)

		case OpProjection:
			off := int(dec.USize())
			size := int(dec.USize())
			tplSize := int(dec.USize())

			field, gerr := s.Get(tplSize-off-size, size)
			if gerr != nil {
				return 0, 0, gerr
			}

			s.Pop(tplSize)
			s.Push(field)

		case OpProjectionInPlace:
			off := dec.USize()
			size := int(dec.USize())

			ptrBytes := s.Pop(16)
			ptr := in.regions.decodePointer(ptrBytes)
			if perr := region.CheckPointer(ptr); perr != nil {
				return 0, 0, perr
			}

			s.Push(in.readAt(ptr, off, size))

		case OpCall:
			target := readU32(s.Pop(4))
			pc = target
			continue

		case OpPrintString:
			ptrBytes := s.Pop(16)
			ptr := in.regions.decodePointer(ptrBytes)

			if ptr.IsSentinel() {
				io.WriteString(in.stdout, string(in.image.DataSection[ptr.Reference:]))
			} else {
				if perr := region.CheckPointer(ptr); perr != nil {
					return 0, 0, perr
				}

				length := readU64(in.readAt(ptr, 0, 8))
				in.stdout.Write(in.readAt(ptr, 8, int(length)))
			}

		case OpLiteral:
			lit := dec.I32()
			s.PushSmall(writeI32(lit))

		case OpGlobalFunction:
			lit := dec.U32()
			s.PushSmall(writeU32(lit))

		case OpHalt:
			b := s.Pop(1)
			return Halted, b[0], nil

		case OpNewRegion:
			size := dec.USize()
			handle, _ := in.regions.create(size)
			s.Push(writeU64(handle))

		case OpFreeRegion:
			handle := readU64(s.Pop(8))
			in.regions.free(handle)

		case OpDereference:
			size := int(dec.USize())

			ptrBytes := s.Pop(16)
			ptr := in.regions.decodePointer(ptrBytes)
			if perr := region.CheckPointer(ptr); perr != nil {
				return 0, 0, perr
			}

			s.Push(in.readAt(ptr, 0, size))

		case OpNewArray:
			elemSize := dec.USize()

			length := readI32(s.Pop(4))
			handle := readU64(s.Pop(8))

			if length < 0 {
				return 0, 0, vmerrors.ArrayIndexOutOfBounds(int64(length), 0)
			}

			r := in.regions.get(handle)
			totalLen := elemSize * uint64(length)

			ptr, merr := r.AllocObject(8 + totalLen)
			if merr != nil {
				return 0, 0, merr
			}

			r.WriteAt(ptr.Reference, writeU64(totalLen))
			r.WriteAt(ptr.Reference+8, make([]byte, totalLen))

			encoded := in.regions.encodePointer(ptr)
			s.Push(encoded[:])

		case OpMutateArray:
			elemSize := int(dec.USize())

			idx := readI32(s.Pop(4))
			elem := s.Pop(elemSize)
			ptrBytes, gerr := s.Get(0, 16)
			if gerr != nil {
				return 0, 0, gerr
			}

			ptr := in.regions.decodePointer(ptrBytes)
			if perr := region.CheckPointer(ptr); perr != nil {
				return 0, 0, perr
			}

			arrLen := readU64(in.readAt(ptr, 0, 8))
			if aerr := checkArrayBounds(idx, elemSize, arrLen); aerr != nil {
				return 0, 0, aerr
			}

			in.writeAt(ptr, 8+uint64(idx)*uint64(elemSize), elem)

		case OpProjectFromArray:
			elemSize := int(dec.USize())

			idx := readI32(s.Pop(4))
			ptrBytes := s.Pop(16)

			ptr := in.regions.decodePointer(ptrBytes)
			if perr := region.CheckPointer(ptr); perr != nil {
				return 0, 0, perr
			}

			arrLen := readU64(in.readAt(ptr, 0, 8))
			if aerr := checkArrayBounds(idx, elemSize, arrLen); aerr != nil {
				return 0, 0, aerr
			}

			s.Push(in.readAt(ptr, 8+uint64(idx)*uint64(elemSize), elemSize))

		case OpI32Add:
			a := readI32(s.Pop(4))
			b := readI32(s.Pop(4))
			s.Push(writeI32(b + a))

		case OpI32Mul:
			a := readI32(s.Pop(4))
			b := readI32(s.Pop(4))
			s.Push(writeI32(b * a))

		case OpI32Div:
			a := readI32(s.Pop(4))
			b := readI32(s.Pop(4))
			s.Push(writeI32(b / a))

		case OpI32Mod:
			a := readI32(s.Pop(4))
			b := readI32(s.Pop(4))
			s.Push(writeI32(b % a))

		case OpCallIfNotZero:
			f := readU32(s.Pop(4))
			g := readU32(s.Pop(4))
			cond := readI32(s.Pop(4))

			if cond != 0 {
				pc = g
			} else {
				pc = f
			}

			continue

		case OpLoadFromDataSection:
			off := dec.USize()
			ptr := region.DataSectionPointer(off)
			encoded := in.regions.encodePointer(ptr)
			s.Push(encoded[:])

		case OpProjectFromDataArray:
			elemSize := int(dec.USize())

			idx := readI32(s.Pop(4))
			ptrBytes := s.Pop(16)
			ptr := in.regions.decodePointer(ptrBytes)

			start := ptr.Reference + uint64(idx)*uint64(elemSize)
			if idx < 0 || start+uint64(elemSize) > uint64(len(in.image.DataSection)) {
				return 0, 0, vmerrors.ArrayIndexOutOfBounds(int64(idx), uint64(len(in.image.DataSection)))
			}

			s.Push(in.image.DataSection[start : start+uint64(elemSize)])

		case OpCopyN:
			elemSize := dec.USize()

			n := readI32(s.Pop(4))
			srcBytes := s.Pop(16)
			dstBytes := s.Pop(16)

			if n < 0 {
				return 0, 0, vmerrors.NegativeCopyLength(n)
			}

			src := in.regions.decodePointer(srcBytes)
			dst := in.regions.decodePointer(dstBytes)

			var available uint64
			var srcPayload []byte

			if src.IsSentinel() {
				available = (uint64(len(in.image.DataSection)) - src.Reference) / elemSize
				srcPayload = in.image.DataSection[src.Reference:]
			} else {
				if perr := region.CheckPointer(src); perr != nil {
					return 0, 0, perr
				}

				srcLen := readU64(in.readAt(src, 0, 8))
				available = srcLen / elemSize
				srcPayload = in.readAt(src, 8, int(srcLen))
			}

			if perr := region.CheckPointer(dst); perr != nil {
				return 0, 0, perr
			}

			count := uint64(n)
			if available < count {
				count = available
			}

			in.writeAt(dst, 8, srcPayload[:count*elemSize])
			s.Push(dstBytes)

		case OpU8Literal:
			lit := dec.U8()
			s.PushSmall([]byte{lit})

		case OpU8Add:
			a := s.Pop(1)[0]
			b := s.Pop(1)[0]
			s.Push([]byte{b + a})

		case OpU8Mul:
			a := s.Pop(1)[0]
			b := s.Pop(1)[0]
			s.Push([]byte{b * a})

		case OpU8Div:
			a := s.Pop(1)[0]
			b := s.Pop(1)[0]
			s.Push([]byte{b / a})

		case OpU8Mod:
			a := s.Pop(1)[0]
			b := s.Pop(1)[0]
			s.Push([]byte{b % a})

		case OpU8WidenToI32:
			b := s.Pop(1)[0]
			s.Push(writeI32(int32(b)))

		case OpI32NarrowToU8:
			v := readI32(s.Pop(4))
			s.Push([]byte{byte(uint32(v))})

		case OpRead:
			dec.U8() // channel byte; stdin is the only readable channel.

			handlerOff := readU32(s.Pop(4))
			envBytes := s.Pop(16)
			regionHandle := readU64(s.Pop(8))

			env := in.regions.decodePointer(envBytes)
			r := in.regions.get(regionHandle)

			if rerr := in.stdin.RegisterRead(scheduler.Handler{CodeOffset: handlerOff, Env: env}, r); rerr != nil {
				return 0, 0, rerr
			}

			return Yielded, 0, nil

		case OpWrite:
			dec.U8() // channel byte; stdout/stderr routing comes from the popped mode operand below.

			strBytes := s.Pop(16)
			handlerOff := readU32(s.Pop(4))
			envBytes := s.Pop(16)
			mode := s.Pop(1)[0]
			s.Pop(8) // region operand; write does not use it.

			str := in.regions.decodePointer(strBytes)
			var payload []byte

			if str.IsSentinel() {
				payload = in.image.DataSection[str.Reference:]
			} else {
				if perr := region.CheckPointer(str); perr != nil {
					return 0, 0, perr
				}

				length := readU64(in.readAt(str, 0, 8))
				payload = in.readAt(str, 8, int(length))
			}

			switch mode {
			case 0:
				in.stdout.Write(payload)
			case 1:
				in.stderr.Write(payload)
			default:
				return 0, 0, vmerrors.WriteModeInvalid(mode)
			}

			env := in.regions.decodePointer(envBytes)
			if perr := in.sched.PostTask(scheduler.Handler{CodeOffset: handlerOff, Env: env}); perr != nil {
				return 0, 0, perr
			}

		default:
			return 0, 0, vmerrors.UnknownOpcode(byte(op), opPC)
		}

		pc = dec.PC
	}
}

// readAt resolves a Pointer (sentinel or heap) plus a byte offset and
// length into the underlying bytes, so print-string, projection-in-place,
// dereference, mutate-array, and friends share one lookup path.
func (in *Interp) readAt(p region.Pointer, offset uint64, size int) []byte {
	if p.IsSentinel() {
		start := p.Reference + offset
		return in.image.DataSection[start : start+uint64(size)]
	}

	return p.R.ReadAt(p.Reference+offset, uint64(size))
}

func (in *Interp) writeAt(p region.Pointer, offset uint64, data []byte) {
	if p.IsSentinel() {
		copy(in.image.DataSection[p.Reference+offset:], data)
		return
	}

	p.R.WriteAt(p.Reference+offset, data)
}

func checkArrayBounds(idx int32, elemSize int, arrLen uint64) error {
	if idx < 0 || uint64(idx)*uint64(elemSize)+uint64(elemSize) > arrLen {
		return vmerrors.ArrayIndexOutOfBounds(int64(idx), arrLen)
	}

	return nil
}

func readI32(b []byte) int32  { return int32(binary.LittleEndian.Uint32(b)) }
func readU32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func readU64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

func writeI32(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func writeU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func writeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
