package vm

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/SaberVM/SaberVM/internal/asyncio"
	"github.com/SaberVM/SaberVM/internal/region"
	"github.com/SaberVM/SaberVM/internal/scheduler"
	"github.com/SaberVM/SaberVM/internal/vmimage"
)

// buildImage assembles a program image from a data section and a code
// stream: 4-byte little-endian data_section_size, the data section, then
// code.
func buildImage(data, code []byte) []byte {
	buf := make([]byte, 4, 4+len(data)+len(code))
	binary.LittleEndian.PutUint32(buf, uint32(len(data)))
	buf = append(buf, data...)
	buf = append(buf, code...)

	return buf
}

func i32le(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func usizeLE(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// newTestInterp wires an Interp against image with a fresh scheduler and
// stdin bridge, and returns it alongside the stdout/stderr buffers.
func newTestInterp(image []byte) (*Interp, *scheduler.Scheduler, *bytes.Buffer, *bytes.Buffer) {
	img, err := vmimage.Parse(image)
	if err != nil {
		panic(err)
	}

	sched := scheduler.New()
	bridge := asyncio.New(sched)
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	return New(img, sched, bridge, stdout, stderr), sched, stdout, stderr
}

func TestHaltReturnsStatusCode(t *testing.T) {
	code := append([]byte{byte(OpU8Literal), 42}, byte(OpHalt))

	interp, _, _, _ := newTestInterp(buildImage(nil, code))

	outcome, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if outcome != Halted {
		t.Fatalf("expected Halted, got %v", outcome)
	}

	if status != 42 {
		t.Fatalf("expected status 42, got %d", status)
	}
}

func TestPrintStringFromDataSectionSentinel(t *testing.T) {
	data := []byte("hello")

	var code []byte
	code = append(code, byte(OpLoadFromDataSection))
	code = append(code, usizeLE(0)...)
	code = append(code, byte(OpPrintString))
	code = append(code, byte(OpU8Literal), 0)
	code = append(code, byte(OpHalt))

	interp, _, stdout, _ := newTestInterp(buildImage(data, code))

	outcome, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if outcome != Halted || status != 0 {
		t.Fatalf("expected halt(0), got outcome=%v status=%d", outcome, status)
	}

	if stdout.String() != "hello" {
		t.Fatalf("got stdout %q, want %q", stdout.String(), "hello")
	}
}

func TestI32AddIsCommutativeRegardlessOfPopOrder(t *testing.T) {
	var code []byte
	code = append(code, byte(OpLiteral))
	code = append(code, i32le(3)...)
	code = append(code, byte(OpLiteral))
	code = append(code, i32le(4)...)
	code = append(code, byte(OpI32Add))
	code = append(code, byte(OpI32NarrowToU8))
	code = append(code, byte(OpHalt))

	interp, _, _, _ := newTestInterp(buildImage(nil, code))

	_, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if status != 7 {
		t.Fatalf("got status %d, want 7", status)
	}
}

// TestI32DivUsesFirstPushedAsNumerator locks in the non-commutative
// operand order: the value pushed first is the left operand, so
// literal(20) then literal(4) divides as 20/4, not 4/20.
func TestI32DivUsesFirstPushedAsNumerator(t *testing.T) {
	var code []byte
	code = append(code, byte(OpLiteral))
	code = append(code, i32le(20)...)
	code = append(code, byte(OpLiteral))
	code = append(code, i32le(4)...)
	code = append(code, byte(OpI32Div))
	code = append(code, byte(OpI32NarrowToU8))
	code = append(code, byte(OpHalt))

	interp, _, _, _ := newTestInterp(buildImage(nil, code))

	_, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if status != 5 {
		t.Fatalf("got status %d, want 5 (20/4)", status)
	}
}

// TestArrayMutateAndProjectRoundTrip exercises new-region, new-array,
// mutate-array (which must leave the pointer on the stack), and
// project-from-array together.
func TestArrayMutateAndProjectRoundTrip(t *testing.T) {
	var code []byte

	code = append(code, byte(OpNewRegion))
	code = append(code, usizeLE(64)...)

	code = append(code, byte(OpLiteral))
	code = append(code, i32le(3)...) // array length

	code = append(code, byte(OpNewArray))
	code = append(code, usizeLE(4)...) // elem_size

	code = append(code, byte(OpLiteral))
	code = append(code, i32le(99)...) // element value

	code = append(code, byte(OpLiteral))
	code = append(code, i32le(0)...) // index

	code = append(code, byte(OpMutateArray))
	code = append(code, usizeLE(4)...)

	code = append(code, byte(OpLiteral))
	code = append(code, i32le(0)...) // index again

	code = append(code, byte(OpProjectFromArray))
	code = append(code, usizeLE(4)...)

	code = append(code, byte(OpI32NarrowToU8))
	code = append(code, byte(OpHalt))

	interp, _, _, _ := newTestInterp(buildImage(nil, code))

	outcome, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if outcome != Halted {
		t.Fatalf("expected Halted, got %v", outcome)
	}

	if status != 99 {
		t.Fatalf("got status %d, want 99", status)
	}
}

// TestArrayProjectOutOfBoundsFails confirms project-from-array rejects an
// index beyond the array length instead of reading past it.
func TestArrayProjectOutOfBoundsFails(t *testing.T) {
	var code []byte

	code = append(code, byte(OpNewRegion))
	code = append(code, usizeLE(64)...)

	code = append(code, byte(OpLiteral))
	code = append(code, i32le(1)...) // length 1

	code = append(code, byte(OpNewArray))
	code = append(code, usizeLE(4)...)

	code = append(code, byte(OpLiteral))
	code = append(code, i32le(5)...) // index 5, out of bounds

	code = append(code, byte(OpProjectFromArray))
	code = append(code, usizeLE(4)...)

	interp, _, _, _ := newTestInterp(buildImage(nil, code))

	_, _, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err == nil {
		t.Fatalf("expected ArrayIndexOutOfBounds, got nil")
	}
}

// TestMallocDereferenceRoundTrip exercises malloc, init-in-place, and
// dereference against a fresh region.
func TestMallocDereferenceRoundTrip(t *testing.T) {
	var code []byte

	code = append(code, byte(OpNewRegion))
	code = append(code, usizeLE(64)...)

	code = append(code, byte(OpMalloc))
	code = append(code, usizeLE(4)...)

	code = append(code, byte(OpLiteral))
	code = append(code, i32le(7)...)

	code = append(code, byte(OpInitInPlace))
	code = append(code, usizeLE(0)...) // offset 0
	code = append(code, usizeLE(4)...) // size 4

	code = append(code, byte(OpDereference))
	code = append(code, usizeLE(4)...)

	code = append(code, byte(OpI32NarrowToU8))
	code = append(code, byte(OpHalt))

	interp, _, _, _ := newTestInterp(buildImage(nil, code))

	_, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if status != 7 {
		t.Fatalf("got status %d, want 7", status)
	}
}

// TestReadYieldsAndRegistersContinuation confirms the read opcode
// registers a stdin continuation and yields rather than halting.
func TestReadYieldsAndRegistersContinuation(t *testing.T) {
	var code []byte

	code = append(code, byte(OpNewRegion))
	code = append(code, usizeLE(64)...)

	code = append(code, byte(OpLoadFromDataSection))
	code = append(code, usizeLE(0)...)

	// handler: a global-function literal pointing at offset 0 (never
	// reached in this test, since nothing drains the bridge). Pushed
	// last/topmost, since read pops handler, then env, then region.
	code = append(code, byte(OpGlobalFunction))
	code = append(code, i32le(0)...)

	code = append(code, byte(OpRead), 0)

	interp, sched, _, _ := newTestInterp(buildImage(nil, code))

	outcome, _, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if outcome != Yielded {
		t.Fatalf("expected Yielded, got %v", outcome)
	}

	if !sched.Empty() {
		t.Fatalf("read should not post a task until stdin data arrives")
	}
}

// TestResumedParamRoundTripsThroughRegionTableEncoding confirms a Handler
// carrying a live Param pointer (as asyncio.Bridge.deliver populates it)
// is re-encoded into the regionTable's handle-packed wire form when the
// task resumes, not pushed as raw region.EncodePointer bytes — otherwise
// dereferencing it would unpack a bogus region handle from the offset's
// high bits.
func TestResumedParamRoundTripsThroughRegionTableEncoding(t *testing.T) {
	interp, _, _, _ := newTestInterp(buildImage(nil, nil))

	_, r := interp.regions.create(64)

	ptr, err := r.AllocObject(4)
	if err != nil {
		t.Fatalf("AllocObject: %v", err)
	}

	r.WriteAt(ptr.Reference, i32le(7))

	// get(16,16) copies Param's 16 bytes (the bottom of the initial
	// stack) above Env without popping either, then dereference(4) reads
	// through the copy.
	var code []byte
	code = append(code, byte(OpGet))
	code = append(code, usizeLE(16)...)
	code = append(code, usizeLE(16)...)
	code = append(code, byte(OpDereference))
	code = append(code, usizeLE(4)...)
	code = append(code, byte(OpI32NarrowToU8))
	code = append(code, byte(OpHalt))

	interp.image.Code = code

	_, status, err := interp.Run(scheduler.Handler{CodeOffset: 0, Param: ptr, ParamSize: 16})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if status != 7 {
		t.Fatalf("got status %d, want 7", status)
	}
}

// TestInitWritesValueIntoTemplateSlot exercises init: a 4-byte template
// placeholder is pushed, then a literal is pushed on top of it and init
// pops the literal and writes it into the placeholder's slot in place.
func TestInitWritesValueIntoTemplateSlot(t *testing.T) {
	var code []byte
	code = append(code, byte(OpLiteral))
	code = append(code, i32le(0)...) // template placeholder

	code = append(code, byte(OpLiteral))
	code = append(code, i32le(9)...) // value to init into the placeholder

	code = append(code, byte(OpInit))
	code = append(code, usizeLE(0)...) // off
	code = append(code, usizeLE(4)...) // size
	code = append(code, usizeLE(4)...) // tplSize

	code = append(code, byte(OpI32NarrowToU8))
	code = append(code, byte(OpHalt))

	interp, _, _, _ := newTestInterp(buildImage(nil, code))

	_, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if status != 9 {
		t.Fatalf("got status %d, want 9", status)
	}
}

// TestProjectionExtractsFieldWithoutConsumingTupleFirst exercises
// projection: two literals form an 8-byte tuple, and projecting at off=4
// (the field pushed last, i.e. nearest the top) pulls out the second
// value and discards the whole tuple.
func TestProjectionExtractsFieldWithoutConsumingTupleFirst(t *testing.T) {
	var code []byte
	code = append(code, byte(OpLiteral))
	code = append(code, i32le(3)...)
	code = append(code, byte(OpLiteral))
	code = append(code, i32le(20)...)

	code = append(code, byte(OpProjection))
	code = append(code, usizeLE(4)...) // off
	code = append(code, usizeLE(4)...) // size
	code = append(code, usizeLE(8)...) // tplSize

	code = append(code, byte(OpI32NarrowToU8))
	code = append(code, byte(OpHalt))

	interp, _, _, _ := newTestInterp(buildImage(nil, code))

	_, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if status != 20 {
		t.Fatalf("got status %d, want 20", status)
	}
}

// TestAllocaReservesUsableSpace confirms alloca's reserved bytes are real
// stack space that a subsequent init can write into and a dereference-like
// pop can read back, not just an sp bump that corrupts later ops.
func TestAllocaReservesUsableSpace(t *testing.T) {
	var code []byte
	code = append(code, byte(OpAlloca))
	code = append(code, usizeLE(4)...)

	code = append(code, byte(OpLiteral))
	code = append(code, i32le(42)...)

	code = append(code, byte(OpInit))
	code = append(code, usizeLE(0)...)
	code = append(code, usizeLE(4)...)
	code = append(code, usizeLE(4)...)

	code = append(code, byte(OpI32NarrowToU8))
	code = append(code, byte(OpHalt))

	interp, _, _, _ := newTestInterp(buildImage(nil, code))

	_, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if status != 42 {
		t.Fatalf("got status %d, want 42", status)
	}
}

// TestCallJumpsToPoppedTarget confirms call pops a 4-byte code offset and
// jumps there without advancing pc by the instruction's own width
// afterward.
func TestCallJumpsToPoppedTarget(t *testing.T) {
	var code []byte
	code = append(code, byte(OpGlobalFunction))
	code = append(code, i32le(6)...) // target: right after this 6-byte prelude
	code = append(code, byte(OpCall))

	code = append(code, byte(OpU8Literal), 55)
	code = append(code, byte(OpHalt))

	interp, _, _, _ := newTestInterp(buildImage(nil, code))

	outcome, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if outcome != Halted || status != 55 {
		t.Fatalf("got outcome=%v status=%d, want Halted(55)", outcome, status)
	}
}

// TestCallIfNotZeroTakesGBranchOnNonzeroCond confirms the push order is
// cond, then g, then f (f popped first, since it is pushed last/topmost),
// and that a nonzero cond takes g rather than f.
func TestCallIfNotZeroTakesGBranchOnNonzeroCond(t *testing.T) {
	var code []byte
	code = append(code, byte(OpLiteral))
	code = append(code, i32le(1)...) // cond, nonzero

	code = append(code, byte(OpLiteral))
	code = append(code, i32le(19)...) // g target

	code = append(code, byte(OpLiteral))
	code = append(code, i32le(16)...) // f target

	code = append(code, byte(OpCallIfNotZero))

	// f branch (offset 16): should not execute since cond != 0.
	code = append(code, byte(OpU8Literal), 111)
	code = append(code, byte(OpHalt))

	// g branch (offset 19): should execute.
	code = append(code, byte(OpU8Literal), 222)
	code = append(code, byte(OpHalt))

	interp, _, _, _ := newTestInterp(buildImage(nil, code))

	_, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if status != 222 {
		t.Fatalf("got status %d, want 222 (the g branch)", status)
	}
}

// TestFreeRegionDropsHandleButKeepsStats confirms free-region removes the
// handle from the table's live maps while regionTable.stats still counts
// the region's past allocations.
func TestFreeRegionDropsHandleButKeepsStats(t *testing.T) {
	var code []byte
	code = append(code, byte(OpNewRegion))
	code = append(code, usizeLE(64)...)

	code = append(code, byte(OpFreeRegion))

	code = append(code, byte(OpU8Literal), 0)
	code = append(code, byte(OpHalt))

	interp, _, _, _ := newTestInterp(buildImage(nil, code))

	outcome, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if outcome != Halted || status != 0 {
		t.Fatalf("got outcome=%v status=%d, want Halted(0)", outcome, status)
	}

	if len(interp.regions.byHandle) != 0 {
		t.Fatalf("expected the freed region's handle gone from byHandle, got %d remaining", len(interp.regions.byHandle))
	}

	if len(interp.regions.all) != 1 {
		t.Fatalf("expected the region's counters retained in all, got %d entries", len(interp.regions.all))
	}
}

// TestProjectFromDataArrayReadsElementAtIndex confirms project-data-array
// indexes directly into the data section using the sentinel pointer's
// offset plus idx*elemSize, without a length header (unlike heap arrays).
func TestProjectFromDataArrayReadsElementAtIndex(t *testing.T) {
	var data []byte
	data = append(data, i32le(10)...)
	data = append(data, i32le(20)...)
	data = append(data, i32le(30)...)

	var code []byte
	code = append(code, byte(OpLoadFromDataSection))
	code = append(code, usizeLE(0)...)

	code = append(code, byte(OpLiteral))
	code = append(code, i32le(1)...) // idx 1 -> value 20

	code = append(code, byte(OpProjectFromDataArray))
	code = append(code, usizeLE(4)...)

	code = append(code, byte(OpI32NarrowToU8))
	code = append(code, byte(OpHalt))

	interp, _, _, _ := newTestInterp(buildImage(data, code))

	_, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if status != 20 {
		t.Fatalf("got status %d, want 20", status)
	}
}

// TestCopyNCopiesFromDataSectionIntoHeapArray exercises copy-n with a
// sentinel (data-section) source and a heap-array destination, confirming
// the first copied element lands after the destination's length prefix
// and the destination pointer is left on the stack.
func TestCopyNCopiesFromDataSectionIntoHeapArray(t *testing.T) {
	var data []byte
	data = append(data, i32le(111)...)
	data = append(data, i32le(222)...)
	data = append(data, i32le(333)...)

	var code []byte
	code = append(code, byte(OpNewRegion))
	code = append(code, usizeLE(128)...)

	code = append(code, byte(OpLiteral))
	code = append(code, i32le(3)...) // array length

	code = append(code, byte(OpNewArray))
	code = append(code, usizeLE(4)...) // elem_size

	code = append(code, byte(OpLoadFromDataSection))
	code = append(code, usizeLE(0)...)

	code = append(code, byte(OpLiteral))
	code = append(code, i32le(2)...) // n

	code = append(code, byte(OpCopyN))
	code = append(code, usizeLE(4)...) // elem_size

	code = append(code, byte(OpLiteral))
	code = append(code, i32le(0)...) // index 0

	code = append(code, byte(OpProjectFromArray))
	code = append(code, usizeLE(4)...)

	code = append(code, byte(OpI32NarrowToU8))
	code = append(code, byte(OpHalt))

	interp, _, _, _ := newTestInterp(buildImage(data, code))

	_, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if status != 111 {
		t.Fatalf("got status %d, want 111 (copied element 0)", status)
	}
}

// TestWriteWritesPayloadAndPostsContinuation confirms write sends its
// payload to the selected stream (mode 0 is stdout) and posts a
// continuation handler rather than halting or yielding itself.
func TestWriteWritesPayloadAndPostsContinuation(t *testing.T) {
	data := []byte("hi")

	var code []byte
	code = append(code, byte(OpNewRegion))
	code = append(code, usizeLE(64)...) // region operand (unused by write itself)

	code = append(code, byte(OpU8Literal), 0) // mode: stdout

	code = append(code, byte(OpLoadFromDataSection))
	code = append(code, usizeLE(0)...) // env (reusing a sentinel pointer; write never inspects it)

	code = append(code, byte(OpGlobalFunction))
	code = append(code, i32le(0)...) // continuation handler offset

	code = append(code, byte(OpLoadFromDataSection))
	code = append(code, usizeLE(0)...) // string pointer: "hi"

	code = append(code, byte(OpWrite), 0) // channel byte, ignored

	code = append(code, byte(OpU8Literal), 77)
	code = append(code, byte(OpHalt))

	interp, sched, stdout, _ := newTestInterp(buildImage(data, code))

	outcome, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if outcome != Halted || status != 77 {
		t.Fatalf("got outcome=%v status=%d, want Halted(77)", outcome, status)
	}

	if stdout.String() != "hi" {
		t.Fatalf("got stdout %q, want %q", stdout.String(), "hi")
	}

	if sched.Empty() {
		t.Fatalf("expected write to post a continuation handler")
	}
}

// TestU8DivUsesFirstPushedAsNumerator mirrors TestI32DivUsesFirstPushedAsNumerator
// for the u8 variant: 20/4, not 4/20.
func TestU8DivUsesFirstPushedAsNumerator(t *testing.T) {
	code := []byte{
		byte(OpU8Literal), 20,
		byte(OpU8Literal), 4,
		byte(OpU8Div),
		byte(OpHalt),
	}

	interp, _, _, _ := newTestInterp(buildImage(nil, code))

	_, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if status != 5 {
		t.Fatalf("got status %d, want 5 (20/4)", status)
	}
}

// TestU8ModUsesFirstPushedAsDividend confirms u8.mod's operand order
// matches u8.div's: 7 % 3, not 3 % 7.
func TestU8ModUsesFirstPushedAsDividend(t *testing.T) {
	code := []byte{
		byte(OpU8Literal), 7,
		byte(OpU8Literal), 3,
		byte(OpU8Mod),
		byte(OpHalt),
	}

	interp, _, _, _ := newTestInterp(buildImage(nil, code))

	_, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if status != 1 {
		t.Fatalf("got status %d, want 1 (7%%3)", status)
	}
}

// TestI32ModUsesFirstPushedAsDividend confirms i32.mod's operand order:
// 17 % 5, not 5 % 17.
func TestI32ModUsesFirstPushedAsDividend(t *testing.T) {
	var code []byte
	code = append(code, byte(OpLiteral))
	code = append(code, i32le(17)...)
	code = append(code, byte(OpLiteral))
	code = append(code, i32le(5)...)
	code = append(code, byte(OpI32Mod))
	code = append(code, byte(OpI32NarrowToU8))
	code = append(code, byte(OpHalt))

	interp, _, _, _ := newTestInterp(buildImage(nil, code))

	_, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if status != 2 {
		t.Fatalf("got status %d, want 2 (17%%5)", status)
	}
}

// TestU8WidenToI32RoundTripsThroughNarrow confirms u8->i32 zero-extends
// rather than sign-extending, by round-tripping through i32->u8.
func TestU8WidenToI32RoundTripsThroughNarrow(t *testing.T) {
	code := []byte{
		byte(OpU8Literal), 200,
		byte(OpU8WidenToI32),
		byte(OpI32NarrowToU8),
		byte(OpHalt),
	}

	interp, _, _, _ := newTestInterp(buildImage(nil, code))

	_, status, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if status != 200 {
		t.Fatalf("got status %d, want 200", status)
	}
}

func TestUnknownOpcodeFails(t *testing.T) {
	code := []byte{0xFF}

	interp, _, _, _ := newTestInterp(buildImage(nil, code))

	_, _, err := interp.Run(scheduler.Handler{CodeOffset: 0})
	if err == nil {
		t.Fatalf("expected UnknownOpcode error, got nil")
	}
}

func TestUseAfterFreeDetectedAfterFree(t *testing.T) {
	r := region.NewRegion(64, region.DefaultConfig())

	ptr, err := r.AllocObject(8)
	if err != nil {
		t.Fatalf("AllocObject: %v", err)
	}

	if err := region.FreeObject(ptr); err != nil {
		t.Fatalf("FreeObject: %v", err)
	}

	if err := region.CheckPointer(ptr); err == nil {
		t.Fatalf("expected UseAfterFree, got nil")
	}
}
