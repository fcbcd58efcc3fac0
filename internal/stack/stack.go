// Package stack implements SaberVM's segmented operand stack: a
// byte-addressable LIFO spanning a singly linked chain of fixed-size
// chunks, so that a task's stack can grow across discontiguous memory
// instead of one contiguous (and potentially unbounded) buffer.
package stack

import vmerrors "github.com/SaberVM/SaberVM/internal/errors"

// ChunkSize is the fixed byte capacity of each stack segment.
const ChunkSize = 4096

// MaxChunkTraversal bounds how many chunks a single Get may walk across
// before the program is considered malformed.
const MaxChunkTraversal = 10

// chunk is one segment of the stack's linked chain.
type chunk struct {
	data    [ChunkSize]byte
	prev    *chunk
	savedSP uint32
}

// Stack is a byte-addressable LIFO operand stack.
type Stack struct {
	top *chunk
	sp  uint32
}

// New returns an empty stack with a single chunk allocated.
func New() *Stack {
	return &Stack{top: &chunk{}}
}

// SP returns the current byte offset within the top chunk.
func (s *Stack) SP() uint32 { return s.sp }

// EnsureSize allocates a new top chunk, linking back to the current one
// and saving the current sp, if the top chunk cannot hold n more bytes.
func (s *Stack) EnsureSize(n int) {
	if int(s.sp)+n <= ChunkSize {
		return
	}

	next := &chunk{prev: s.top, savedSP: s.sp}
	s.top = next
	s.sp = 0
}

// Push copies b onto the stack, growing the chunk chain first if needed.
// b is placed contiguously in a single chunk, so it is never split
// across a chunk boundary.
func (s *Stack) Push(b []byte) {
	s.EnsureSize(len(b))
	copy(s.top.data[s.sp:], b)
	s.sp += uint32(len(b))
}

// PushSmall is Push without the EnsureSize guard, for opcode-immediate
// pushes (at most 4 bytes) that are always safe without a fresh chunk
// check: the caller is responsible for a prior EnsureSize otherwise.
func (s *Stack) PushSmall(b []byte) {
	copy(s.top.data[s.sp:], b)
	s.sp += uint32(len(b))
}

// Pop removes and returns the top n bytes, crossing back into the
// previous chunk first if the current one is exhausted. Once traversal
// moves past a chunk it is dropped (not pooled) for reclamation by the
// garbage collector.
func (s *Stack) Pop(n int) []byte {
	if s.sp == 0 && s.top.prev != nil {
		freed := s.top
		s.top = freed.prev
		s.sp = freed.savedSP
		freed.prev = nil
	}

	s.sp -= uint32(n)
	out := make([]byte, n)
	copy(out, s.top.data[s.sp:s.sp+uint32(n)])

	return out
}

// Peek returns the top n bytes without popping them. Like Pop it may
// need to look into the previous chunk if the current one holds fewer
// than n bytes below sp, but unlike Pop it never mutates the chain.
func (s *Stack) Peek(n int) ([]byte, error) {
	return s.Get(0, n)
}

// locate walks backwards from sp across chunk boundaries to find the
// chunk and in-chunk offset holding the size bytes ending offset bytes
// below sp, shared by Get and Put. Bounded by MaxChunkTraversal to guard
// against malformed programs requesting an absurd depth.
func (s *Stack) locate(offset, size int) (*chunk, int, error) {
	remaining := offset + size
	c := s.top
	sp := int(s.sp)

	hops := 0
	for sp < remaining {
		if c.prev == nil {
			return nil, 0, vmerrors.StackTraversalOverflow(offset, MaxChunkTraversal)
		}

		hops++
		if hops > MaxChunkTraversal {
			return nil, 0, vmerrors.StackTraversalOverflow(offset, MaxChunkTraversal)
		}

		remaining -= sp
		sp = int(c.savedSP)
		c = c.prev
	}

	return c, sp - remaining, nil
}

// Get copies size bytes from sp-offset-size without disturbing sp.
func (s *Stack) Get(offset, size int) ([]byte, error) {
	c, start, err := s.locate(offset, size)
	if err != nil {
		return nil, err
	}

	out := make([]byte, size)
	copy(out, c.data[start:start+size])

	return out, nil
}

// Put writes data into the range ending offset bytes below sp, the
// mirror image of Get, without disturbing sp. Used by init to write a
// popped value into a tuple's interior field that remains on the stack.
func (s *Stack) Put(offset int, data []byte) error {
	c, start, err := s.locate(offset, len(data))
	if err != nil {
		return err
	}

	copy(c.data[start:start+len(data)], data)

	return nil
}

// Alloca reserves size uninitialized bytes on top of the stack.
func (s *Stack) Alloca(size int) {
	s.EnsureSize(size)
	s.sp += uint32(size)
}
