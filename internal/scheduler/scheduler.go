// Package scheduler implements SaberVM's handler queue: a bounded,
// single-threaded, last-in-first-out queue of continuation tasks that
// the drive loop pops and the interpreter (or an asyncio readiness
// callback) posts to.
package scheduler

import (
	"github.com/SaberVM/SaberVM/internal/region"

	vmerrors "github.com/SaberVM/SaberVM/internal/errors"
)

// Capacity is the maximum number of pending handlers.
const Capacity = 255

// Handler is a resumable continuation: "resume at CodeOffset with Param
// pushed (if ParamSize > 0), then Env pushed on top." Param is carried as
// a region.Pointer rather than its encoded wire bytes, the same way Env
// is, so that asyncio's Bridge (which knows the *Region a delivered
// pointer belongs to, but not the vm package's handle table) can
// populate it without needing to reach into vm's wire-format packing —
// the interpreter re-encodes it when resuming the task.
type Handler struct {
	CodeOffset uint32
	Param      region.Pointer
	ParamSize  int
	Env        region.Pointer
}

// Scheduler is a bounded LIFO of pending Handlers. It is not safe for
// concurrent use by multiple goroutines on its own; the asyncio bridge
// serializes its posts against the drive loop (see internal/asyncio).
type Scheduler struct {
	queue []Handler
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{queue: make([]Handler, 0, Capacity)}
}

// PostTask appends h to the queue, returning an error rather than a
// boolean success flag at capacity.
func (s *Scheduler) PostTask(h Handler) error {
	if len(s.queue) >= Capacity {
		return vmerrors.SchedulerFull(Capacity)
	}

	s.queue = append(s.queue, h)

	return nil
}

// Pop removes and returns the most recently posted handler. Callers must
// check Empty first; Pop on an empty scheduler panics, matching the
// drive loop's contract of only popping when Len() > 0.
func (s *Scheduler) Pop() Handler {
	n := len(s.queue)
	h := s.queue[n-1]
	s.queue = s.queue[:n-1]

	return h
}

// Len reports the number of pending handlers.
func (s *Scheduler) Len() int { return len(s.queue) }

// Empty reports whether the queue has no pending handlers.
func (s *Scheduler) Empty() bool { return len(s.queue) == 0 }
