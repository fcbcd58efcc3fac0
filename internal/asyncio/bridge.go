// Package asyncio bridges standard-input readiness to SaberVM's handler
// scheduler: once the `read` opcode registers a continuation, a
// platform-specific notifier (epoll, kqueue, or a portable goroutine
// fallback — see notifier_*.go) watches stdin off the driver loop's
// goroutine and hands available bytes back over a channel, which the
// driver drains on its next idle-poll tick.
package asyncio

import (
	"encoding/binary"

	"github.com/SaberVM/SaberVM/internal/region"
	"github.com/SaberVM/SaberVM/internal/scheduler"
)

// Notifier watches stdin for readability and reports available bytes on
// dataCh. Implementations live in notifier_*.go, one per platform family.
type Notifier interface {
	Start(dataCh chan<- []byte) error
	Stop() error
}

// Bridge owns the registered stdin continuation (if any) and the
// platform notifier that feeds it.
type Bridge struct {
	sched    *scheduler.Scheduler
	notifier Notifier
	dataCh   chan []byte
	started  bool

	waitingHandler *scheduler.Handler
	waitingRegion  *region.Region
}

// New returns a Bridge posting completed reads to sched, using the
// platform-appropriate Notifier.
func New(sched *scheduler.Scheduler) *Bridge {
	return NewWithNotifier(sched, nil)
}

// NewWithNotifier returns a Bridge using the given Notifier instead of
// the platform default; n may be nil, in which case RegisterRead lazily
// selects the platform notifier on first use. Exposed so tests can
// exercise the Bridge without touching a real stdin file descriptor.
func NewWithNotifier(sched *scheduler.Scheduler, n Notifier) *Bridge {
	return &Bridge{
		sched:    sched,
		notifier: n,
		dataCh:   make(chan []byte, 64),
	}
}

// RegisterRead records the continuation to resume once stdin produces
// data, starting the platform notifier on first use. This is the `read`
// opcode's effect: pop handler, env, region; register; set the waiting
// bit; yield.
func (b *Bridge) RegisterRead(h scheduler.Handler, r *region.Region) error {
	b.waitingHandler = &h
	b.waitingRegion = r

	if !b.started {
		if b.notifier == nil {
			b.notifier = newNotifier()
		}

		if err := b.notifier.Start(b.dataCh); err != nil {
			return err
		}

		b.started = true
	}

	return nil
}

// Waiting reports whether a stdin continuation is currently registered.
func (b *Bridge) Waiting() bool { return b.waitingHandler != nil }

// Drain checks for data that arrived since the last call and, if
// present, allocates the length-prefixed array object in the registered
// region, packages it as the handler's parameter, posts the handler, and
// clears the waiting bit. It is a non-blocking check: called from the
// driver's idle-poll tick, never from the notifier's own goroutine.
func (b *Bridge) Drain() error {
	if b.waitingHandler == nil {
		return nil
	}

	select {
	case data := <-b.dataCh:
		h := *b.waitingHandler
		r := b.waitingRegion
		b.waitingHandler = nil
		b.waitingRegion = nil

		return b.deliver(h, r, data)
	default:
		return nil
	}
}

// deliver allocates an 8-byte-length-prefixed array object holding data
// in r, sets it as h's Param, and posts h to the scheduler. Param carries
// the Pointer struct itself (R bound to r) rather than encoded wire
// bytes: only the interpreter's regionTable knows how to pack a region
// identity into the 16-byte on-stack form, so encoding is deferred to
// Interp.Run when the task resumes.
func (b *Bridge) deliver(h scheduler.Handler, r *region.Region, data []byte) error {
	ptr, err := r.AllocObject(8 + uint64(len(data)))
	if err != nil {
		return err
	}

	lengthPrefix := make([]byte, 8)
	binary.LittleEndian.PutUint64(lengthPrefix, uint64(len(data)))
	r.WriteAt(ptr.Reference, lengthPrefix)
	r.WriteAt(ptr.Reference+8, data)

	h.Param = ptr
	h.ParamSize = 16

	return b.sched.PostTask(h)
}

// Stop tears down the platform notifier, if one was started.
func (b *Bridge) Stop() error {
	if b.notifier == nil {
		return nil
	}

	return b.notifier.Stop()
}
