// Package driver implements the top-level drive loop: parse the program
// image, seed the scheduler with its entry task, and run tasks to
// completion until the machine halts or goes permanently idle.
package driver

import (
	"fmt"
	"io"
	"time"

	"github.com/SaberVM/SaberVM/internal/asyncio"
	"github.com/SaberVM/SaberVM/internal/region"
	"github.com/SaberVM/SaberVM/internal/scheduler"
	"github.com/SaberVM/SaberVM/internal/vm"
	"github.com/SaberVM/SaberVM/internal/vmimage"
)

// idlePollInterval is how often the drive loop re-checks the asyncio
// bridge once the scheduler is empty but a task is waiting on stdin.
const idlePollInterval = 10 * time.Millisecond

// Run parses image, executes its entry task, and drives the scheduler
// until the machine halts or idles out. It returns the process exit
// status: the halt opcode's status byte, or 1 on any fatal runtime
// error. The region allocation stats accumulated along the way are
// discarded; use RunWithStats to get them.
func Run(image []byte, stdout, stderr io.Writer) (exitStatus int, err error) {
	status, _, err := run(image, stdout, stderr)
	return status, err
}

// RunWithStats behaves exactly like Run but also returns the aggregate
// region allocation counters (allocations, frees, reuses, bytes live,
// peak bytes) accumulated across every region created during the run, for
// callers like cmd/sabervm's -stats flag.
func RunWithStats(image []byte, stdout, stderr io.Writer) (exitStatus int, stats region.Stats, err error) {
	return run(image, stdout, stderr)
}

func run(image []byte, stdout, stderr io.Writer) (exitStatus int, stats region.Stats, err error) {
	img, err := vmimage.Parse(image)
	if err != nil {
		return 1, region.Stats{}, err
	}

	sched := scheduler.New()
	bridge := asyncio.New(sched)
	interp := vm.New(img, sched, bridge, stdout, stderr)

	entry := scheduler.Handler{
		CodeOffset: img.EntryPC,
		Env:        region.DataSectionPointer(0),
	}
	if err := sched.PostTask(entry); err != nil {
		return 1, interp.Stats(), err
	}

	for {
		if !sched.Empty() {
			h := sched.Pop()

			outcome, status, runErr := interp.Run(h)
			if runErr != nil {
				fmt.Fprintf(stderr, "saberVM: %v\n", runErr)
				return 1, interp.Stats(), runErr
			}

			if outcome == vm.Halted {
				return int(status), interp.Stats(), nil
			}

			continue
		}

		if !bridge.Waiting() {
			return 0, interp.Stats(), nil
		}

		if err := bridge.Drain(); err != nil {
			fmt.Fprintf(stderr, "saberVM: %v\n", err)
			return 1, interp.Stats(), err
		}

		if sched.Empty() {
			time.Sleep(idlePollInterval)
		}
	}
}
