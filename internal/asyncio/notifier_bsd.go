//go:build darwin || freebsd || netbsd || openbsd

package asyncio

import (
	"golang.org/x/sys/unix"
)

// kqueueNotifier watches stdin (fd 0) for readability using kqueue,
// draining all currently available bytes on each wakeup.
type kqueueNotifier struct {
	kq     int
	stopCh chan struct{}
	doneCh chan struct{}
}

func newNotifier() Notifier {
	return &kqueueNotifier{}
}

func (n *kqueueNotifier) Start(dataCh chan<- []byte) error {
	if err := unix.SetNonblock(unix.Stdin, true); err != nil {
		return err
	}

	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}

	n.kq = kq
	n.stopCh = make(chan struct{})
	n.doneCh = make(chan struct{})

	changes := []unix.Kevent_t{{
		Ident:  uint64(unix.Stdin),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}}
	if _, err := unix.Kevent(kq, changes, nil, nil); err != nil {
		unix.Close(kq)

		return err
	}

	go n.loop(dataCh)

	return nil
}

func (n *kqueueNotifier) loop(dataCh chan<- []byte) {
	defer close(n.doneCh)

	events := make([]unix.Kevent_t, 1)
	buf := make([]byte, 4096)
	timeout := &unix.Timespec{Sec: 0, Nsec: 100_000_000}

	for {
		select {
		case <-n.stopCh:
			return
		default:
		}

		nReady, err := unix.Kevent(n.kq, nil, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}

			return
		}

		if nReady == 0 {
			continue
		}

		var collected []byte

		for {
			nRead, err := unix.Read(unix.Stdin, buf)
			if nRead > 0 {
				collected = append(collected, buf[:nRead]...)
			}

			if err != nil || nRead <= 0 {
				break
			}
		}

		if len(collected) > 0 {
			dataCh <- collected
		}
	}
}

func (n *kqueueNotifier) Stop() error {
	if n.stopCh == nil {
		return nil
	}

	close(n.stopCh)
	<-n.doneCh

	return unix.Close(n.kq)
}
