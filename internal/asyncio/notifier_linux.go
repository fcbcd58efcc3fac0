//go:build linux

package asyncio

import (
	"golang.org/x/sys/unix"
)

// epollNotifier watches stdin (fd 0) for readability using epoll,
// draining all currently available bytes on each wakeup.
type epollNotifier struct {
	epfd   int
	stopCh chan struct{}
	doneCh chan struct{}
}

func newNotifier() Notifier {
	return &epollNotifier{}
}

func (n *epollNotifier) Start(dataCh chan<- []byte) error {
	if err := unix.SetNonblock(unix.Stdin, true); err != nil {
		return err
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return err
	}

	n.epfd = epfd
	n.stopCh = make(chan struct{})
	n.doneCh = make(chan struct{})

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(unix.Stdin)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, unix.Stdin, &ev); err != nil {
		unix.Close(epfd)

		return err
	}

	go n.loop(dataCh)

	return nil
}

func (n *epollNotifier) loop(dataCh chan<- []byte) {
	defer close(n.doneCh)

	events := make([]unix.EpollEvent, 1)
	buf := make([]byte, 4096)

	for {
		select {
		case <-n.stopCh:
			return
		default:
		}

		const pollTimeoutMillis = 100

		nReady, err := unix.EpollWait(n.epfd, events, pollTimeoutMillis)
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

func (n *epollNotifier) Stop() error {
	if n.stopCh == nil {
		return nil
	}

	close(n.stopCh)
	<-n.doneCh

	return unix.Close(n.epfd)
}
