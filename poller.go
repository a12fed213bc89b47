//go:build linux && !appengine

package fluffy

import (
	"errors"
	"os"

	"github.com/tinkershack/fluffy-go/internal"
	"golang.org/x/sys/unix"
)

// readinessMultiplexer wraps an epoll instance watching exactly two file
// descriptors: the kernel notifier fd supplied at construction, and an
// internal wake-up pipe used to unblock the worker on cancellation. This is
// the engine's only suspension point (spec.md §5).
type readinessMultiplexer struct {
	epfd     int
	notifyFd int
	wake     [2]int // pipe; wake[0] read end, wake[1] write end
}

func newReadinessMultiplexer(notifyFd int) (*readinessMultiplexer, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}

	var wake [2]int
	if err := unix.Pipe2(wake[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unix.Close(epfd)
		return nil, os.NewSyscallError("pipe2", err)
	}

	p := &readinessMultiplexer{epfd: epfd, notifyFd: notifyFd, wake: wake}
	if err := p.register(notifyFd); err != nil {
		p.close()
		return nil, err
	}
	if err := p.register(wake[0]); err != nil {
		p.close()
		return nil, err
	}
	return p, nil
}

func (p *readinessMultiplexer) register(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

// rebind switches the multiplexer to watch a freshly-opened notifier fd, used
// by recovery after the old notifier is closed and replaced (spec.md §4.4).
func (p *readinessMultiplexer) rebind(notifyFd int) error {
	if err := p.register(notifyFd); err != nil {
		return err
	}
	p.notifyFd = notifyFd
	return nil
}

// wait blocks until the notifier is readable or the poller is woken.
// Returns true if the notifier has data ready to read.
func (p *readinessMultiplexer) wait() (bool, error) {
	events := make([]unix.EpollEvent, 4)
	for {
		n, err := internal.IgnoringEINTR(func() (int, error) {
			return unix.EpollWait(p.epfd, events, -1)
		})
		if err != nil {
			return false, os.NewSyscallError("epoll_wait", err)
		}
		if n == 0 {
			continue
		}

		var notifyReady, woken bool
		for _, ev := range events[:n] {
			switch int(ev.Fd) {
			case p.notifyFd:
				if ev.Events&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
					notifyReady = true
				}
			case p.wake[0]:
				woken = true
				p.drainWake()
			}
		}
		if notifyReady {
			return true, nil
		}
		if woken {
			return false, nil
		}
		return false, errors.New("fluffy: epoll_wait returned an unrecognized descriptor")
	}
}

// wakeUp unblocks a pending wait call; used by cancellation.
func (p *readinessMultiplexer) wakeUp() error {
	buf := [1]byte{1}
	_, err := unix.Write(p.wake[1], buf[:])
	if err != nil && err != unix.EAGAIN {
		return os.NewSyscallError("write", err)
	}
	return nil
}

func (p *readinessMultiplexer) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(p.wake[0], buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (p *readinessMultiplexer) close() {
	unix.Close(p.wake[1])
	unix.Close(p.wake[0])
	unix.Close(p.epfd)
}
