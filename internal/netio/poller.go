package netio

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// MaxReadyEvents bounds how many ready entries a single Wait call returns,
// mirroring the reference implementation's fixed-size ready array.
const MaxReadyEvents = 256

// ReadyEvent describes one descriptor that became ready.
type ReadyEvent struct {
	Fd       int
	Readable bool
	Writable bool
	Errors   bool
}

// Poller is an epoll-backed readiness multiplexer.
type Poller struct {
	epfd   int
	events [MaxReadyEvents]unix.EpollEvent
}

// NewPoller creates a new readiness multiplexer.
func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("netio: epoll_create1: %w", err)
	}
	return &Poller{epfd: epfd}, nil
}

// Release closes the multiplexer.
func (p *Poller) Release() error {
	if p.epfd < 0 {
		return nil
	}
	err := unix.Close(p.epfd)
	p.epfd = -1
	return err
}

func (p *Poller) ctl(op int, fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("netio: epoll_ctl: %w", err)
	}
	return nil
}

// AddReadable registers fd for read readiness only.
func (p *Poller) AddReadable(fd int) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, unix.EPOLLIN)
}

// AddWritable registers fd for write readiness only.
func (p *Poller) AddWritable(fd int) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, unix.EPOLLOUT)
}

// AddDuplex registers fd for both read and write readiness.
func (p *Poller) AddDuplex(fd int) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, unix.EPOLLIN|unix.EPOLLOUT)
}

// SetReadable switches an already-registered fd to read readiness only.
func (p *Poller) SetReadable(fd int) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, unix.EPOLLIN)
}

// SetWritable switches an already-registered fd to write readiness only.
func (p *Poller) SetWritable(fd int) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, unix.EPOLLOUT)
}

// Remove deregisters fd. It is not an error if fd is already gone.
func (p *Poller) Remove(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		if err == unix.ENOENT || err == unix.EBADF {
			return nil
		}
		return fmt.Errorf("netio: epoll_ctl del: %w", err)
	}
	return nil
}

// Wait blocks up to timeout for ready descriptors, returning StatusTimeout
// if none became ready and StatusInterrupted on EINTR so callers can
// retry the loop instead of treating it as an error.
func (p *Poller) Wait(timeout time.Duration) ([]ReadyEvent, Status) {
	ms := int(timeout / time.Millisecond)
	n, err := unix.EpollWait(p.epfd, p.events[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, StatusInterrupted
		}
		return nil, StatusError
	}
	if n == 0 {
		return nil, StatusTimeout
	}
	ready := make([]ReadyEvent, n)
	for i := 0; i < n; i++ {
		ev := p.events[i]
		ready[i] = ReadyEvent{
			Fd:       int(ev.Fd),
			Readable: ev.Events&unix.EPOLLIN != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			Errors:   ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		}
	}
	return ready, StatusSuccess
}
