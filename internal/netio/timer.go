package netio

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// TimerSource is a monotonic, periodic timer delivered as an epoll
// readiness event via timerfd.
type TimerSource struct {
	fd int
}

// OpenTimerSource creates a non-blocking timerfd that fires every period
// starting after the first period elapses.
func OpenTimerSource(period time.Duration) (*TimerSource, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("netio: timerfd_create: %w", err)
	}
	spec := unix.ItimerSpec{
		Interval: unix.NsecToTimespec(int64(period)),
		Value:    unix.NsecToTimespec(int64(period)),
	}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("netio: timerfd_settime: %w", err)
	}
	return &TimerSource{fd: fd}, nil
}

// Fd returns the underlying file descriptor.
func (t *TimerSource) Fd() int { return t.fd }

// Drain reads and discards the 8-byte expiration counter timerfd always
// returns on a readable event.
func (t *TimerSource) Drain() error {
	var buf [8]byte
	_, err := unix.Read(t.fd, buf[:])
	if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
		return fmt.Errorf("netio: read timerfd: %w", err)
	}
	return nil
}

// Close closes the timerfd.
func (t *TimerSource) Close() error {
	if t.fd < 0 {
		return nil
	}
	err := unix.Close(t.fd)
	t.fd = -1
	return err
}
