package netio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SignalSource delivers process signals as epoll readiness events instead
// of asynchronous handlers, via signalfd: the listed signals are first
// blocked from normal delivery, then routed through a readable fd.
type SignalSource struct {
	fd int
}

// OpenSignalSource blocks the given signals on the calling OS thread only
// (other threads keep their own signal masks) and returns a non-blocking
// fd that becomes readable whenever one of them is pending.
func OpenSignalSource(signals ...unix.Signal) (*SignalSource, error) {
	var mask unix.Sigset_t
	for _, sig := range signals {
		addSignal(&mask, sig)
	}
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &mask, nil); err != nil {
		return nil, fmt.Errorf("netio: block signals: %w", err)
	}
	fd, err := unix.Signalfd(-1, &mask, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("netio: signalfd: %w", err)
	}
	return &SignalSource{fd: fd}, nil
}

func addSignal(set *unix.Sigset_t, sig unix.Signal) {
	n := int(sig) - 1
	if n < 0 {
		return
	}
	set.Val[n/64] |= 1 << uint(n%64)
}

// Fd returns the underlying file descriptor.
func (s *SignalSource) Fd() int { return s.fd }

// Drain reads and discards one pending signalfd_siginfo record, matching
// the size signalfd always returns on a readable event.
func (s *SignalSource) Drain() error {
	var buf [128]byte // sizeof(struct signalfd_siginfo)
	_, err := unix.Read(s.fd, buf[:])
	if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
		return fmt.Errorf("netio: read signalfd: %w", err)
	}
	return nil
}

// Close closes the signalfd.
func (s *SignalSource) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}
