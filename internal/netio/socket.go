package netio

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Socket wraps a non-blocking IPv4 TCP stream socket identified by a raw
// file descriptor, the way the reference implementation's TcpSocket wraps
// a native socket handle.
type Socket struct {
	fd int
}

// Listen opens a listening socket bound to host:port with SO_REUSEADDR set
// and a backlog of SOMAXCONN, and marks it non-blocking.
func Listen(host string, port int) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("netio: socket: %w", err)
	}
	s := &Socket{fd: fd}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		s.Close()
		return nil, fmt.Errorf("netio: setsockopt SO_REUSEADDR: %w", err)
	}

	addr, err := resolveAddr(host, port)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := unix.Bind(fd, addr); err != nil {
		s.Close()
		return nil, fmt.Errorf("netio: bind: %w", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		s.Close()
		return nil, fmt.Errorf("netio: listen: %w", err)
	}
	if err := s.SetNonBlocking(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Connect opens a client socket to host:port. Since the socket is
// non-blocking, the connection may still be in progress when this
// returns; callers arm the descriptor writable and check IsGood.
func Connect(host string, port int) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("netio: socket: %w", err)
	}
	s := &Socket{fd: fd}
	if err := s.SetNonBlocking(); err != nil {
		s.Close()
		return nil, err
	}
	addr, err := resolveAddr(host, port)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := unix.Connect(fd, addr); err != nil && err != unix.EINPROGRESS {
		s.Close()
		return nil, fmt.Errorf("netio: connect: %w", err)
	}
	return s, nil
}

func resolveAddr(host string, port int) (unix.Sockaddr, error) {
	if host == "" {
		host = LocalHost
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil, fmt.Errorf("netio: resolve host %q: %w", host, err)
		}
		ip = ips[0]
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("netio: host %q is not IPv4", host)
	}
	addr := &unix.SockaddrInet4{Port: port}
	copy(addr.Addr[:], ip4)
	return addr, nil
}

// Fd returns the underlying file descriptor.
func (s *Socket) Fd() int { return s.fd }

// LocalPort returns the local port a socket is bound to, for discovering
// the ephemeral port the kernel chose when listening on port 0.
func (s *Socket) LocalPort() (int, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return 0, fmt.Errorf("netio: getsockname: %w", err)
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return 0, fmt.Errorf("netio: unexpected sockaddr type %T", sa)
	}
	return in4.Port, nil
}

// SetNonBlocking marks the socket non-blocking.
func (s *Socket) SetNonBlocking() error {
	if err := unix.SetNonblock(s.fd, true); err != nil {
		return fmt.Errorf("netio: set non-blocking: %w", err)
	}
	return nil
}

// IsGood reports whether the socket has no pending SO_ERROR.
func (s *Socket) IsGood() bool {
	errno, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	return err == nil && errno == 0
}

// Close closes the socket. Safe to call more than once.
func (s *Socket) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

// Accept accepts one pending connection, returning the new non-blocking
// socket. A StatusBlocked result means no connection was pending.
func (s *Socket) Accept() (*Socket, Status) {
	fd, _, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, StatusBlocked
		}
		return nil, StatusError
	}
	return &Socket{fd: fd}, StatusSuccess
}

// Receive drains the kernel into buf, appending in chunks and looping
// until the kernel reports EAGAIN. StatusBlocked means nothing was
// available; StatusSuccess means at least one chunk landed and the
// kernel is now drained.
func (s *Socket) Receive(buf *[]byte) Status {
	scratch := make([]byte, ReceiveBufferSize)
	total := 0
	for {
		n, err := unix.Read(s.fd, scratch)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				if total > 0 {
					return StatusSuccess
				}
				return StatusBlocked
			case unix.EINTR:
				return StatusInterrupted
			case unix.ECONNRESET:
				return StatusDisconnect
			default:
				return StatusError
			}
		}
		if n == 0 {
			return StatusDisconnect
		}
		*buf = append(*buf, scratch[:n]...)
		total += n
		if len(*buf) > MaxPayloadSize {
			return StatusOverflow
		}
	}
}

// Send feeds buf to the kernel, looping until every byte has been
// accepted or the kernel reports EAGAIN. The byte count reports how much
// was accepted regardless of status.
func (s *Socket) Send(buf []byte) (int, Status) {
	if len(buf) == 0 {
		return 0, StatusEmptyBuffer
	}
	sent := 0
	for sent < len(buf) {
		n, err := unix.Write(s.fd, buf[sent:])
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return sent, StatusBlocked
			case unix.EINTR:
				return sent, StatusInterrupted
			case unix.EPIPE, unix.ECONNRESET:
				return sent, StatusDisconnect
			default:
				return sent, StatusError
			}
		}
		sent += n
	}
	return sent, StatusSuccess
}
