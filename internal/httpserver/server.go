// Package httpserver implements the single-threaded, epoll-driven event
// loop that turns readiness events on a listening socket and its
// accepted connections into parsed HTTP requests, dispatches them to
// registered handlers, and renders the responses back out, all without
// ever blocking on I/O.
package httpserver

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/jhegemann/muonbase/internal/httpproto"
	"github.com/jhegemann/muonbase/internal/netio"
)

// ConnectionTimeout is how long an idle connection may sit without any
// readable/writable activity before the timer tick destroys it.
const ConnectionTimeout = 10 * time.Second

// maxAcceptsPerReadable caps how many pending connections are accepted
// in a single readable event on the listening socket, leaving headroom
// in the multiplexer's fixed-size ready-event array for everything else
// (timer, signal, already-open connections).
const maxAcceptsPerReadable = netio.MaxReadyEvents - 3

// Handler maps one parsed request to a response. It MUST always return a
// well-formed response; it never propagates an error outward.
type Handler func(req httpproto.Request, services ServiceMap) httpproto.Response

// Server is the event loop, its registered services, and its handler
// dispatch table.
type Server struct {
	host string
	port int

	logger   zerolog.Logger
	services ServiceMap
	handlers map[string]Handler
	serving  bool

	poller      *netio.Poller
	listener    *netio.Socket
	signals     *netio.SignalSource
	timer       *netio.TimerSource
	connections map[int]*connection

	running bool
}

// NewServer constructs a Server bound to host:port. Register services
// and handlers before calling Serve.
func NewServer(host string, port int, logger zerolog.Logger) *Server {
	return &Server{
		host:        host,
		port:        port,
		logger:      logger,
		services:    ServiceMap{},
		handlers:    map[string]Handler{},
		connections: map[int]*connection{},
	}
}

// RegisterService adds a named service to the registration table.
// Registrations are rejected once Serve has been called.
func (s *Server) RegisterService(name string, svc Service) error {
	if s.serving {
		return errors.New("httpserver: cannot register a service while serving")
	}
	s.services[name] = svc
	return nil
}

// RegisterHandler binds a method+url pair to a handler. Registrations
// are rejected once Serve has been called.
func (s *Server) RegisterHandler(method httpproto.Method, url string, h Handler) error {
	if s.serving {
		return errors.New("httpserver: cannot register a handler while serving")
	}
	s.handlers[handlerKey(method, url)] = h
	return nil
}

func handlerKey(method httpproto.Method, url string) string {
	return method.String() + url
}

// LocalPort returns the port the listening socket is bound to, once
// Serve has completed setup. Mainly useful for tests that listen on
// port 0 and need to discover the ephemeral port chosen by the kernel.
func (s *Server) LocalPort() (int, bool) {
	if s.listener == nil {
		return 0, false
	}
	port, err := s.listener.LocalPort()
	if err != nil {
		return 0, false
	}
	return port, true
}

// Stop requests a clean shutdown by delivering SIGTERM to this process,
// the same path a real termination signal takes through the event loop.
func (s *Server) Stop() {
	unix.Kill(unix.Getpid(), unix.SIGTERM)
}

// Serve runs the setup sequence, the event loop, and the shutdown
// sequence. It returns when a termination signal is received or an
// unrecoverable resource error occurs.
//
// Serve locks the calling goroutine to its OS thread for its duration:
// signalfd only reliably observes a blocked signal on threads where the
// mask was set, and locking keeps this goroutine (and therefore the
// thread performing PthreadSigmask in setup) from migrating once the
// loop starts.
func (s *Server) Serve() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := s.setup(); err != nil {
		return err
	}
	s.serving = true
	s.running = true

	err := s.loop()

	s.shutdown()
	return err
}

func (s *Server) setup() error {
	for name, svc := range s.services {
		if err := svc.Initialize(); err != nil {
			return fmt.Errorf("httpserver: initialize service %q: %w", name, err)
		}
	}

	poller, err := netio.NewPoller()
	if err != nil {
		return fmt.Errorf("httpserver: open poller: %w", err)
	}
	s.poller = poller

	if err := s.openListener(); err != nil {
		return err
	}

	signals, err := netio.OpenSignalSource(unix.SIGINT, unix.SIGTERM, unix.SIGKILL)
	if err != nil {
		return fmt.Errorf("httpserver: open signal source: %w", err)
	}
	s.signals = signals
	if err := s.poller.AddReadable(signals.Fd()); err != nil {
		return fmt.Errorf("httpserver: register signal source: %w", err)
	}

	timer, err := netio.OpenTimerSource(ConnectionTimeout)
	if err != nil {
		return fmt.Errorf("httpserver: open timer source: %w", err)
	}
	s.timer = timer
	if err := s.poller.AddReadable(timer.Fd()); err != nil {
		return fmt.Errorf("httpserver: register timer source: %w", err)
	}

	return nil
}

func (s *Server) openListener() error {
	ln, err := netio.Listen(s.host, s.port)
	if err != nil {
		return fmt.Errorf("httpserver: listen on %s:%d: %w", s.host, s.port, err)
	}
	s.listener = ln
	if err := s.poller.AddReadable(ln.Fd()); err != nil {
		return fmt.Errorf("httpserver: register listener: %w", err)
	}
	return nil
}

func (s *Server) loop() error {
	for s.running {
		ready, status := s.poller.Wait(ConnectionTimeout)
		switch status {
		case netio.StatusInterrupted, netio.StatusTimeout:
			continue
		case netio.StatusError:
			return errors.New("httpserver: poller wait failed")
		}

		for _, ev := range ready {
			switch {
			case ev.Fd == s.timer.Fd():
				s.handleTimer()
			case ev.Fd == s.signals.Fd():
				s.handleSignal()
			case ev.Fd == s.listener.Fd():
				if ev.Errors {
					if err := s.reopenListener(); err != nil {
						return err
					}
					continue
				}
				s.acceptConnections()
			default:
				s.handleConnectionEvent(ev)
			}
		}
	}
	return nil
}

func (s *Server) handleTimer() {
	s.timer.Drain()
	for name, svc := range s.services {
		if err := svc.Tick(); err != nil {
			s.logger.Error().Str("service", name).Err(err).Msg("service tick failed")
		}
	}
	now := time.Now()
	for fd, c := range s.connections {
		if c.expired(now) {
			s.destroyConnection(fd)
		}
	}
	s.logger.Debug().Int("connections", len(s.connections)).Msg("tick")
}

func (s *Server) handleSignal() {
	s.signals.Drain()
	s.running = false
}

func (s *Server) reopenListener() error {
	s.poller.Remove(s.listener.Fd())
	s.listener.Close()
	for fd := range s.connections {
		s.destroyConnection(fd)
	}
	if err := s.openListener(); err != nil {
		s.running = false
		return err
	}
	return nil
}

func (s *Server) acceptConnections() {
	for i := 0; i < maxAcceptsPerReadable; i++ {
		sock, status := s.listener.Accept()
		if status != netio.StatusSuccess {
			return
		}
		if err := s.poller.AddReadable(sock.Fd()); err != nil {
			s.logger.Error().Err(err).Msg("failed to register accepted connection")
			sock.Close()
			continue
		}
		s.connections[sock.Fd()] = newConnection(sock, ConnectionTimeout)
	}
}

func (s *Server) handleConnectionEvent(ev netio.ReadyEvent) {
	c, ok := s.connections[ev.Fd]
	if !ok {
		return
	}
	if ev.Errors {
		s.destroyConnection(ev.Fd)
		return
	}
	if ev.Readable {
		s.handleReadable(ev.Fd, c)
		if _, stillOpen := s.connections[ev.Fd]; !stillOpen {
			return
		}
	}
	if ev.Writable {
		s.handleWritable(ev.Fd, c)
	}
}

func (s *Server) handleReadable(fd int, c *connection) {
	c.touch(ConnectionTimeout)
	if c.parser.Stage() == httpproto.StageEnd {
		s.destroyConnection(fd)
		return
	}

	status := c.reader.ReadSome()
	if status != netio.StatusSuccess && status != netio.StatusBlocked {
		s.destroyConnection(fd)
		return
	}

	s.runParser(fd, c)
}

// runParser advances the connection's parser over whatever bytes are
// buffered and, if a full request came together, dispatches it and arms
// the descriptor for writing the rendered response.
func (s *Server) runParser(fd int, c *connection) {
	stage := c.parser.Advance(c.reader)
	switch stage {
	case httpproto.StageFailed:
		s.destroyConnection(fd)
	case httpproto.StageEnd:
		req := c.parser.Request()
		c.request = req
		resp := s.dispatch(req)
		c.writer.Write(httpproto.Render(resp))
		if err := s.poller.SetWritable(fd); err != nil {
			s.destroyConnection(fd)
		}
	}
}

func (s *Server) handleWritable(fd int, c *connection) {
	c.touch(ConnectionTimeout)
	status := c.writer.SendSome()
	if status != netio.StatusSuccess && status != netio.StatusBlocked && status != netio.StatusEmptyBuffer {
		s.destroyConnection(fd)
		return
	}
	if !c.writer.IsEmpty() {
		return
	}
	if keepAlive(c.request) {
		c.reset(ConnectionTimeout)
		if err := s.poller.SetReadable(fd); err != nil {
			s.destroyConnection(fd)
			return
		}
		// A pipelined follow-up request may already sit in the reader;
		// no further readable event will announce bytes that have
		// already left the kernel, so parse them now.
		if c.reader.Buffered() > 0 {
			s.runParser(fd, c)
		}
		return
	}
	s.destroyConnection(fd)
}

func (s *Server) dispatch(req httpproto.Request) httpproto.Response {
	h, ok := s.handlers[handlerKey(req.Method, req.URL)]
	if !ok {
		resp := httpproto.NewResponse(404, "Not Found")
		resp.Headers.Set("content-type", "application/json")
		resp.Body = []byte(`{"success":false}`)
		return resp
	}
	return h(req, s.services)
}

func (s *Server) destroyConnection(fd int) {
	c, ok := s.connections[fd]
	if !ok {
		return
	}
	s.poller.Remove(fd)
	c.sock.Close()
	delete(s.connections, fd)
}

func (s *Server) shutdown() {
	for name, svc := range s.services {
		if err := svc.Shutdown(); err != nil {
			s.logger.Error().Str("service", name).Err(err).Msg("service shutdown failed")
		}
	}
	if s.timer != nil {
		s.timer.Close()
	}
	if s.signals != nil {
		s.signals.Close()
	}
	for fd := range s.connections {
		s.destroyConnection(fd)
	}
	if s.listener != nil {
		s.listener.Close()
	}
	if s.poller != nil {
		s.poller.Release()
	}
}
