package httpserver

import (
	"time"

	"github.com/jhegemann/muonbase/internal/httpproto"
	"github.com/jhegemann/muonbase/internal/netio"
)

// connection is one in-flight HTTP conversation bound to an accepted
// socket: a buffered reader, a buffered writer, and a parse stage.
type connection struct {
	sock   *netio.Socket
	reader *netio.Reader
	writer *netio.Writer
	parser *httpproto.Parser

	expiryAt time.Time
	request  httpproto.Request
}

func newConnection(sock *netio.Socket, idleTimeout time.Duration) *connection {
	return &connection{
		sock:     sock,
		reader:   netio.NewReader(sock),
		writer:   netio.NewWriter(sock),
		parser:   httpproto.NewParser(),
		expiryAt: time.Now().Add(idleTimeout),
	}
}

// reset returns the connection to a clean state for the next request on
// a keep-alive socket. The reader is deliberately left alone: bytes of a
// pipelined follow-up request may already be buffered past the consumed
// region, and the next parse picks up exactly there.
func (c *connection) reset(idleTimeout time.Duration) {
	c.writer.Clear()
	c.parser.Reset()
	c.expiryAt = time.Now().Add(idleTimeout)
}

func (c *connection) touch(idleTimeout time.Duration) {
	c.expiryAt = time.Now().Add(idleTimeout)
}

func (c *connection) expired(now time.Time) bool {
	return c.expiryAt.Before(now)
}

func keepAlive(req httpproto.Request) bool {
	v, ok := req.Headers.Get("connection")
	return ok && v == "keep-alive"
}
