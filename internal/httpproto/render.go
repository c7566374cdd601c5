package httpproto

import (
	"strconv"
	"time"
)

// ServerName is the value of the "server" header on every response.
const ServerName = "muonbase"

// Render produces the wire bytes for resp: status line, headers (with
// the fixed set of default headers every response carries), a blank
// line, then the body. It does not mutate resp.
func Render(resp Response) []byte {
	h := NewHeaders()
	for _, key := range resp.Headers.Keys() {
		value, _ := resp.Headers.Get(key)
		h.Set(key, value)
	}
	if !h.Has("date") {
		h.Set("date", time.Now().UTC().Format(time.RFC1123))
	}
	if !h.Has("server") {
		h.Set("server", ServerName)
	}
	if !h.Has("access-control-allow-origin") {
		h.Set("access-control-allow-origin", "*")
	}
	if !h.Has("access-control-allow-methods") {
		h.Set("access-control-allow-methods", "GET, POST")
	}
	h.Set("content-length", strconv.Itoa(len(resp.Body)))

	var out []byte
	out = append(out, resp.Protocol...)
	out = append(out, ' ')
	out = append(out, strconv.Itoa(resp.Status)...)
	out = append(out, ' ')
	out = append(out, resp.Message...)
	out = append(out, "\r\n"...)

	for _, key := range h.Keys() {
		value, _ := h.Get(key)
		out = append(out, key...)
		out = append(out, ": "...)
		out = append(out, value...)
		out = append(out, "\r\n"...)
	}
	out = append(out, "\r\n"...)
	out = append(out, resp.Body...)
	return out
}

// RenderRequest produces the wire bytes for req, for a caller acting as
// an HTTP client against this server.
func RenderRequest(req Request) []byte {
	var out []byte
	out = append(out, req.Method.String()...)
	out = append(out, ' ')
	out = append(out, req.URL...)
	out = append(out, ' ')
	out = append(out, Protocol...)
	out = append(out, "\r\n"...)
	for _, key := range req.Headers.Keys() {
		value, _ := req.Headers.Get(key)
		out = append(out, key...)
		out = append(out, ": "...)
		out = append(out, value...)
		out = append(out, "\r\n"...)
	}
	out = append(out, "\r\n"...)
	out = append(out, req.Body...)
	return out
}
