package httpproto

import "strings"

// Headers is a case-insensitive ordered collection of HTTP header
// fields. Set and lookups both lowercase the key, so stored and rendered
// header names are always lowercase.
type Headers struct {
	keys []string
	vals map[string]string
}

// NewHeaders returns an empty header collection.
func NewHeaders() Headers {
	return Headers{vals: make(map[string]string)}
}

func normalizeKey(key string) string {
	return strings.ToLower(key)
}

// Get returns the value stored for key, case-insensitively.
func (h Headers) Get(key string) (string, bool) {
	if h.vals == nil {
		return "", false
	}
	v, ok := h.vals[normalizeKey(key)]
	return v, ok
}

// Set stores value for key, case-insensitively, overwriting any prior
// value and preserving the original insertion position.
func (h *Headers) Set(key, value string) {
	if h.vals == nil {
		h.vals = make(map[string]string)
	}
	k := normalizeKey(key)
	if _, exists := h.vals[k]; !exists {
		h.keys = append(h.keys, k)
	}
	h.vals[k] = value
}

// Has reports whether key is present, case-insensitively.
func (h Headers) Has(key string) bool {
	_, ok := h.Get(key)
	return ok
}

// Len returns the number of distinct headers stored.
func (h Headers) Len() int { return len(h.keys) }

// Keys returns the header names in insertion order.
func (h Headers) Keys() []string {
	return h.keys
}
