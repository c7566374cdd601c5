// Package userpool implements HTTP Basic authentication against a flat
// username -> SHA-256 password digest file.
package userpool

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/jhegemann/muonbase/internal/value"
)

// Pool loads a username -> hex-encoded SHA-256 password digest mapping
// from a JSON file and checks submitted credentials against it. It
// implements the Initialize/Tick/Shutdown lifecycle every registered
// service follows.
type Pool struct {
	mu       sync.RWMutex
	path     string
	digests  map[string]string
}

// New constructs a Pool bound to path. Call Initialize before using it.
func New(path string) *Pool {
	return &Pool{path: path}
}

// Initialize loads the user file. A missing file leaves the pool empty
// rather than failing, so a server can run with no configured users.
func (p *Pool) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			p.digests = map[string]string{}
			return nil
		}
		return fmt.Errorf("userpool: read %s: %w", p.path, err)
	}
	doc, err := value.ParseDocument(string(data))
	if err != nil {
		return fmt.Errorf("userpool: parse %s: %w", p.path, err)
	}
	digests := make(map[string]string, doc.Len())
	for _, name := range doc.Keys() {
		field, _ := doc.Field(name)
		digest, err := field.AsString()
		if err != nil {
			return fmt.Errorf("userpool: user %q digest must be a string: %w", name, err)
		}
		digests[name] = digest
	}
	p.digests = digests
	return nil
}

// Tick does nothing; user files are only read at Initialize.
func (p *Pool) Tick() error { return nil }

// Shutdown does nothing.
func (p *Pool) Shutdown() error { return nil }

// AccessPermitted reports whether passwd's SHA-256 hex digest matches the
// stored digest for user.
func (p *Pool) AccessPermitted(user, passwd string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stored, ok := p.digests[user]
	if !ok {
		return false
	}
	sum := sha256.Sum256([]byte(passwd))
	return hex.EncodeToString(sum[:]) == stored
}

// CheckBasicAuth parses an "authorization: Basic <base64>" header value
// and reports whether the encoded user:pass pair is permitted.
func (p *Pool) CheckBasicAuth(header string) bool {
	if header == "" {
		return false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Basic" {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}
	return p.AccessPermitted(user, pass)
}
