// Package docstore glues the B+-tree index, the write-ahead journal, and
// the snapshot codec into the durable document database the HTTP API
// operates on: identifier allocation, crash recovery, and rollover all
// live here.
package docstore

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhegemann/muonbase/internal/btree"
	"github.com/jhegemann/muonbase/internal/journal"
	"github.com/jhegemann/muonbase/internal/snapshot"
	"github.com/jhegemann/muonbase/internal/value"
)

const (
	journalSuffix  = ".journal"
	snapshotSuffix = ".snapshot"

	// idLength is the number of characters generated for each document
	// identifier.
	idLength   = 16
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// ErrNotFound is returned by Erase and Find when the identifier is not
// present in the store.
var ErrNotFound = errors.New("docstore: not found")

// Store binds the B+-tree index, journal, and snapshot files that
// together make up one document database. It implements the
// Initialize/Tick/Shutdown lifecycle every registered service follows.
type Store struct {
	mu sync.Mutex

	basePath     string
	journalPath  string
	snapshotPath string

	tree   *btree.Tree
	j      *journal.Journal
	rng    *idGenerator
	logger zerolog.Logger
}

// New constructs a Store bound to basePath, basePath+".journal", and
// basePath+".snapshot". Call Initialize before using it.
func New(basePath string, logger zerolog.Logger) *Store {
	return &Store{
		basePath:     basePath,
		journalPath:  basePath + journalSuffix,
		snapshotPath: basePath + snapshotSuffix,
		tree:         btree.New(),
		logger:       logger,
	}
}

// Initialize seeds the identifier generator from wall-clock time, loads
// the base file as a snapshot if present, replays the journal if
// present, then performs a rollover.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rng = newIDGenerator(uint64(time.Now().UnixNano()))

	if f, err := os.Open(s.basePath); err == nil {
		tree, decodeErr := btree.Decode(f, btree.DefaultFanout)
		f.Close()
		if decodeErr != nil {
			return fmt.Errorf("docstore: load snapshot: %w", decodeErr)
		}
		s.tree = tree
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("docstore: open base file: %w", err)
	}

	err := journal.Replay(s.journalPath, func(rec journal.Record) error {
		switch rec.Op {
		case journal.OpPut:
			s.tree.Insert(rec.Key, rec.Value)
		case journal.OpErase:
			s.tree.Erase(rec.Key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("docstore: replay journal: %w", err)
	}
	s.logger.Info().Str("base", s.basePath).Int("entries", s.tree.Size()).Msg("replayed write-ahead journal")

	j, err := journal.Open(s.journalPath)
	if err != nil {
		return fmt.Errorf("docstore: open journal: %w", err)
	}
	s.j = j

	return s.rolloverLocked()
}

// Shutdown closes the journal. It does not compact; a clean shutdown
// leaves the journal in place to be replayed on the next Initialize.
func (s *Store) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.j == nil {
		return nil
	}
	return s.j.Close()
}

// Tick performs a rollover if one is due. Callers invoke this
// periodically from the server's event loop.
func (s *Store) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rolloverLocked()
}

// Insert allocates a fresh identifier, durably logs the insert, applies
// it to the index, and returns the identifier.
func (s *Store) Insert(doc value.Value) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.rng.next()
	for s.tree.Contains(id) {
		id = s.rng.next()
	}
	if err := s.j.Append(journal.Record{Op: journal.OpPut, Key: id, Value: doc}); err != nil {
		return "", fmt.Errorf("docstore: append insert: %w", err)
	}
	s.tree.Insert(id, doc)
	return id, nil
}

// Erase removes the document with the given identifier, returning
// ErrNotFound if it is absent.
func (s *Store) Erase(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tree.Contains(id) {
		return ErrNotFound
	}
	if err := s.j.Append(journal.Record{Op: journal.OpErase, Key: id}); err != nil {
		return fmt.Errorf("docstore: append erase: %w", err)
	}
	s.tree.Erase(id)
	return nil
}

// Find returns a deep copy of the document with the given identifier, or
// ErrNotFound if it is absent.
func (s *Store) Find(id string) (value.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it := s.tree.Find(id)
	if !it.Valid() {
		return value.Value{}, ErrNotFound
	}
	return it.Value().Clone(), nil
}

// Keys returns every identifier in ascending order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Keys()
}

// Image returns a single object whose fields are id -> document for
// every entry in the store.
func (s *Store) Image() value.Value {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := make(map[string]value.Value, s.tree.Size())
	for it := s.tree.Begin(); it.Valid(); it = it.Next() {
		fields[it.Key()] = it.Value()
	}
	return value.Object(fields)
}

// rolloverLocked performs compaction if due. The caller must hold s.mu.
func (s *Store) rolloverLocked() error {
	if s.tree.Size() == 0 {
		return nil
	}
	journalSize, err := journal.Size(s.journalPath)
	if err != nil {
		return fmt.Errorf("docstore: stat journal: %w", err)
	}
	if journalSize == 0 {
		return nil
	}
	baseSize, err := snapshot.Size(s.basePath)
	if err != nil {
		return fmt.Errorf("docstore: stat base: %w", err)
	}
	if journalSize < baseSize {
		return nil
	}

	s.logger.Info().Str("base", s.basePath).Int("entries", s.tree.Size()).Msg("rolling journal over into snapshot")

	tmp, err := snapshot.CreateTemp(s.snapshotPath)
	if err != nil {
		return fmt.Errorf("docstore: create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	ok := false
	defer func() {
		tmp.Close()
		if !ok {
			os.Remove(tmpName)
		}
	}()

	count := s.tree.Size()
	writeErr := snapshot.Write(tmp, count, func(yield func(snapshot.Entry) bool) {
		for it := s.tree.Begin(); it.Valid(); it = it.Next() {
			if !yield(snapshot.Entry{Key: it.Key(), Value: it.Value()}) {
				return
			}
		}
	})
	if writeErr != nil {
		return fmt.Errorf("docstore: write snapshot: %w", writeErr)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("docstore: sync snapshot: %w", err)
	}
	tmp.Close()
	ok = true

	if err := snapshot.Promote(tmpName, s.basePath); err != nil {
		return err
	}
	if err := os.Remove(s.journalPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("docstore: unlink journal: %w", err)
	}
	return nil
}
