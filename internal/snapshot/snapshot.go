// Package snapshot implements the document store's on-disk compaction
// format: a size-prefixed list of (key, value) records that captures the
// entire live data set at a point in time, replacing the journal as the
// durable baseline once written.
package snapshot

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jhegemann/muonbase/internal/value"
)

// Entry is one persisted (key, value) pair.
type Entry struct {
	Key   string
	Value value.Value
}

// Streamer pushes entries one at a time to yield, stopping early if
// yield returns false. Push-based iteration keeps Write from having to
// buffer the whole data set, and keeps it agnostic to whatever backs the
// live index (it only needs a sorted-or-unsorted walk, not a reference
// to the index itself).
type Streamer func(yield func(Entry) bool)

// Write serializes count entries produced by stream as
// {u64 count}{(key,value)}*count. count must match exactly how many
// entries stream yields; a mismatch is a programmer error in the caller,
// not a recoverable condition, since the written count prefix would
// otherwise lie about the file's contents.
func Write(w io.Writer, count int, stream Streamer) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(count)); err != nil {
		return fmt.Errorf("snapshot: write count: %w", err)
	}
	written := 0
	var streamErr error
	stream(func(e Entry) bool {
		if written >= count {
			streamErr = fmt.Errorf("snapshot: stream yielded more than declared count %d", count)
			return false
		}
		if err := writeString(w, e.Key); err != nil {
			streamErr = fmt.Errorf("snapshot: write key: %w", err)
			return false
		}
		if err := value.Encode(w, e.Value); err != nil {
			streamErr = fmt.Errorf("snapshot: write value: %w", err)
			return false
		}
		written++
		return true
	})
	if streamErr != nil {
		return streamErr
	}
	if written != count {
		return fmt.Errorf("snapshot: stream yielded %d entries, declared count was %d", written, count)
	}
	return nil
}

// Load reads a file written by Write and invokes set once per entry, in
// the order they were written. It reports an error if the file ends
// before the declared count of entries has been read — a short snapshot
// is corrupt, not a partial success.
func Load(r io.Reader, set func(Entry) error) error {
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("snapshot: read count: %w", err)
	}
	for i := uint64(0); i < count; i++ {
		key, err := readString(r)
		if err != nil {
			return fmt.Errorf("snapshot: read key %d/%d: %w", i, count, err)
		}
		v, err := value.Decode(r)
		if err != nil {
			return fmt.Errorf("snapshot: read value %d/%d: %w", i, count, err)
		}
		if err := set(Entry{Key: key, Value: v}); err != nil {
			return fmt.Errorf("snapshot: apply entry %d/%d: %w", i, count, err)
		}
	}
	return nil
}

// CreateTemp opens a new temporary file in the same directory as path,
// so the later rename in Promote is guaranteed to stay on one filesystem
// and therefore be atomic.
func CreateTemp(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create directory %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "snapshot-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("snapshot: create temp file: %w", err)
	}
	return f, nil
}

// Promote atomically replaces path with the already-synced temp file at
// tempPath, the final step of a compaction rollover.
func Promote(tempPath, path string) error {
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("snapshot: promote %s to %s: %w", tempPath, path, err)
	}
	return nil
}

// Size reports the current on-disk size of the snapshot file in bytes.
// A missing file reports size 0, so a store without a base yet rolls
// over on any non-empty journal.
func Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("snapshot: stat %s: %w", path, err)
	}
	return info.Size(), nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
