package journal

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jhegemann/muonbase/internal/value"
)

func newTempJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.bin")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j, path
}

func TestAppendAndReplay(t *testing.T) {
	j, path := newTempJournal(t)

	if err := j.Append(Record{Op: OpPut, Key: "foo", Value: value.String("bar")}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := j.Append(Record{Op: OpErase, Key: "foo"}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	var got []Record
	err := Replay(path, func(r Record) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Op != OpPut || got[0].Key != "foo" {
		t.Fatalf("unexpected first record: %+v", got[0])
	}
	s, err := got[0].Value.AsString()
	if err != nil || s != "bar" {
		t.Fatalf("unexpected first record value: %v (%v)", s, err)
	}
	if got[1].Op != OpErase || got[1].Key != "foo" {
		t.Fatalf("unexpected second record: %+v", got[1])
	}
}

func TestReplayMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "absent.bin")
	count := 0
	err := Replay(path, func(Record) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error replaying missing journal, got %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no records, got %d", count)
	}
}

func TestReplayEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatal(err)
	}
	count := 0
	err := Replay(path, func(Record) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no records, got %d", count)
	}
}

func TestReplayStopsAtCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.bin")

	j, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Append(Record{Op: OpPut, Key: "a", Value: value.Int(1)}); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte{0xFF, 0x01, 0x02}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	count := 0
	err = Replay(path, func(Record) error {
		count++
		return nil
	})
	if err == nil {
		t.Fatalf("expected corruption error")
	}
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 good record replayed before corruption, got %d", count)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	j, _ := newTempJournal(t)
	if err := j.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}

func TestAppendAfterCloseFails(t *testing.T) {
	j, _ := newTempJournal(t)
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
	err := j.Append(Record{Op: OpPut, Key: "k", Value: value.Int(1)})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestConcurrentAppends(t *testing.T) {
	j, path := newTempJournal(t)
	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = j.Append(Record{Op: OpPut, Key: "k", Value: value.Int(int64(i))})
		}(i)
	}
	wg.Wait()
	if err := j.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	count := 0
	err := Replay(path, func(Record) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if count != writers {
		t.Fatalf("expected %d records, got %d", writers, count)
	}
}

func TestSizeReportsZeroForMissingFile(t *testing.T) {
	dir := t.TempDir()
	size, err := Size(filepath.Join(dir, "absent.bin"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != 0 {
		t.Fatalf("expected size 0, got %d", size)
	}
}

func TestSizeGrowsWithAppends(t *testing.T) {
	j, path := newTempJournal(t)
	before, err := Size(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Append(Record{Op: OpPut, Key: "k", Value: value.String("value")}); err != nil {
		t.Fatal(err)
	}
	after, err := Size(path)
	if err != nil {
		t.Fatal(err)
	}
	if after <= before {
		t.Fatalf("expected size to grow, before=%d after=%d", before, after)
	}
}
