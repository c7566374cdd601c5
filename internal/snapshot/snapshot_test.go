package snapshot

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jhegemann/muonbase/internal/value"
)

func TestWriteLoadRoundTrip(t *testing.T) {
	entries := []Entry{
		{Key: "a", Value: value.Int(1)},
		{Key: "b", Value: value.String("two")},
		{Key: "c", Value: value.Object(map[string]value.Value{"nested": value.Bool(true)})},
	}

	var buf bytes.Buffer
	i := 0
	err := Write(&buf, len(entries), func(yield func(Entry) bool) {
		for i < len(entries) {
			if !yield(entries[i]) {
				return
			}
			i++
		}
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var got []Entry
	err = Load(&buf, func(e Entry) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("expected %d entries, got %d", len(entries), len(got))
	}
	for i := range entries {
		if got[i].Key != entries[i].Key || !value.Equal(got[i].Value, entries[i].Value) {
			t.Fatalf("mismatch at %d: got %+v want %+v", i, got[i], entries[i])
		}
	}
}

func TestWriteRejectsCountMismatch(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, 2, func(yield func(Entry) bool) {
		yield(Entry{Key: "only-one", Value: value.Int(1)})
	})
	if err == nil {
		t.Fatalf("expected error for declared/actual count mismatch")
	}
}

func TestLoadEmptySnapshot(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, 0, func(yield func(Entry) bool) {}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	count := 0
	err := Load(&buf, func(Entry) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 entries, got %d", count)
	}
}

func TestPromoteIsAtomicRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.bin")

	tmp, err := CreateTemp(path)
	if err != nil {
		t.Fatalf("CreateTemp failed: %v", err)
	}
	if _, err := tmp.WriteString("data"); err != nil {
		t.Fatal(err)
	}
	tmp.Close()

	if err := Promote(tmp.Name(), path); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected promoted file to exist: %v", err)
	}
	if string(data) != "data" {
		t.Fatalf("unexpected promoted content: %q", data)
	}
	if _, err := os.Stat(tmp.Name()); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be gone after rename")
	}
}

func TestSizeMissingFileIsZero(t *testing.T) {
	dir := t.TempDir()
	size, err := Size(filepath.Join(dir, "absent.bin"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != 0 {
		t.Fatalf("expected size 0, got %d", size)
	}
}
