package policy_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/justapithecus/chunkwire/policy"
	"github.com/justapithecus/chunkwire/types"
)

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := policy.NewWriterSink(&buf)

	msgs := []*types.Message{{ID: 1, Data: []byte("hello ")}, {ID: 2, Data: []byte("world")}}
	if err := sink.WriteMessages(t.Context(), msgs); err != nil {
		t.Fatalf("WriteMessages failed: %v", err)
	}
	if buf.String() != "hello world" {
		t.Errorf("wrote %q, want %q", buf.String(), "hello world")
	}
}

func TestDirSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink, err := policy.NewDirSink(dir)
	if err != nil {
		t.Fatalf("NewDirSink failed: %v", err)
	}

	msgs := []*types.Message{{ID: 0xab, Data: []byte("one")}, {ID: 0xcd, Data: []byte("two")}}
	if err := sink.WriteMessages(t.Context(), msgs); err != nil {
		t.Fatalf("WriteMessages failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d files, want 2", len(entries))
	}
	if entries[0].Name() != "000001-00000000000000ab.bin" {
		t.Errorf("first file = %q", entries[0].Name())
	}
	got, err := os.ReadFile(filepath.Join(dir, entries[1].Name()))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "two" {
		t.Errorf("second file = %q, want %q", got, "two")
	}
}
