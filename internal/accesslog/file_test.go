package accesslog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFileBackend_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "approvals.json")
	b := NewFileBackend(path)

	if err := b.Append(context.Background(), Entry{Credential: "openai", Context: "p", AccessedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !fileExists(path) {
		t.Fatal("log file not created")
	}
}

func TestFileBackend_DocumentShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approvals.json")
	b := NewFileBackend(path)
	at := time.Date(2024, 1, 2, 3, 4, 5, 600, time.UTC)

	if err := b.Append(context.Background(), Entry{Credential: "openai", Context: "/src/app", AccessedAt: at}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  \"log\": [") {
		t.Errorf("document is not pretty-printed:\n%s", data)
	}

	var raw map[string][]map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	entries := raw["log"]
	if len(entries) != 1 {
		t.Fatalf("log has %d entries, want 1", len(entries))
	}
	want := map[string]string{
		"credential":  "openai",
		"project":     "/src/app",
		"accessed_at": "2024-01-02T03:04:05.0000006Z",
	}
	for k, v := range want {
		if entries[0][k] != v {
			t.Errorf("%s = %q, want %q", k, entries[0][k], v)
		}
	}
}

func TestFileBackend_ReadsExistingDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approvals.json")
	doc := `{"log": [{"credential": "gh", "project": "/x", "accessed_at": "2024-01-01T00:00:00.123456+00:00"}]}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	entries, err := NewFileBackend(path).Entries(context.Background())
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Credential != "gh" || entries[0].Context != "/x" {
		t.Errorf("Entries = %+v", entries)
	}
}

func TestFileBackend_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approvals.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileBackend(path).Entries(context.Background())
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Op != "read" {
		t.Fatalf("err = %v, want read *PersistenceError", err)
	}

	err = NewFileBackend(path).Append(context.Background(), Entry{Credential: "x"})
	if !errors.As(err, &perr) {
		t.Fatalf("Append err = %v, want *PersistenceError", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "{not json" {
		t.Error("corrupt file was overwritten")
	}
}

func TestFileBackend_FailedWriteLeavesFileUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "approvals.json")
	b := NewFileBackend(path)
	ctx := context.Background()

	if err := b.Append(ctx, Entry{Credential: "first", Context: "p", AccessedAt: time.Now().UTC()}); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("serialization exploded")
	b.encode = func(w io.Writer, _ *document) error {
		// Emit a partial document before failing.
		if _, err := w.Write([]byte(`{"log": [{"credential": "sec`)); err != nil {
			return err
		}
		return boom
	}

	err = b.Append(ctx, Entry{Credential: "second", Context: "p", AccessedAt: time.Now().UTC()})
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Op != "write" {
		t.Fatalf("err = %v, want write *PersistenceError", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want it to wrap the encoder failure", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Errorf("canonical file changed after failed write:\nbefore: %s\nafter:  %s", before, after)
	}
	if names := dirNames(t, dir); len(names) != 1 || names[0] != "approvals.json" {
		t.Errorf("directory contains %v, want only approvals.json", names)
	}
}

func TestFileBackend_FailedFirstWriteCreatesNothing(t *testing.T) {
	dir := t.TempDir()
	b := NewFileBackend(filepath.Join(dir, "approvals.json"))
	b.encode = func(io.Writer, *document) error { return errors.New("nope") }

	if err := b.Append(context.Background(), Entry{Credential: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if names := dirNames(t, dir); len(names) != 0 {
		t.Errorf("directory contains %v, want empty", names)
	}
}

func TestFileBackend_Replaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approvals.json")
	b := NewFileBackend(path)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Append(ctx, Entry{Credential: "c", AccessedAt: time.Now().UTC()}); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := b.Entries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries, want 3", len(entries))
	}
	if names := dirNames(t, filepath.Dir(path)); len(names) != 1 {
		t.Errorf("stray files left behind: %v", names)
	}
}
