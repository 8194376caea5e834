package accesslog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// document is the on-disk shape: {"log": [...]}.
type document struct {
	Log []Entry `json:"log"`
}

// FileBackend stores the log as a single pretty-printed JSON document.
//
// Every append rewrites the whole document into a temp file in the same
// directory and renames it over the canonical path. A failed write removes
// the temp file and leaves the canonical file untouched. Two processes
// appending at once race: the last rename wins.
type FileBackend struct {
	path   string
	encode func(w io.Writer, doc *document) error
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend returns a backend for the document at path. Nothing is
// touched on disk until the first append.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path, encode: encodeDocument}
}

// Path returns the canonical log file path.
func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Entries(_ context.Context) ([]Entry, error) {
	doc, err := b.read()
	if err != nil {
		return nil, err
	}
	return doc.Log, nil
}

func (b *FileBackend) Append(_ context.Context, e Entry) error {
	doc, err := b.read()
	if err != nil {
		return err
	}
	doc.Log = append(doc.Log, e)
	return b.write(doc)
}

func (b *FileBackend) Close() error { return nil }

// read loads the document. A missing file is an empty log.
func (b *FileBackend) read() (*document, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &document{Log: []Entry{}}, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "read", Path: b.path, Err: err}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &PersistenceError{Op: "read", Path: b.path, Err: fmt.Errorf("decoding: %w", err)}
	}
	if doc.Log == nil {
		doc.Log = []Entry{}
	}
	return &doc, nil
}

// write streams the encoded document into atomic.WriteFile, which owns the
// temp-file-then-rename step and the temp cleanup on failure.
func (b *FileBackend) write(doc *document) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return &PersistenceError{Op: "write", Path: b.path, Err: fmt.Errorf("creating %s: %w", dir, err)}
	}

	pr, pw := io.Pipe()
	encodeErr := make(chan error, 1)
	go func() {
		err := b.encode(pw, doc)
		_ = pw.CloseWithError(err)
		encodeErr <- err
	}()

	writeErr := atomic.WriteFile(b.path, pr)
	// Unblock the encoder if WriteFile gave up before draining the pipe.
	_ = pr.CloseWithError(io.ErrClosedPipe)
	encErr := <-encodeErr

	switch {
	case encErr != nil && !errors.Is(encErr, io.ErrClosedPipe):
		return &PersistenceError{Op: "write", Path: b.path, Err: fmt.Errorf("encoding: %w", encErr)}
	case writeErr != nil:
		return &PersistenceError{Op: "write", Path: b.path, Err: writeErr}
	}
	return nil
}

func encodeDocument(w io.Writer, doc *document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
