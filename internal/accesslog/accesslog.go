// Package accesslog records every successful credential retrieval in an
// append-only log and answers history queries over it.
//
// Storage is pluggable. FileBackend keeps the whole log in one JSON document
// replaced by atomic rename; SQLBackend keeps it in a database table.
package accesslog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ErrEmptyCredential is returned by Append when no credential is named.
var ErrEmptyCredential = errors.New("credential name is required")

// Entry is one recorded access. Entries are never modified after append.
type Entry struct {
	Credential string    `json:"credential"`
	Context    string    `json:"project"`
	AccessedAt time.Time `json:"accessed_at"`
}

// Backend persists entries. Implementations own their durability story;
// Log serialises calls from a single process.
type Backend interface {
	// Append durably adds e after all existing entries.
	Append(ctx context.Context, e Entry) error

	// Entries returns every entry in insertion order. Never nil.
	Entries(ctx context.Context) ([]Entry, error)

	// Close releases any handles held by the backend.
	Close() error
}

// PersistenceError reports a failed read or write of the log. When Op is
// "write", the previously persisted log is left as it was.
type PersistenceError struct {
	Op   string // "read" or "write"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("access log %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Log is the access log facade used by the tool layer.
type Log struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.Mutex
	now     func() time.Time
	workdir func() (string, error)
}

// New wraps a backend.
func New(backend Backend, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Log{
		backend: backend,
		logger:  logger,
		now:     time.Now,
		workdir: os.Getwd,
	}
}

// Append records an access to credential. An empty project defaults to the
// process working directory. The timestamp is taken here, in UTC.
func (l *Log) Append(ctx context.Context, credential, project string) error {
	if credential == "" {
		return ErrEmptyCredential
	}
	if project == "" {
		wd, err := l.workdir()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
		project = wd
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Credential: credential,
		Context:    project,
		AccessedAt: l.now().UTC(),
	}
	if err := l.backend.Append(ctx, entry); err != nil {
		l.logger.ErrorContext(ctx, "access log append failed",
			slog.String("credential", credential),
			slog.String("error", err.Error()),
		)
		return err
	}

	l.logger.InfoContext(ctx, "credential access recorded",
		slog.String("credential", credential),
		slog.String("project", project),
	)
	return nil
}

// History returns all entries, or only those for credential when it is
// non-empty, in insertion order. The result is never nil.
func (l *Log) History(ctx context.Context, credential string) ([]Entry, error) {
	entries, err := l.backend.Entries(ctx)
	if err != nil {
		return nil, err
	}
	if credential == "" {
		return entries, nil
	}

	filtered := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Credential == credential {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// Close closes the backend.
func (l *Log) Close() error { return l.backend.Close() }
