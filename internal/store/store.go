// Package store is the client for the external api-vault executable.
// The executable holds the encrypted secrets and is the real trust boundary;
// this package only builds arguments, injects the unlock secret, enforces a
// timeout and parses the text the executable prints.
package store

import (
	"context"
	"fmt"
)

const (
	// BinaryName is the executable looked up on PATH.
	BinaryName = "api-vault"

	// DefaultPasswordEnv names the variable carrying the unlock secret.
	DefaultPasswordEnv = "API_VAULT_PASSWORD"
)

// CredentialSummary is one row of the store listing. It never carries
// secret material.
type CredentialSummary struct {
	Name    string `json:"name"`
	Kind    string `json:"type"`
	Created string `json:"created"`
}

// Client retrieves secrets and listings from a secret store.
// Implementations must be safe for concurrent use.
type Client interface {
	// Get returns the secret value for name exactly as the store printed it.
	Get(ctx context.Context, name string) (string, error)

	// List returns metadata for every stored credential.
	List(ctx context.Context) ([]CredentialSummary, error)
}

// ConfigError reports a store that cannot be used at all: missing unlock
// secret or undiscoverable executable.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return e.Reason }

// Error is a failed store invocation. Message is the text surfaced to
// callers: the executable's stderr, or a generic exit/timeout message.
type Error struct {
	Args     []string
	Message  string
	ExitCode int
	Timeout  bool
}

func (e *Error) Error() string { return e.Message }

func timeoutError(args []string) *Error {
	return &Error{
		Args:    args,
		Message: fmt.Sprintf("%s command timed out: %v", BinaryName, args),
		Timeout: true,
	}
}
