package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/jkaninda/api-vault-mcp/internal/accesslog"
	"github.com/jkaninda/api-vault-mcp/internal/store"
)

// AccessLog is the access log surface the credential tools need.
type AccessLog interface {
	Append(ctx context.Context, credential, project string) error
	History(ctx context.Context, credential string) ([]accesslog.Entry, error)
}

// --- get_credential ---

// GetCredential returns a decrypted credential and records the access.
type GetCredential struct {
	store store.Client
	log   AccessLog
}

// NewGetCredential creates the get_credential tool.
func NewGetCredential(s store.Client, l AccessLog) *GetCredential {
	return &GetCredential{store: s, log: l}
}

func (t *GetCredential) Name() string { return "get_credential" }

func (t *GetCredential) Description() string {
	return "Get a decrypted API credential by name. Every successful access is recorded in the access log."
}

func (t *GetCredential) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]string{
				"type":        "string",
				"description": "Credential name as stored in api-vault",
			},
			"project": map[string]string{
				"type":        "string",
				"description": "Project the credential is used for; defaults to the server working directory",
			},
		},
		"required": []string{"name"},
	}
}

func (t *GetCredential) Validate(params map[string]any) error {
	name, err := stringParam(params, "name")
	if err != nil {
		return err
	}
	if name == "" {
		return errors.New("name is required")
	}
	_, err = stringParam(params, "project")
	return err
}

func (t *GetCredential) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	name, _ := stringParam(params, "name")
	project, _ := stringParam(params, "project")

	value, err := t.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	// The value is withheld when the access cannot be recorded.
	if err := t.log.Append(ctx, name, project); err != nil {
		return nil, err
	}
	return &Result{Output: value}, nil
}

// --- list_credentials ---

// ListCredentials returns the metadata of every stored credential.
type ListCredentials struct {
	store store.Client
}

// NewListCredentials creates the list_credentials tool.
func NewListCredentials(s store.Client) *ListCredentials {
	return &ListCredentials{store: s}
}

func (t *ListCredentials) Name() string { return "list_credentials" }

func (t *ListCredentials) Description() string {
	return "List stored API credentials (name, type, created). Values are not returned."
}

func (t *ListCredentials) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *ListCredentials) Validate(map[string]any) error { return nil }

func (t *ListCredentials) Execute(ctx context.Context, _ map[string]any) (*Result, error) {
	items, err := t.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResult(items)
}

// --- credential_history ---

// CredentialHistory returns recorded credential accesses.
type CredentialHistory struct {
	log AccessLog
}

// NewCredentialHistory creates the credential_history tool.
func NewCredentialHistory(l AccessLog) *CredentialHistory {
	return &CredentialHistory{log: l}
}

func (t *CredentialHistory) Name() string { return "credential_history" }

func (t *CredentialHistory) Description() string {
	return "Show recorded credential accesses, oldest first. Filters by credential name when given."
}

func (t *CredentialHistory) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]string{
				"type":        "string",
				"description": "Only show accesses of this credential",
			},
		},
	}
}

func (t *CredentialHistory) Validate(params map[string]any) error {
	_, err := stringParam(params, "name")
	return err
}

func (t *CredentialHistory) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	name, _ := stringParam(params, "name")
	entries, err := t.log.History(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("reading access log: %w", err)
	}
	return jsonResult(entries)
}

// RegisterCredentialTools registers the credential tools on reg.
func RegisterCredentialTools(reg *Registry, s store.Client, l AccessLog) error {
	for _, t := range []Tool{
		NewGetCredential(s, l),
		NewListCredentials(s),
		NewCredentialHistory(l),
	} {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}
