package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/api-vault-mcp/internal/process"
)

// fakeRunner records requests and replays a canned result.
type fakeRunner struct {
	calls  []process.Request
	result *process.Result
	err    error
}

func (f *fakeRunner) Run(_ context.Context, req process.Request) (*process.Result, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeBinary creates an executable api-vault stand-in and returns its path.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), BinaryName)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("writing fake binary: %v", err)
	}
	return path
}

func newTestClient(t *testing.T, runner process.Runner) *ExecClient {
	t.Helper()
	t.Setenv(DefaultPasswordEnv, "hunter2")
	c, err := New(Config{Binary: fakeBinary(t, "exit 0")}, runner, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_EmptyPassword(t *testing.T) {
	t.Setenv(DefaultPasswordEnv, "")
	runner := &fakeRunner{}

	_, err := New(Config{Binary: fakeBinary(t, "exit 0")}, runner, nil)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
	if cfgErr.Reason != "API_VAULT_PASSWORD not set" {
		t.Errorf("Reason = %q", cfgErr.Reason)
	}
	if len(runner.calls) != 0 {
		t.Errorf("runner invoked %d times during construction", len(runner.calls))
	}
}

func TestNew_UnsetPassword(t *testing.T) {
	t.Setenv(DefaultPasswordEnv, "x")
	os.Unsetenv(DefaultPasswordEnv)

	_, err := New(Config{Binary: fakeBinary(t, "exit 0")}, &fakeRunner{}, nil)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
}

func TestNew_CustomPasswordEnv(t *testing.T) {
	t.Setenv("VAULT_UNLOCK", "pw")
	t.Setenv(DefaultPasswordEnv, "")

	c, err := New(Config{Binary: fakeBinary(t, "exit 0"), PasswordEnv: "VAULT_UNLOCK"}, &fakeRunner{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.passwordEnv != "VAULT_UNLOCK" {
		t.Errorf("passwordEnv = %q", c.passwordEnv)
	}
}

func TestNew_BinaryNotFound(t *testing.T) {
	t.Setenv(DefaultPasswordEnv, "pw")
	_, err := New(Config{Locator: &Locator{SelfDir: t.TempDir(), LookPath: noPath}}, &fakeRunner{}, nil)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
}

func TestGet_ReturnsStdoutVerbatim(t *testing.T) {
	runner := &fakeRunner{result: &process.Result{Stdout: "sk-test-123\n"}}
	c := newTestClient(t, runner)

	got, err := c.Get(context.Background(), "openai")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "sk-test-123\n" {
		t.Errorf("Get() = %q, want stdout verbatim", got)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("runner calls = %d, want 1", len(runner.calls))
	}
	req := runner.calls[0]
	if strings.Join(req.Args, " ") != "get openai" {
		t.Errorf("Args = %v, want [get openai]", req.Args)
	}
	if req.Env[DefaultPasswordEnv] != "hunter2" {
		t.Errorf("unlock secret not injected: %v", req.Env)
	}
	if req.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %s, want %s", req.Timeout, DefaultTimeout)
	}
}

func TestGet_NonzeroExitUsesStderr(t *testing.T) {
	runner := &fakeRunner{result: &process.Result{Stderr: "wrong password\n", ExitCode: 1}}
	c := newTestClient(t, runner)

	_, err := c.Get(context.Background(), "openai")
	var storeErr *Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if storeErr.Error() != "wrong password" {
		t.Errorf("message = %q, want %q", storeErr.Error(), "wrong password")
	}
	if storeErr.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", storeErr.ExitCode)
	}
}

func TestGet_NonzeroExitWithoutStderr(t *testing.T) {
	runner := &fakeRunner{result: &process.Result{ExitCode: 2}}
	c := newTestClient(t, runner)

	_, err := c.Get(context.Background(), "openai")
	if err == nil || err.Error() != "api-vault exited with code 2" {
		t.Errorf("err = %v, want generic exit message", err)
	}
}

func TestGet_Timeout(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("%w after 10s", process.ErrTimeout)}
	c := newTestClient(t, runner)

	_, err := c.Get(context.Background(), "openai")
	var storeErr *Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if !storeErr.Timeout {
		t.Error("Timeout flag not set")
	}
	if !strings.Contains(storeErr.Error(), "timed out") || !strings.Contains(storeErr.Error(), "get") {
		t.Errorf("message = %q, want it to name the timed-out command", storeErr.Error())
	}
}

func TestGet_OutputTooLarge(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("%w of 1048576 bytes", process.ErrOutputTooLarge)}
	c := newTestClient(t, runner)

	value, err := c.Get(context.Background(), "openai")
	var storeErr *Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if value != "" {
		t.Errorf("value = %d bytes, want none", len(value))
	}
	if storeErr.Timeout {
		t.Error("Timeout flag set")
	}
	if !strings.Contains(storeErr.Error(), "exceeds") || !strings.Contains(storeErr.Error(), "get") {
		t.Errorf("message = %q, want it to name the oversized command", storeErr.Error())
	}
}

func TestGet_EmptyName(t *testing.T) {
	runner := &fakeRunner{}
	c := newTestClient(t, runner)

	if _, err := c.Get(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty name")
	}
	if len(runner.calls) != 0 {
		t.Error("runner should not be invoked for an empty name")
	}
}

func TestList_Parses(t *testing.T) {
	runner := &fakeRunner{result: &process.Result{
		Stdout: "NAME  TYPE  CREATED\nfoo  api-key  2024-01-01\nbar  oauth  2024-02-02\n",
	}}
	c := newTestClient(t, runner)

	got, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].Name != "foo" || got[1].Kind != "oauth" {
		t.Errorf("List() = %+v", got)
	}
	if strings.Join(runner.calls[0].Args, " ") != "list" {
		t.Errorf("Args = %v, want [list]", runner.calls[0].Args)
	}
}

func TestList_StoreFailure(t *testing.T) {
	runner := &fakeRunner{result: &process.Result{Stderr: "vault corrupted", ExitCode: 1}}
	c := newTestClient(t, runner)

	if _, err := c.List(context.Background()); err == nil || err.Error() != "vault corrupted" {
		t.Errorf("err = %v, want %q", err, "vault corrupted")
	}
}

// --- against a real subprocess ---

func TestExecClient_RealBinary(t *testing.T) {
	t.Setenv(DefaultPasswordEnv, "hunter2")
	bin := fakeBinary(t, `
if [ "$API_VAULT_PASSWORD" != "hunter2" ]; then echo "wrong password" >&2; exit 1; fi
case "$1" in
  get) printf 'secret-for-%s' "$2" ;;
  list) printf 'NAME     TYPE     CREATED\nopenai   openai   2024-01-01\n' ;;
  *) echo "unknown command" >&2; exit 2 ;;
esac`)

	c, err := New(Config{Binary: bin}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	secret, err := c.Get(context.Background(), "openai")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if secret != "secret-for-openai" {
		t.Errorf("Get() = %q", secret)
	}

	list, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Name != "openai" {
		t.Errorf("List() = %+v", list)
	}

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestExecClient_RealBinaryWrongPassword(t *testing.T) {
	t.Setenv(DefaultPasswordEnv, "nope")
	bin := fakeBinary(t, `echo "wrong password" >&2; exit 1`)

	c, err := New(Config{Binary: bin}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Get(context.Background(), "openai")
	if err == nil || err.Error() != "wrong password" {
		t.Errorf("err = %v, want %q", err, "wrong password")
	}
}

func TestExecClient_RealBinaryHang(t *testing.T) {
	t.Setenv(DefaultPasswordEnv, "pw")
	bin := fakeBinary(t, `sleep 30`)

	c, err := New(Config{Binary: bin, Timeout: 300 * time.Millisecond}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	_, err = c.Get(context.Background(), "openai")
	var storeErr *Error
	if !errors.As(err, &storeErr) || !storeErr.Timeout {
		t.Fatalf("err = %v, want timeout *Error", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Get took %s, the caller must not hang", elapsed)
	}
}

func TestExecClient_RealBinaryOversizedValue(t *testing.T) {
	t.Setenv(DefaultPasswordEnv, "pw")
	bin := fakeBinary(t, `head -c 1100000 /dev/zero | tr '\0' 'x'`)

	c, err := New(Config{Binary: bin}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	value, err := c.Get(context.Background(), "openai")
	var storeErr *Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("err = %v (value %d bytes), want *Error", err, len(value))
	}
	if value != "" {
		t.Errorf("truncated value returned: %d bytes", len(value))
	}
}
