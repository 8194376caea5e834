package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jkaninda/api-vault-mcp/internal/process"
)

// DefaultTimeout bounds every store invocation.
const DefaultTimeout = 10 * time.Second

// Config configures an ExecClient.
type Config struct {
	// Binary is an explicit executable path. Empty = discover.
	Binary string

	// PasswordEnv names the environment variable holding the unlock
	// secret. Empty = API_VAULT_PASSWORD.
	PasswordEnv string

	// Timeout per invocation. Zero = 10s.
	Timeout time.Duration

	// Locator overrides discovery (tests). Binary still takes precedence.
	Locator *Locator
}

// ExecClient talks to the api-vault executable, one subprocess per call.
type ExecClient struct {
	binary      string
	passwordEnv string
	password    string
	timeout     time.Duration
	runner      process.Runner
	logger      *slog.Logger
}

var _ Client = (*ExecClient)(nil)

// New resolves the executable and checks the unlock secret. Both checks
// run before anything is executed; either failing returns *ConfigError.
func New(cfg Config, runner process.Runner, logger *slog.Logger) (*ExecClient, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	passwordEnv := cfg.PasswordEnv
	if passwordEnv == "" {
		passwordEnv = DefaultPasswordEnv
	}

	locator := Locator{}
	if cfg.Locator != nil {
		locator = *cfg.Locator
	}
	if cfg.Binary != "" {
		locator.Explicit = cfg.Binary
	}
	binary, err := locator.Locate()
	if err != nil {
		return nil, err
	}

	password := os.Getenv(passwordEnv)
	if password == "" {
		return nil, &ConfigError{Reason: passwordEnv + " not set"}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if runner == nil {
		runner = process.NewExecRunner(timeout, logger)
	}

	logger.Info("api-vault store configured",
		slog.String("binary", binary),
		slog.String("password_env", passwordEnv),
		slog.Duration("timeout", timeout),
	)

	return &ExecClient{
		binary:      binary,
		passwordEnv: passwordEnv,
		password:    password,
		timeout:     timeout,
		runner:      runner,
		logger:      logger,
	}, nil
}

// Binary returns the resolved executable path.
func (c *ExecClient) Binary() string { return c.binary }

// Get runs `api-vault get <name>` and returns stdout verbatim.
func (c *ExecClient) Get(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", &Error{Args: []string{"get"}, Message: "credential name is required"}
	}
	return c.run(ctx, "get", name)
}

// List runs `api-vault list` and parses the table it prints.
func (c *ExecClient) List(ctx context.Context) ([]CredentialSummary, error) {
	raw, err := c.run(ctx, "list")
	if err != nil {
		return nil, err
	}
	rows, skipped := parseList(raw)
	if skipped > 0 {
		c.logger.DebugContext(ctx, "skipped malformed list rows", slog.Int("skipped", skipped))
	}
	return rows, nil
}

// Ping reports whether the resolved executable is still present.
func (c *ExecClient) Ping(_ context.Context) error {
	if !isRegularFile(c.binary) {
		return fmt.Errorf("%s binary missing at %s", BinaryName, c.binary)
	}
	return nil
}

func (c *ExecClient) run(ctx context.Context, args ...string) (string, error) {
	res, err := c.runner.Run(ctx, process.Request{
		Path:    c.binary,
		Args:    args,
		Env:     map[string]string{c.passwordEnv: c.password},
		Timeout: c.timeout,
	})
	if err != nil {
		if errors.Is(err, process.ErrTimeout) {
			return "", timeoutError(args)
		}
		if errors.Is(err, process.ErrOutputTooLarge) {
			c.logger.WarnContext(ctx, "api-vault output too large", slog.String("command", args[0]))
			return "", &Error{
				Args:     args,
				Message:  fmt.Sprintf("%s output exceeds 1 MiB: %v", BinaryName, args),
				ExitCode: -1,
			}
		}
		return "", &Error{Args: args, Message: err.Error(), ExitCode: -1}
	}

	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("%s exited with code %d", BinaryName, res.ExitCode)
		}
		c.logger.WarnContext(ctx, "api-vault command failed",
			slog.String("command", args[0]),
			slog.Int("exit_code", res.ExitCode),
		)
		return "", &Error{Args: args, Message: msg, ExitCode: res.ExitCode}
	}

	return res.Stdout, nil
}
