package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/api-vault-mcp/internal/accesslog"
	"github.com/jkaninda/api-vault-mcp/internal/config"
	"github.com/jkaninda/api-vault-mcp/internal/observability"
	"github.com/jkaninda/api-vault-mcp/internal/process"
	"github.com/jkaninda/api-vault-mcp/internal/store"
)

// SharedComponents holds the subsystems every command builds from config.
// Built by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config    *config.Config
	Logger    *slog.Logger
	AccessLog *accesslog.Log
	Store     *store.ExecClient // nil when built without the store.
	Obs       *observability.Observability

	cleanups []func()
}

// Cleanup releases resources in reverse order of acquisition.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// loadConfig resolves the config path (API_VAULT_MCP_CONFIG, then --config,
// then the default) and loads it. An empty variable counts as unset. A missing
// default file yields defaults.
func loadConfig() (*config.Config, string, error) {
	path := goutils.Env("API_VAULT_MCP_CONFIG", "")
	if path == "" {
		path = configPath
	}
	if path == "" {
		path = config.DefaultConfigPath()
		cfg, err := config.LoadOrDefault(path)
		return cfg, path, err
	}
	cfg, err := config.Load(path)
	return cfg, path, err
}

// newLogger writes JSON to stderr. Stdout carries MCP stdio frames.
func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(level),
	}))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// initShared builds the observability stack and the access log, and when
// withStore is set the store client. Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger, withStore bool) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Store client, resolved first so spans can name the binary.
	var client *store.ExecClient
	if withStore {
		runner := process.NewExecRunner(cfg.Store.Timeout(), logger)
		var err error
		client, err = store.New(store.Config{
			Binary:      cfg.ResolvedStoreBinary(),
			PasswordEnv: cfg.Store.PasswordEnv,
			Timeout:     cfg.Store.Timeout(),
		}, runner, logger)
		if err != nil {
			return nil, err
		}
		sc.Store = client
		logger.Debug("store client initialized", slog.String("binary", client.Binary()))
	}

	// Observability.
	info := observability.ServiceInfo{
		Version:   version,
		Transport: cfg.Server.TransportName(),
	}
	if client != nil {
		info.StoreBinary = client.Binary()
	}
	obs, err := observability.New(cfg.Observability, info, logger)
	if err != nil {
		return nil, err
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(ctx)
	})

	// Access log.
	backend, err := openBackend(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("opening access log: %w", err)
	}
	sc.AccessLog = accesslog.New(backend, logger)
	sc.addCleanup(func() { _ = sc.AccessLog.Close() })
	obs.Health.AddCheck("access_log", accessLogCheck(backend))

	if client != nil {
		obs.Health.AddCheck("store", client.Ping)
	}

	return sc, nil
}

// openBackend selects the access log backend from config.
func openBackend(cfg *config.Config, logger *slog.Logger) (accesslog.Backend, error) {
	switch driver := cfg.AccessLog.AccessLogDriver(); driver {
	case "sqlite":
		b, err := accesslog.OpenSQL(accesslog.SQLConfig{Driver: "sqlite", DSN: cfg.AccessLogPath()}, logger)
		if err != nil {
			return nil, err
		}
		logger.Debug("access log initialized", slog.String("driver", driver), slog.String("path", cfg.AccessLogPath()))
		return b, nil
	case "postgres":
		b, err := accesslog.OpenSQL(accesslog.SQLConfig{Driver: "postgres", DSN: cfg.AccessLog.DSN}, logger)
		if err != nil {
			return nil, err
		}
		logger.Debug("access log initialized", slog.String("driver", driver))
		return b, nil
	default:
		path := cfg.AccessLogPath()
		logger.Debug("access log initialized", slog.String("driver", "file"), slog.String("path", path))
		return accesslog.NewFileBackend(path), nil
	}
}

// accessLogCheck reports whether the access log can be reached: a database
// ping for SQL backends, a writable parent directory for the file backend.
func accessLogCheck(backend accesslog.Backend) func(ctx context.Context) error {
	switch b := backend.(type) {
	case *accesslog.SQLBackend:
		return b.Ping
	case *accesslog.FileBackend:
		return func(context.Context) error {
			dir := filepath.Dir(b.Path())
			info, err := os.Stat(dir)
			if os.IsNotExist(err) {
				// Created on first append.
				return nil
			}
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			return nil
		}
	default:
		return func(context.Context) error { return nil }
	}
}
