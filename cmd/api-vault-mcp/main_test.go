package main

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/api-vault-mcp/internal/accesslog"
	"github.com/jkaninda/api-vault-mcp/internal/config"
	"github.com/jkaninda/api-vault-mcp/internal/store"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"info":  slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLastN(t *testing.T) {
	entries := []accesslog.Entry{{Credential: "a"}, {Credential: "b"}, {Credential: "c"}}

	if got := lastN(entries, 2); len(got) != 2 || got[0].Credential != "b" || got[1].Credential != "c" {
		t.Errorf("lastN(2) = %+v", got)
	}
	if got := lastN(entries, 0); len(got) != 3 {
		t.Errorf("lastN(0) = %d entries, want all", len(got))
	}
	if got := lastN(entries, 10); len(got) != 3 {
		t.Errorf("lastN(10) = %d entries, want 3", len(got))
	}
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, "openai", nil)
	if got := buf.String(); got != "No accesses recorded for \"openai\"\n" {
		t.Errorf("empty output = %q", got)
	}

	buf.Reset()
	printHistory(&buf, "", []accesslog.Entry{
		{Credential: "openai", Context: "/work/app", AccessedAt: time.Now()},
	})
	if got := buf.String(); !strings.Contains(got, "openai") || !strings.Contains(got, "/work/app") {
		t.Errorf("output = %q", got)
	}
}

func TestPrintCredentials(t *testing.T) {
	var buf bytes.Buffer
	err := printCredentials(&buf, []store.CredentialSummary{
		{Name: "openai", Kind: "api_key", Created: "2024-01-01"},
		{Name: "stripe-live", Kind: "secret", Created: "2024-02-03"},
	})
	if err != nil {
		t.Fatalf("printCredentials: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "NAME") || !strings.Contains(lines[0], "TYPE") {
		t.Errorf("header = %q", lines[0])
	}
	// Columns line up.
	if strings.Index(lines[1], "api_key") != strings.Index(lines[2], "secret") {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}
}

func TestLoadConfig_MissingDefaultYieldsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("API_VAULT_MCP_CONFIG", "")
	configPath = ""

	cfg, path, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !strings.HasSuffix(path, "mcp.yaml") {
		t.Errorf("path = %q", path)
	}
	if cfg.Server.TransportName() != "stdio" {
		t.Errorf("transport = %q, want stdio", cfg.Server.TransportName())
	}
}

func TestLoadConfig_ExplicitMissingFails(t *testing.T) {
	t.Setenv("API_VAULT_MCP_CONFIG", "")
	configPath = t.TempDir() + "/nope.yaml"
	defer func() { configPath = "" }()

	if _, _, err := loadConfig(); err == nil {
		t.Fatal("expected error for explicit missing config")
	}
}

func TestLoadConfig_EnvOverridesFlag(t *testing.T) {
	dir := t.TempDir()
	envPath := dir + "/env.yaml"
	if err := os.WriteFile(envPath, []byte("server:\n  transport: http\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("API_VAULT_MCP_CONFIG", envPath)
	configPath = dir + "/flag.yaml"
	defer func() { configPath = "" }()

	cfg, path, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if path != envPath {
		t.Errorf("path = %q, want %q", path, envPath)
	}
	if cfg.Server.TransportName() != "http" {
		t.Errorf("transport = %q, want http", cfg.Server.TransportName())
	}
}

func TestLoadConfig_EmptyEnvKeepsFlag(t *testing.T) {
	dir := t.TempDir()
	flagPath := dir + "/flag.yaml"
	if err := os.WriteFile(flagPath, []byte("server:\n  transport: http\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("API_VAULT_MCP_CONFIG", "")
	configPath = flagPath
	defer func() { configPath = "" }()

	_, path, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if path != flagPath {
		t.Errorf("path = %q, want the --config path %q", path, flagPath)
	}
}

func TestNewLimiter(t *testing.T) {
	if l := newLimiter(config.RateLimitConfig{}); l != nil {
		t.Error("zero config should mean no limiter")
	}
	l := newLimiter(config.RateLimitConfig{RequestsPerMinute: 1})
	if l == nil {
		t.Fatal("expected limiter")
	}
	if err := l.Allow("get_credential"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := l.Allow("get_credential"); err == nil {
		t.Error("expected second call to be limited")
	}
}

func TestApplyServeOverrides(t *testing.T) {
	tests := []struct {
		name      string
		transport string
		listen    string
		want      string
		wantErr   bool
	}{
		{"no flags", "", "", "stdio", false},
		{"http", "http", "127.0.0.1:9000", "http", false},
		{"unknown transport", "websocket", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			err := applyServeOverrides(cfg, tt.transport, tt.listen)
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), tt.transport) {
					t.Fatalf("err = %v, want rejection of %q", err, tt.transport)
				}
				return
			}
			if err != nil {
				t.Fatalf("applyServeOverrides: %v", err)
			}
			if got := cfg.Server.TransportName(); got != tt.want {
				t.Errorf("transport = %q, want %q", got, tt.want)
			}
			if tt.listen != "" && cfg.Server.ListenAddr != tt.listen {
				t.Errorf("listen = %q, want %q", cfg.Server.ListenAddr, tt.listen)
			}
		})
	}
}
