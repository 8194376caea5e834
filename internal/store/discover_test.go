package store

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func touchExecutable(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
}

func noPath(string) (string, error) { return "", exec.ErrNotFound }

func TestLocator_DeploymentParentWins(t *testing.T) {
	root := t.TempDir()
	selfDir := filepath.Join(root, "bin")
	parent := filepath.Join(root, BinaryName)
	sibling := filepath.Join(selfDir, BinaryName)
	touchExecutable(t, parent)
	touchExecutable(t, sibling)

	got, err := Locator{SelfDir: selfDir, LookPath: noPath}.Locate()
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if filepath.Clean(got) != parent {
		t.Errorf("Locate() = %q, want %q", got, parent)
	}
}

func TestLocator_DeploymentSibling(t *testing.T) {
	selfDir := filepath.Join(t.TempDir(), "bin")
	sibling := filepath.Join(selfDir, BinaryName)
	touchExecutable(t, sibling)

	got, err := Locator{SelfDir: selfDir, LookPath: noPath}.Locate()
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if got != sibling {
		t.Errorf("Locate() = %q, want %q", got, sibling)
	}
}

func TestLocator_DirectoryIsNotABinary(t *testing.T) {
	root := t.TempDir()
	selfDir := filepath.Join(root, "bin")
	if err := os.MkdirAll(filepath.Join(root, BinaryName), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(selfDir, 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := Locator{SelfDir: selfDir, LookPath: noPath}.Locate()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
}

func TestLocator_FallsBackToPath(t *testing.T) {
	var searched string
	got, err := Locator{
		SelfDir: t.TempDir(),
		LookPath: func(file string) (string, error) {
			searched = file
			return "/usr/local/bin/" + file, nil
		},
	}.Locate()
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if searched != BinaryName {
		t.Errorf("searched for %q, want %q", searched, BinaryName)
	}
	if got != "/usr/local/bin/api-vault" {
		t.Errorf("Locate() = %q", got)
	}
}

func TestLocator_NotFound(t *testing.T) {
	_, err := Locator{SelfDir: t.TempDir(), LookPath: noPath}.Locate()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
	if cfgErr.Reason != "api-vault binary not found — run 'make build'" {
		t.Errorf("Reason = %q", cfgErr.Reason)
	}
}

func TestLocator_ExplicitMissing(t *testing.T) {
	_, err := Locator{Explicit: filepath.Join(t.TempDir(), "missing"), LookPath: noPath}.Locate()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
}
