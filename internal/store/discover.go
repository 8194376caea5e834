package store

import (
	"os"
	"os/exec"
	"path/filepath"
)

// Locator resolves the api-vault executable.
// The zero value uses the running binary's location and the real PATH.
type Locator struct {
	// Explicit, when set, must name an existing regular file. It is
	// checked before any other candidate.
	Explicit string

	// SelfDir is the directory the server binary is deployed in.
	// Empty = derived from os.Executable.
	SelfDir string

	// LookPath searches the executable search path. Nil = exec.LookPath.
	LookPath func(file string) (string, error)
}

// Locate returns the first matching candidate:
//  1. the explicit path, if configured
//  2. <SelfDir>/../api-vault, then <SelfDir>/api-vault (build output next to the server)
//  3. api-vault on PATH
//
// It fails with *ConfigError when nothing matches.
func (l Locator) Locate() (string, error) {
	if l.Explicit != "" {
		if isRegularFile(l.Explicit) {
			return l.Explicit, nil
		}
		return "", &ConfigError{Reason: BinaryName + " binary not found at " + l.Explicit}
	}

	for _, candidate := range l.deploymentCandidates() {
		if isRegularFile(candidate) {
			return candidate, nil
		}
	}

	lookPath := l.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if found, err := lookPath(BinaryName); err == nil && found != "" {
		return found, nil
	}

	return "", &ConfigError{Reason: BinaryName + " binary not found — run 'make build'"}
}

func (l Locator) deploymentCandidates() []string {
	dir := l.SelfDir
	if dir == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil
		}
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		dir = filepath.Dir(exe)
	}
	return []string{
		filepath.Join(dir, "..", BinaryName),
		filepath.Join(dir, BinaryName),
	}
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
