// Package system gives realtime tools access to the local filesystem and
// shell.
package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/textutil"
)

const DefaultCommandTimeout = 30 * time.Second

var (
	ErrNotAFile       = errors.New("path is not a file")
	ErrCommandTimeout = errors.New("command timed out")
	ErrDirNotFound    = errors.New("directory does not exist")
)

type Adapter struct {
	timeout time.Duration
	logger  *slog.Logger
}

func NewAdapter(timeout time.Duration, logger *slog.Logger) *Adapter {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{timeout: timeout, logger: logger}
}

// Timeout returns the limit applied to commands and searches.
func (a *Adapter) Timeout() time.Duration {
	return a.timeout
}

// ReadFile returns the content of path with invalid UTF-8 replaced.
func (a *Adapter) ReadFile(path string) (string, error) {
	resolved, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", ErrNotAFile
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}

	content := textutil.Decode(data)
	a.logger.Info("read file", "path", path, "chars", len([]rune(content)))
	return content, nil
}

// CommandResult is the outcome of a shell command that ran to completion.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// RunCommand runs command through sh in cwd, or the current directory when
// cwd is empty.
func (a *Adapter) RunCommand(ctx context.Context, command, cwd string) (*CommandResult, error) {
	dir, err := resolveDir(cwd)
	if err != nil {
		return nil, err
	}

	a.logger.Info("running command", "command", command, "cwd", dir)
	res, err := a.run(ctx, dir, "sh", "-c", command)
	if err != nil {
		return nil, err
	}
	a.logger.Info("command completed", "command", command, "code", res.ExitCode)
	return res, nil
}

func (a *Adapter) run(ctx context.Context, dir, name string, args ...string) (*CommandResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, ErrCommandTimeout
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return nil, err
	}

	return &CommandResult{
		Stdout:   textutil.Decode(stdout.Bytes()),
		Stderr:   textutil.Decode(stderr.Bytes()),
		ExitCode: cmd.ProcessState.ExitCode(),
	}, nil
}

type SearchStatus string

const (
	SearchFound    SearchStatus = "found"
	SearchNotFound SearchStatus = "not_found"
	SearchError    SearchStatus = "error"
)

// SearchResult is a tagged outcome: Matches is set for SearchFound, Message
// for SearchError.
type SearchResult struct {
	Status  SearchStatus
	Matches string
	Message string
}

func (r SearchResult) String() string {
	switch r.Status {
	case SearchFound:
		return r.Matches
	case SearchNotFound:
		return "No matches found."
	default:
		return r.Message
	}
}

// Search looks for pattern under path with ripgrep, or grep when ripgrep is
// not installed. filePattern is an optional glob restricting file names.
func (a *Adapter) Search(ctx context.Context, pattern, path, filePattern string) SearchResult {
	dir, err := resolveDir(path)
	if err != nil {
		if errors.Is(err, ErrDirNotFound) {
			return SearchResult{Status: SearchError, Message: fmt.Sprintf("Error: Search directory does not exist: %s", path)}
		}
		return SearchResult{Status: SearchError, Message: fmt.Sprintf("Error searching codebase: %v", err)}
	}

	name, args := searchCommand(pattern, dir, filePattern)
	a.logger.Info("searching codebase", "pattern", pattern, "tool", name, "dir", dir)

	res, err := a.run(ctx, "", name, args...)
	switch {
	case errors.Is(err, ErrCommandTimeout):
		return SearchResult{Status: SearchError, Message: fmt.Sprintf("Error: Search timed out after %d seconds", int(a.timeout.Seconds()))}
	case err != nil:
		return SearchResult{Status: SearchError, Message: fmt.Sprintf("Error searching codebase: %v", err)}
	}

	// Both tools exit 1 when nothing matched.
	switch res.ExitCode {
	case 0:
		if strings.TrimSpace(res.Stdout) == "" {
			return SearchResult{Status: SearchNotFound}
		}
		return SearchResult{Status: SearchFound, Matches: res.Stdout}
	case 1:
		return SearchResult{Status: SearchNotFound}
	default:
		return SearchResult{Status: SearchError, Message: "Search failed: " + res.Stderr}
	}
}

func searchCommand(pattern, dir, filePattern string) (string, []string) {
	if _, err := exec.LookPath("rg"); err == nil {
		args := []string{"--line-number", "--no-heading", "--color=never"}
		if filePattern != "" {
			args = append(args, "--glob", filePattern)
		}
		return "rg", append(args, "--", pattern, dir)
	}

	args := []string{"-r", "-n", "-I"}
	if filePattern != "" {
		args = append(args, "--include", filePattern)
	}
	return "grep", append(args, "-e", pattern, dir)
}

func resolveDir(dir string) (string, error) {
	if dir == "" {
		return os.Getwd()
	}
	resolved, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(resolved); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrDirNotFound, dir)
		}
		return "", err
	}
	return resolved, nil
}
