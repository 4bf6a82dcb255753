// Package tools exposes the function tools a realtime voice session can
// call: coding tasks, file reads, shell commands and code search.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/adapter/system"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/domain"
)

const (
	AskClaudeCode  = "ask_claude_code"
	ReadFile       = "read_file"
	RunCommand     = "run_command"
	SearchCodebase = "search_codebase"
)

var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrInvalidArgs = errors.New("invalid tool arguments")
)

// Definition describes a tool in the realtime function-calling format.
type Definition struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// CodingTasks runs a coding task to completion.
type CodingTasks interface {
	Run(ctx context.Context, prompt string, onLine func(string)) (*domain.Task, error)
}

type handlerFunc func(ctx context.Context, raw json.RawMessage) (string, error)

type Registry struct {
	tasks    CodingTasks
	system   *system.Adapter
	logger   *slog.Logger
	defs     map[string]Definition
	handlers map[string]handlerFunc
}

func NewRegistry(tasks CodingTasks, sys *system.Adapter, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{tasks: tasks, system: sys, logger: logger}
	r.defs = map[string]Definition{
		AskClaudeCode: define(AskClaudeCode,
			"Ask Claude Code to perform a coding task and return its complete output, including files modified, commands run and a summary of changes.",
			props{"task": str("A natural language description of the coding task to perform.")},
			"task"),
		ReadFile: define(ReadFile,
			"Read a file from the project and return its contents.",
			props{"path": str("Relative or absolute path to the file to read.")},
			"path"),
		RunCommand: define(RunCommand,
			"Run a shell command in the project directory and return its output. Commands time out after 30 seconds.",
			props{
				"command": str("The shell command to execute, e.g. \"git status\"."),
				"cwd":     str("Optional working directory for the command."),
			},
			"command"),
		SearchCodebase: define(SearchCodebase,
			"Search for a regular expression in the codebase and return matching lines with file names and line numbers.",
			props{
				"pattern":      str("The search pattern (regular expression)."),
				"path":         str("Optional directory to search in."),
				"file_pattern": str("Optional glob restricting which files are searched, e.g. \"*.go\"."),
			},
			"pattern"),
	}
	r.handlers = map[string]handlerFunc{
		AskClaudeCode:  r.askClaudeCode,
		ReadFile:       r.readFile,
		RunCommand:     r.runCommand,
		SearchCodebase: r.searchCodebase,
	}
	return r
}

// Definitions lists every tool, sorted by name.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Call invokes a tool with JSON arguments. Tool failures are reported in
// the returned text; only unknown tools and malformed arguments are errors.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return handler(ctx, args)
}

func decodeArgs[T any](raw json.RawMessage, required func(T) bool) (T, error) {
	var args T
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	if !required(args) {
		return args, fmt.Errorf("%w: missing required argument", ErrInvalidArgs)
	}
	return args, nil
}

type askArgs struct {
	Task string `json:"task"`
}

func (r *Registry) askClaudeCode(ctx context.Context, raw json.RawMessage) (string, error) {
	args, err := decodeArgs(raw, func(a askArgs) bool { return strings.TrimSpace(a.Task) != "" })
	if err != nil {
		return "", err
	}

	r.logger.Info("claude code task requested", "task", args.Task)
	var output strings.Builder
	_, err = r.tasks.Run(ctx, args.Task, func(line string) {
		output.WriteString(line)
	})
	if err != nil {
		msg := fmt.Sprintf("Error executing Claude Code task: %v", err)
		r.logger.Error(msg)
		return msg, nil
	}
	return output.String(), nil
}

type readArgs struct {
	Path string `json:"path"`
}

func (r *Registry) readFile(_ context.Context, raw json.RawMessage) (string, error) {
	args, err := decodeArgs(raw, func(a readArgs) bool { return a.Path != "" })
	if err != nil {
		return "", err
	}

	content, err := r.system.ReadFile(args.Path)
	switch {
	case err == nil:
		return content, nil
	case errors.Is(err, fs.ErrNotExist):
		return "Error: File not found: " + args.Path, nil
	case errors.Is(err, system.ErrNotAFile):
		return "Error: Path is not a file: " + args.Path, nil
	case errors.Is(err, fs.ErrPermission):
		r.logger.Error("permission denied reading file", "path", args.Path)
		return "Error: Permission denied reading file: " + args.Path, nil
	default:
		r.logger.Error("failed to read file", "path", args.Path, "error", err)
		return fmt.Sprintf("Error reading file %s: %v", args.Path, err), nil
	}
}

type commandArgs struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd"`
}

func (r *Registry) runCommand(ctx context.Context, raw json.RawMessage) (string, error) {
	args, err := decodeArgs(raw, func(a commandArgs) bool { return strings.TrimSpace(a.Command) != "" })
	if err != nil {
		return "", err
	}

	res, err := r.system.RunCommand(ctx, args.Command, args.Cwd)
	switch {
	case errors.Is(err, system.ErrDirNotFound):
		return "Error: Working directory does not exist: " + args.Cwd, nil
	case errors.Is(err, system.ErrCommandTimeout):
		r.logger.Error("command timed out", "command", args.Command)
		return fmt.Sprintf("Error: Command timed out after %d seconds: %s", int(r.system.Timeout().Seconds()), args.Command), nil
	case err != nil:
		r.logger.Error("failed to run command", "command", args.Command, "error", err)
		return fmt.Sprintf("Error running command '%s': %v", args.Command, err), nil
	}

	return FormatCommandOutput(res), nil
}

// FormatCommandOutput renders stdout, then stderr, then a non-zero exit code.
func FormatCommandOutput(res *system.CommandResult) string {
	var b strings.Builder
	b.WriteString(res.Stdout)
	if res.Stderr != "" {
		b.WriteString("\nstderr:\n")
		b.WriteString(res.Stderr)
	}
	if res.ExitCode != 0 {
		fmt.Fprintf(&b, "\n\nCommand exited with code %d", res.ExitCode)
	}
	return b.String()
}

type searchArgs struct {
	Pattern     string `json:"pattern"`
	Path        string `json:"path"`
	FilePattern string `json:"file_pattern"`
}

func (r *Registry) searchCodebase(ctx context.Context, raw json.RawMessage) (string, error) {
	args, err := decodeArgs(raw, func(a searchArgs) bool { return a.Pattern != "" })
	if err != nil {
		return "", err
	}

	result := r.system.Search(ctx, args.Pattern, args.Path, args.FilePattern)
	if result.Status == system.SearchError {
		r.logger.Error("search failed", "pattern", args.Pattern, "message", result.Message)
	}
	return result.String(), nil
}

type props map[string]any

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func define(name, description string, properties props, required ...string) Definition {
	return Definition{
		Type:        "function",
		Name:        name,
		Description: description,
		Parameters: map[string]any{
			"type":                 "object",
			"properties":           map[string]any(properties),
			"required":             required,
			"additionalProperties": false,
		},
	}
}
