package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/adapter/system"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeTasks struct {
	lines  []string
	err    error
	prompt string
}

func (f *fakeTasks) Run(_ context.Context, prompt string, onLine func(string)) (*domain.Task, error) {
	f.prompt = prompt
	for _, line := range f.lines {
		onLine(line)
	}
	return &domain.Task{}, f.err
}

func newTestRegistry(tasks CodingTasks) *Registry {
	return NewRegistry(tasks, system.NewAdapter(5*time.Second, discard), discard)
}

func TestDefinitions(t *testing.T) {
	defs := newTestRegistry(&fakeTasks{}).Definitions()

	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
		assert.Equal(t, "function", d.Type)
		assert.NotEmpty(t, d.Description)
		assert.Equal(t, "object", d.Parameters["type"])
	}
	assert.Equal(t, []string{AskClaudeCode, ReadFile, RunCommand, SearchCodebase}, names)

	data, err := json.Marshal(defs[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"required":["task"]`)
}

func TestAskClaudeCode(t *testing.T) {
	tasks := &fakeTasks{lines: []string{"Added endpoint\n", "Done"}}
	r := newTestRegistry(tasks)

	out, err := r.Call(context.Background(), AskClaudeCode, json.RawMessage(`{"task":"add login"}`))
	require.NoError(t, err)
	assert.Equal(t, "Added endpoint\nDone", out)
	assert.Equal(t, "add login", tasks.prompt)

	tasks = &fakeTasks{err: errors.New("binary 'claude' not found")}
	out, err = newTestRegistry(tasks).Call(context.Background(), AskClaudeCode, json.RawMessage(`{"task":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "Error executing Claude Code task: binary 'claude' not found", out)
}

func TestCallErrors(t *testing.T) {
	r := newTestRegistry(&fakeTasks{})

	_, err := r.Call(context.Background(), "launch_missiles", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = r.Call(context.Background(), ReadFile, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrInvalidArgs)

	_, err = r.Call(context.Background(), RunCommand, json.RawMessage(`not json`))
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestReadFileTool(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	r := newTestRegistry(&fakeTasks{})
	call := func(p string) string {
		raw, _ := json.Marshal(map[string]string{"path": p})
		out, err := r.Call(context.Background(), ReadFile, raw)
		require.NoError(t, err)
		return out
	}

	assert.Equal(t, "hello", call(path))
	assert.Equal(t, "Error: File not found: "+filepath.Join(dir, "nope"), call(filepath.Join(dir, "nope")))
	assert.Equal(t, "Error: Path is not a file: "+dir, call(dir))
}

func TestRunCommandTool(t *testing.T) {
	r := newTestRegistry(&fakeTasks{})

	out, err := r.Call(context.Background(), RunCommand, json.RawMessage(`{"command":"echo hi; echo warn >&2; exit 2"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi\n\nstderr:\nwarn\n\n\nCommand exited with code 2", out)

	out, err = r.Call(context.Background(), RunCommand, json.RawMessage(`{"command":"true","cwd":"/nonexistent/dir"}`))
	require.NoError(t, err)
	assert.Equal(t, "Error: Working directory does not exist: /nonexistent/dir", out)
}

func TestFormatCommandOutput(t *testing.T) {
	assert.Equal(t, "ok\n", FormatCommandOutput(&system.CommandResult{Stdout: "ok\n"}))
	assert.Equal(t, "\n\nCommand exited with code 1", FormatCommandOutput(&system.CommandResult{ExitCode: 1}))
}

func TestSearchCodebaseTool(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "svc.go"), []byte("type UserService struct{}\n"), 0o644))

	r := newTestRegistry(&fakeTasks{})
	raw, _ := json.Marshal(map[string]string{"pattern": "class.*Service", "path": dir})
	out, err := r.Call(context.Background(), SearchCodebase, raw)
	require.NoError(t, err)
	assert.Equal(t, "No matches found.", out)

	raw, _ = json.Marshal(map[string]string{"pattern": "type.*Service", "path": dir, "file_pattern": "*.go"})
	out, err = r.Call(context.Background(), SearchCodebase, raw)
	require.NoError(t, err)
	assert.Contains(t, out, "svc.go")
}
