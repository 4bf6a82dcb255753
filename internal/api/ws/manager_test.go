package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/domain"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/service"
)

type fakeTasks struct {
	mu       sync.Mutex
	prompts  []string
	startErr error
	stopped  chan struct{}
}

func (f *fakeTasks) failWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
}

func (f *fakeTasks) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func (f *fakeTasks) Start(_ context.Context, prompt string) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.prompts = append(f.prompts, prompt)
	return &domain.Task{CommandID: "cmd-1", Prompt: prompt, Status: domain.TaskStatusRunning}, nil
}

func (f *fakeTasks) Stop(time.Duration) bool {
	close(f.stopped)
	return true
}

func newTestServer(t *testing.T, tasks *fakeTasks, origins []string) (*Manager, string) {
	t.Helper()
	m := NewManager(tasks, origins, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(m)
	t.Cleanup(func() {
		m.Close()
		srv.Close()
	})
	return m, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ack := read(t, conn)
	require.Equal(t, ConnectionAck, ack.Type)
	assert.Equal(t, "connected", ack.Payload["status"])
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestVoiceMessages(t *testing.T) {
	_, url := newTestServer(t, &fakeTasks{}, nil)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(Message{Type: VoiceStart}))
	msg := read(t, conn)
	assert.Equal(t, VoiceStart, msg.Type)
	assert.Equal(t, "started", msg.Payload["status"])

	require.NoError(t, conn.WriteJSON(Message{Type: VoiceStop}))
	msg = read(t, conn)
	assert.Equal(t, VoiceStop, msg.Type)
	assert.Equal(t, "stopped", msg.Payload["status"])
}

func TestInvalidMessages(t *testing.T) {
	_, url := newTestServer(t, &fakeTasks{}, nil)
	conn := dial(t, url)

	tests := []struct {
		name      string
		frame     string
		wantError string
	}{
		{"malformed json", `{"type":`, "Invalid JSON"},
		{"unknown type", `{"type":"launch"}`, "Invalid message format"},
		{"missing type", `{"payload":{}}`, "Invalid message format"},
		{"payload not object", `{"type":"voice_start","payload":[1]}`, "Invalid message format"},
		{"server-only type", `{"type":"output_stream","payload":{}}`, "Unhandled message type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)))
			msg := read(t, conn)
			assert.Equal(t, Error, msg.Type)
			assert.Equal(t, tt.wantError, msg.Payload["error"])
		})
	}
}

func TestTaskRequest(t *testing.T) {
	tasks := &fakeTasks{}
	_, url := newTestServer(t, tasks, nil)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(Message{Type: TaskRequest, Payload: map[string]any{"task": "  "}}))
	msg := read(t, conn)
	assert.Equal(t, Error, msg.Type)

	require.NoError(t, conn.WriteJSON(Message{Type: TaskRequest, Payload: map[string]any{"task": "add tests"}}))
	msg = read(t, conn)
	assert.Equal(t, TaskResponse, msg.Type)
	assert.Equal(t, "received", msg.Payload["status"])
	assert.Equal(t, "cmd-1", msg.Payload["task_id"])
	assert.Equal(t, []string{"add tests"}, tasks.received())

	tasks.failWith(service.ErrTaskInProgress)
	require.NoError(t, conn.WriteJSON(Message{Type: TaskRequest, Payload: map[string]any{"task": "again"}}))
	msg = read(t, conn)
	assert.Equal(t, Error, msg.Type)
	assert.Equal(t, "A task is already running", msg.Payload["error"])

	tasks.failWith(errors.New("disk full"))
	require.NoError(t, conn.WriteJSON(Message{Type: TaskRequest, Payload: map[string]any{"task": "again"}}))
	msg = read(t, conn)
	assert.Equal(t, "disk full", msg.Payload["details"])
}

func TestTaskCancel(t *testing.T) {
	tasks := &fakeTasks{stopped: make(chan struct{})}
	_, url := newTestServer(t, tasks, nil)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(Message{Type: TaskCancel}))
	msg := read(t, conn)
	assert.Equal(t, TaskResponse, msg.Type)
	assert.Equal(t, "stopping", msg.Payload["status"])

	select {
	case <-tasks.stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop was not called")
	}
}

func TestBroadcastTaskEvents(t *testing.T) {
	m, url := newTestServer(t, &fakeTasks{}, nil)
	first := dial(t, url)
	second := dial(t, url)
	require.Eventually(t, func() bool { return m.Count() == 2 }, 5*time.Second, 10*time.Millisecond)

	task := domain.Task{CommandID: "cmd-9", Status: domain.TaskStatusRunning}
	m.TaskLine(task, "hello\n")

	code := 1
	errText := "boom"
	task.Status = domain.TaskStatusFailed
	task.ReturnCode = &code
	task.Error = &errText
	m.TaskFinished(task, nil)

	for _, conn := range []*websocket.Conn{first, second} {
		line := read(t, conn)
		assert.Equal(t, OutputStream, line.Type)
		assert.Equal(t, "hello\n", line.Payload["line"])
		assert.Equal(t, "cmd-9", line.Payload["task_id"])

		done := read(t, conn)
		assert.Equal(t, TaskResponse, done.Type)
		assert.Equal(t, "failed", done.Payload["status"])
		assert.EqualValues(t, 1, done.Payload["return_code"])
		assert.Equal(t, "boom", done.Payload["error"])
	}
}

func TestDisconnectDropsConnection(t *testing.T) {
	m, url := newTestServer(t, &fakeTasks{}, nil)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return m.Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return m.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestOriginCheck(t *testing.T) {
	_, url := newTestServer(t, &fakeTasks{}, []string{"http://localhost:5173"})

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"http://localhost:5173"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}
