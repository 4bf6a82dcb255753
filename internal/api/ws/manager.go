// Package ws serves the browser WebSocket channel: task requests in, task
// output and status out.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/domain"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/service"
)

const writeWait = 10 * time.Second

// Tasks is the part of the task service the channel drives.
type Tasks interface {
	Start(ctx context.Context, prompt string) (*domain.Task, error)
	Stop(timeout time.Duration) bool
}

// Conn serializes writes to a single connection; gorilla/websocket allows
// one concurrent writer.
type Conn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *Conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
	c.conn.Close()
}

// Manager tracks open connections and dispatches their messages. It is a
// service.TaskObserver, so output of every task reaches every client.
type Manager struct {
	upgrader websocket.Upgrader
	tasks    Tasks
	logger   *slog.Logger

	mu    sync.RWMutex
	conns map[*Conn]struct{}
}

// NewManager creates a manager accepting the given origins. An empty list
// accepts any origin.
func NewManager(tasks Tasks, allowedOrigins []string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		tasks:  tasks,
		logger: logger,
		conns:  make(map[*Conn]struct{}),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(allowed) == 0 || origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Count returns the number of open connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// ServeHTTP upgrades the request and runs the read loop until the client
// goes away.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := m.connect(raw)
	defer m.disconnect(conn)

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				m.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		m.handle(r.Context(), conn, data)
	}
}

func (m *Manager) connect(raw *websocket.Conn) *Conn {
	conn := &Conn{conn: raw}

	m.mu.Lock()
	m.conns[conn] = struct{}{}
	total := len(m.conns)
	m.mu.Unlock()

	m.logger.Info("websocket connected", "connections", total)
	m.Send(conn, ConnectionAck, map[string]any{
		"status":  "connected",
		"message": "WebSocket connection established",
	})
	return conn
}

func (m *Manager) disconnect(conn *Conn) {
	m.mu.Lock()
	_, ok := m.conns[conn]
	delete(m.conns, conn)
	total := len(m.conns)
	m.mu.Unlock()

	if ok {
		conn.conn.Close()
		m.logger.Info("websocket disconnected", "connections", total)
	}
}

// Send writes one message to conn and drops the connection when the write fails.
func (m *Manager) Send(conn *Conn, t MessageType, payload map[string]any) {
	if err := conn.WriteJSON(Message{Type: t, Payload: payload}); err != nil {
		m.logger.Error("error sending websocket message", "type", t, "error", err)
		m.disconnect(conn)
	}
}

// Broadcast writes one message to every connection.
func (m *Manager) Broadcast(t MessageType, payload map[string]any) {
	m.mu.RLock()
	conns := make([]*Conn, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		m.Send(c, t, payload)
	}
}

// Close sends a going-away frame to every client and forgets them.
func (m *Manager) Close() {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[*Conn]struct{})
	m.mu.Unlock()

	for c := range conns {
		c.close()
	}
}

func (m *Manager) handle(ctx context.Context, conn *Conn, data []byte) {
	msg, err := decodeMessage(data)
	if err != nil {
		if errors.Is(err, errInvalidJSON) {
			m.logger.Error("websocket json decode error", "error", err)
			m.Send(conn, Error, map[string]any{"error": "Invalid JSON", "details": err.Error()})
			return
		}
		m.logger.Error("invalid websocket message", "error", err)
		m.Send(conn, Error, map[string]any{"error": "Invalid message format", "details": err.Error()})
		return
	}

	m.logger.Info("received websocket message", "type", msg.Type)
	switch msg.Type {
	case VoiceStart:
		m.Send(conn, VoiceStart, map[string]any{"status": "started", "message": "Voice recording started"})
	case VoiceStop:
		m.Send(conn, VoiceStop, map[string]any{"status": "stopped", "message": "Voice recording stopped"})
	case TaskRequest:
		m.handleTaskRequest(ctx, conn, msg.Payload)
	case TaskCancel:
		// Stop blocks for up to the stop timeout; the finish event arrives
		// through the observer.
		go m.tasks.Stop(0)
		m.Send(conn, TaskResponse, map[string]any{"status": "stopping"})
	default:
		m.logger.Warn("unhandled websocket message type", "type", msg.Type)
		m.Send(conn, Error, map[string]any{"error": "Unhandled message type", "type": msg.Type})
	}
}

func (m *Manager) handleTaskRequest(ctx context.Context, conn *Conn, payload map[string]any) {
	prompt, _ := payload["task"].(string)
	if strings.TrimSpace(prompt) == "" {
		m.Send(conn, Error, map[string]any{"error": "Task is required"})
		return
	}

	task, err := m.tasks.Start(ctx, prompt)
	if err != nil {
		if errors.Is(err, service.ErrTaskInProgress) {
			m.Send(conn, Error, map[string]any{"error": "A task is already running"})
			return
		}
		m.Send(conn, Error, map[string]any{"error": "Failed to start task", "details": err.Error()})
		return
	}

	m.Send(conn, TaskResponse, map[string]any{
		"status":  "received",
		"task":    prompt,
		"task_id": task.CommandID,
	})
}

func (m *Manager) TaskStarted(task domain.Task) {
	m.Broadcast(TaskResponse, map[string]any{
		"status":  string(task.Status),
		"task":    task.Prompt,
		"task_id": task.CommandID,
	})
}

func (m *Manager) TaskLine(task domain.Task, line string) {
	m.Broadcast(OutputStream, map[string]any{"task_id": task.CommandID, "line": line})
}

func (m *Manager) TaskFinished(task domain.Task, err error) {
	payload := map[string]any{
		"status":  string(task.Status),
		"task_id": task.CommandID,
	}
	if task.ReturnCode != nil {
		payload["return_code"] = *task.ReturnCode
	}
	if task.Error != nil && *task.Error != "" {
		payload["error"] = *task.Error
	} else if err != nil {
		payload["error"] = err.Error()
	}
	m.Broadcast(TaskResponse, payload)
}

var _ service.TaskObserver = (*Manager)(nil)
