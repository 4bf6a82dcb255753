package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/domain"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/repository"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/process"
)

// TaskRunner is the process manager as seen by the task service.
type TaskRunner interface {
	Binary() string
	Args() []string
	RunWithStart(ctx context.Context, prompt string, started func(pid int)) iter.Seq2[string, error]
	Stop(timeout time.Duration)
	Kill()
	IsRunning() bool
	PID() int
}

// TaskObserver receives task lifecycle events. Implementations must not
// block; events are delivered on the goroutine running the task.
type TaskObserver interface {
	TaskStarted(task domain.Task)
	TaskLine(task domain.Task, line string)
	TaskFinished(task domain.Task, err error)
}

// TaskService runs coding tasks through a single TaskRunner and records
// them in the task log.
type TaskService struct {
	runner      TaskRunner
	taskRepo    repository.TaskRepository
	stopTimeout time.Duration
	logger      *slog.Logger

	// base is cancelled by Close and parents every background task.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	current   *domain.Task
	observers []TaskObserver
	// cancelRun cancels the current run; cancelRequested records a stop
	// that arrived before execute installed it.
	cancelRun       context.CancelFunc
	cancelRequested bool
}

func NewTaskService(runner TaskRunner, taskRepo repository.TaskRepository, stopTimeout time.Duration, logger *slog.Logger) *TaskService {
	if stopTimeout <= 0 {
		stopTimeout = process.DefaultStopTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	base, cancel := context.WithCancel(context.Background())
	return &TaskService{
		runner:      runner,
		taskRepo:    taskRepo,
		stopTimeout: stopTimeout,
		logger:      logger,
		base:        base,
		cancel:      cancel,
	}
}

// Subscribe registers an observer for every task run by this service.
func (s *TaskService) Subscribe(observer TaskObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

// Run executes prompt synchronously, handing each output line to onLine.
// The finished task is returned together with the run error, if any.
func (s *TaskService) Run(ctx context.Context, prompt string, onLine func(string)) (*domain.Task, error) {
	task, err := s.begin(ctx, prompt)
	if err != nil {
		return nil, err
	}
	runErr := s.execute(ctx, task, onLine)
	return s.snapshot(task), runErr
}

// Start records the task and runs it in the background. The returned task
// is a snapshot taken before the process is spawned.
func (s *TaskService) Start(ctx context.Context, prompt string) (*domain.Task, error) {
	task, err := s.begin(ctx, prompt)
	if err != nil {
		return nil, err
	}
	started := s.snapshot(task)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(s.base, task, nil)
	}()

	return started, nil
}

func (s *TaskService) begin(ctx context.Context, prompt string) (*domain.Task, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, badRequest("task is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil || s.runner.IsRunning() {
		return nil, ErrTaskInProgress
	}

	command := strings.Join(append([]string{s.runner.Binary()}, s.runner.Args()...), " ")
	task := domain.NewTask(domain.TaskKindClaudeCode, command, prompt)
	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to record task: %w", err)
	}
	s.current = task

	return task, nil
}

func (s *TaskService) execute(ctx context.Context, task *domain.Task, onLine func(string)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancelRun = cancel
	if s.cancelRequested {
		cancel()
	}
	s.mu.Unlock()

	s.logger.Info("running coding task", "command_id", task.CommandID)
	s.notify(func(o TaskObserver, t domain.Task) { o.TaskStarted(t) }, task)

	started := func(pid int) {
		s.mu.Lock()
		task.SetPID(pid)
		s.mu.Unlock()
		if err := s.taskRepo.Update(context.WithoutCancel(ctx), task); err != nil {
			s.logger.Error("failed to record task pid", "command_id", task.CommandID, "error", err)
		}
	}

	var output strings.Builder
	var runErr error
	for line, err := range s.runner.RunWithStart(ctx, task.Prompt, started) {
		if err != nil {
			runErr = err
			break
		}

		output.WriteString(line)
		if onLine != nil {
			onLine(line)
		}
		s.notify(func(o TaskObserver, t domain.Task) { o.TaskLine(t, line) }, task)
	}

	if errors.Is(runErr, process.ErrBusy) {
		runErr = ErrTaskInProgress
	}

	s.mu.Lock()
	finish(task, output.String(), runErr)
	s.current = nil
	s.cancelRun = nil
	s.cancelRequested = false
	s.mu.Unlock()

	if err := s.taskRepo.Update(context.WithoutCancel(ctx), task); err != nil {
		s.logger.Error("failed to update task record", "command_id", task.CommandID, "error", err)
	}

	if runErr != nil {
		s.logger.Error("coding task failed", "command_id", task.CommandID, "status", task.Status, "error", runErr)
	} else {
		s.logger.Info("coding task completed", "command_id", task.CommandID)
	}
	s.notify(func(o TaskObserver, t domain.Task) { o.TaskFinished(t, runErr) }, task)

	return runErr
}

// finish maps the run outcome onto the task record.
func finish(task *domain.Task, output string, runErr error) {
	if runErr == nil {
		task.Complete(0, output, "")
		return
	}

	var commErr *process.CommunicationError
	if errors.As(runErr, &commErr) && commErr.Stopped && task.PID == nil {
		task.Cancel(output, commErr.Error())
		return
	}
	if errors.As(runErr, &commErr) && (commErr.Stopped || commErr.ExitCode != -1) {
		errText := commErr.Stderr
		if errText == "" {
			errText = commErr.Error()
		}
		if commErr.Stopped {
			task.Stopped(commErr.ExitCode, output, errText)
		} else {
			task.Complete(commErr.ExitCode, output, errText)
		}
		return
	}

	task.Fail(output, runErr.Error())
}

// Stop gracefully stops the running task. A non-positive timeout selects the
// configured stop timeout. It reports whether a task was active, including
// one accepted whose process has not been spawned yet.
func (s *TaskService) Stop(timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = s.stopTimeout
	}
	if s.cancelPending() {
		return true
	}
	running := s.runner.IsRunning()
	s.runner.Stop(timeout)
	return running
}

// Kill ends the running task immediately. It reports whether a task was running.
func (s *TaskService) Kill() bool {
	if s.cancelPending() {
		return true
	}
	running := s.runner.IsRunning()
	s.runner.Kill()
	return running
}

// cancelPending cancels the current task when no process has been spawned
// for it yet.
func (s *TaskService) cancelPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.PID != nil || s.runner.IsRunning() {
		return false
	}
	s.cancelRequested = true
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.logger.Info("cancelled coding task before its process started", "command_id", s.current.CommandID)
	return true
}

// Current returns a snapshot of the running task.
func (s *TaskService) Current() (*domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, false
	}
	task := *s.current
	return &task, true
}

// IsRunning reports whether a child process is alive.
func (s *TaskService) IsRunning() bool {
	return s.runner.IsRunning()
}

// Binary returns the coding assistant executable.
func (s *TaskService) Binary() string {
	return s.runner.Binary()
}

// PID returns the pid of the running child, or 0.
func (s *TaskService) PID() int {
	return s.runner.PID()
}

// Get retrieves a task by command ID
func (s *TaskService) Get(ctx context.Context, commandID string) (*domain.Task, error) {
	return s.taskRepo.FindByCommandID(ctx, commandID)
}

// List lists tasks with filtering
func (s *TaskService) List(ctx context.Context, filter repository.TaskFilter) ([]*domain.Task, error) {
	return s.taskRepo.List(ctx, filter)
}

// Count counts tasks with filtering
func (s *TaskService) Count(ctx context.Context, filter repository.TaskFilter) (int, error) {
	return s.taskRepo.Count(ctx, filter)
}

// Close stops any running task and waits for background runs to finish.
func (s *TaskService) Close() error {
	s.runner.Stop(s.stopTimeout)
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *TaskService) snapshot(task *domain.Task) *domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *task
	return &cp
}

func (s *TaskService) notify(fn func(TaskObserver, domain.Task), task *domain.Task) {
	s.mu.Lock()
	observers := append([]TaskObserver(nil), s.observers...)
	cp := *task
	s.mu.Unlock()

	for _, o := range observers {
		fn(o, cp)
	}
}
