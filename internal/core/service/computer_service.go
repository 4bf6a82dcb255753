package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/adapter/docker"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/domain"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/repository"
)

const (
	DefaultOpusTimeout = 600 * time.Second
	MinOpusTimeout     = 10 * time.Second
	MaxOpusTimeout     = 1800 * time.Second
)

// ErrOpusTimeout is returned when the container run exceeded its timeout.
var ErrOpusTimeout = errors.New("Opus task timed out")

// ContainerExecutor is implemented by docker.Client.
type ContainerExecutor interface {
	FindComputerUseContainer(ctx context.Context) *docker.Container
	Exec(ctx context.Context, container string, command []string, opts docker.ExecOptions) (*docker.Result, error)
}

type OpusTaskOptions struct {
	Timeout     time.Duration
	Container   string
	Model       string
	ToolVersion string
}

type ComputerService struct {
	executor  ContainerExecutor
	taskRepo  repository.TaskRepository
	container string
	logger    *slog.Logger
}

// NewComputerService creates the service. container is the configured
// default container and may be empty to enable detection.
func NewComputerService(executor ContainerExecutor, taskRepo repository.TaskRepository, container string, logger *slog.Logger) *ComputerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ComputerService{
		executor:  executor,
		taskRepo:  taskRepo,
		container: container,
		logger:    logger,
	}
}

// RunOpusTask runs task through the computer-use agent loop inside the demo
// container and returns the agent's final text.
func (s *ComputerService) RunOpusTask(ctx context.Context, task string, opts OpusTaskOptions) (string, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return "", NewServiceError(http.StatusUnprocessableEntity, "task is required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultOpusTimeout
	}
	if opts.Timeout < MinOpusTimeout || opts.Timeout > MaxOpusTimeout {
		return "", NewServiceError(http.StatusUnprocessableEntity,
			fmt.Sprintf("timeout_seconds must be between %d and %d", int(MinOpusTimeout.Seconds()), int(MaxOpusTimeout.Seconds())))
	}

	container, err := s.resolveContainer(ctx, opts.Container)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(map[string]string{"task": task})
	if err != nil {
		return "", fmt.Errorf("failed to encode task: %w", err)
	}

	env := []string{"OPUS_TASK_B64=" + base64.URLEncoding.EncodeToString(payload)}
	if opts.Model != "" {
		env = append(env, "OPUS_MODEL="+opts.Model)
	}
	if opts.ToolVersion != "" {
		env = append(env, "OPUS_TOOL_VERSION="+opts.ToolVersion)
	}

	record := domain.NewTask(domain.TaskKindOpusComputer, "docker exec -i "+container+" python -", task)
	if err := s.taskRepo.Create(ctx, record); err != nil {
		s.logger.Error("failed to record opus task", "error", err)
		record = nil
	}

	s.logger.Info("running opus task", "container", container, "timeout", opts.Timeout)
	script := docker.OpusRunnerScript
	res, err := s.executor.Exec(ctx, container, []string{"python", "-"}, docker.ExecOptions{
		Env:     env,
		Stdin:   &script,
		Timeout: opts.Timeout,
	})

	output, runErr := opusOutcome(res, err)
	if record != nil {
		switch {
		case res != nil:
			record.Complete(res.ExitCode, strings.TrimSpace(res.Stdout), strings.TrimSpace(res.Stderr))
		default:
			record.Fail("", runErr.Error())
		}
		if err := s.taskRepo.Update(context.WithoutCancel(ctx), record); err != nil {
			s.logger.Error("failed to update opus task", "error", err)
		}
	}

	if runErr != nil {
		s.logger.Error("opus task failed", "container", container, "error", runErr)
		return "", runErr
	}
	return output, nil
}

func opusOutcome(res *docker.Result, err error) (string, error) {
	if errors.Is(err, docker.ErrTimeout) {
		return "", ErrOpusTimeout
	}
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("Opus task failed (exit %d). stderr:\n%s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return strings.TrimSpace(res.Stdout), nil
}

func (s *ComputerService) resolveContainer(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if s.container != "" {
		return s.container, nil
	}

	detected := s.executor.FindComputerUseContainer(ctx)
	if detected == nil {
		return "", errors.New("Could not find a running computer-use-demo container. Start it and ensure it exposes port 8080.")
	}
	s.logger.Debug("detected computer-use container", "id", detected.ID, "image", detected.Image)
	return detected.ID, nil
}
