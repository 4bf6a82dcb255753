// Package docker drives the docker CLI to find and exec into the
// computer-use demo container.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/textutil"
)

const (
	DefaultBinary = "docker"
	psTimeout     = 5 * time.Second
	psFormat      = "{{.ID}}|{{.Image}}|{{.Names}}|{{.Ports}}"
)

// ErrTimeout is returned when a docker invocation outlives its timeout. The
// process has been killed by then.
var ErrTimeout = errors.New("docker command timed out")

// Container is one row of `docker ps`.
type Container struct {
	ID    string
	Image string
	Name  string
	Ports string
}

// Result is the outcome of a finished docker invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

type Client struct {
	binary string
	logger *slog.Logger
}

func NewClient(binary string, logger *slog.Logger) *Client {
	if binary == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{binary: binary, logger: logger}
}

// Run executes docker with args, writing stdin when it is non-nil. A
// non-zero exit is not an error; it is reported in Result.ExitCode.
func (c *Client) Run(ctx context.Context, args []string, stdin *string, timeout time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.WaitDelay = time.Second
	if stdin != nil {
		cmd.Stdin = strings.NewReader(*stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.logger.Warn("docker command timed out", "args", args, "timeout", timeout)
		return nil, ErrTimeout
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return nil, fmt.Errorf("failed to run %s: %w", c.binary, err)
	}

	return &Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   textutil.Decode(stdout.Bytes()),
		Stderr:   textutil.Decode(stderr.Bytes()),
	}, nil
}

// FindComputerUseContainer picks the running container that most looks like
// the computer-use demo. It returns nil when nothing scores above zero or
// docker is unavailable.
func (c *Client) FindComputerUseContainer(ctx context.Context) *Container {
	res, err := c.Run(ctx, []string{"ps", "--format", psFormat}, nil, psTimeout)
	if err != nil {
		c.logger.Debug("docker ps failed", "error", err)
		return nil
	}
	if res.ExitCode != 0 {
		c.logger.Debug("docker ps exited non-zero", "code", res.ExitCode, "stderr", strings.TrimSpace(res.Stderr))
		return nil
	}
	return BestContainer(ParseContainers(res.Stdout))
}

// ExecOptions configures Exec.
type ExecOptions struct {
	Env     []string
	Stdin   *string
	Timeout time.Duration
}

// Exec runs `docker exec -i` with the given environment in container.
func (c *Client) Exec(ctx context.Context, container string, command []string, opts ExecOptions) (*Result, error) {
	args := []string{"exec", "-i"}
	for _, env := range opts.Env {
		args = append(args, "-e", env)
	}
	args = append(args, container)
	args = append(args, command...)
	return c.Run(ctx, args, opts.Stdin, opts.Timeout)
}

// ParseContainers parses `docker ps` output in psFormat. Malformed lines
// are skipped.
func ParseContainers(out string) []Container {
	var containers []Container
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			continue
		}
		containers = append(containers, Container{
			ID:    parts[0],
			Image: parts[1],
			Name:  parts[2],
			Ports: parts[3],
		})
	}
	return containers
}

// Score ranks a container: the published demo port outweighs the image name.
func Score(c Container) int {
	score := 0
	if strings.Contains(c.Ports, "8080->8080") {
		score += 100
	}
	if strings.Contains(c.Image, "computer-use-demo") {
		score += 50
	}
	if strings.Contains(c.Image, "anthropic-quickstarts") {
		score += 10
	}
	return score
}

// BestContainer returns the highest scoring container, or nil if none
// scores above zero. Ties keep docker's ordering.
func BestContainer(containers []Container) *Container {
	if len(containers) == 0 {
		return nil
	}
	sorted := append([]Container(nil), containers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Score(sorted[i]) > Score(sorted[j])
	})
	if Score(sorted[0]) <= 0 {
		return nil
	}
	return &sorted[0]
}
