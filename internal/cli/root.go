package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/adapter/docker"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/adapter/openai"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/adapter/system"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/repository"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/service"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/infrastructure/sqlite"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/logging"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/process"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/tools"
	"github.com/isaacrestrick/realtime-diabolical-computer/pkg/config"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

var (
	cfgFile string
	envFile string
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rdc",
	Short: "Realtime Diabolical Computer - voice-driven coding backend",
	Long: `rdc is the backend for a voice-driven coding assistant.

It provides:
- Coding tasks run through the Claude Code CLI, one at a time
- Realtime voice session credentials
- Computer-use tasks inside the computer-use demo container
- Function tools for realtime sessions (files, shell, code search)
- REST, server-sent events and WebSocket APIs`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile, envFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is "+config.DefaultConfigPath+" when present)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file loaded before reading the environment")
}

// initServices initializes all services. Logs go to logOut unless a log
// file is configured.
func initServices(ctx context.Context, logOut io.Writer) (*Services, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile, logOut)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	// The task log lives in memory only
	db, err := sqlite.New(sqlite.MemoryDSN)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	taskRepo := sqlite.NewTaskRepository(db)

	runner := process.NewManager(cfg.ClaudeBinary,
		process.WithArgs(cfg.ClaudeArgs...),
		process.WithWorkDir(cfg.ClaudeWorkDir),
		process.WithStopTimeout(cfg.StopTimeout),
		process.WithLogger(logger.With("component", "process")),
	)

	openaiClient := openai.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, nil)
	dockerClient := docker.NewClient(cfg.DockerBinary, logger.With("component", "docker"))
	systemAdapter := system.NewAdapter(system.DefaultCommandTimeout, logger.With("component", "system"))

	taskService := service.NewTaskService(runner, taskRepo, cfg.StopTimeout, logger.With("component", "tasks"))
	realtimeService := service.NewRealtimeService(openaiClient, logger.With("component", "realtime"))
	computerService := service.NewComputerService(dockerClient, taskRepo, cfg.ComputerUseContainer, logger.With("component", "computer"))
	registry := tools.NewRegistry(taskService, systemAdapter, logger.With("component", "tools"))

	return &Services{
		DB:              db,
		Logger:          logger,
		TaskRepo:        taskRepo,
		TaskService:     taskService,
		RealtimeService: realtimeService,
		ComputerService: computerService,
		Tools:           registry,
	}, nil
}

// Services holds all initialized services
type Services struct {
	DB              *sqlite.DB
	Logger          *logging.Logger
	TaskRepo        repository.TaskRepository
	TaskService     *service.TaskService
	RealtimeService *service.RealtimeService
	ComputerService *service.ComputerService
	Tools           *tools.Registry
}

// Close stops any running task and closes all resources
func (s *Services) Close() {
	if s.TaskService != nil {
		s.TaskService.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	if s.Logger != nil {
		s.Logger.Close()
	}
}
