package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/api"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the API server",
	Long:    "Start the HTTP, server-sent events and WebSocket API used by the browser front end",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context(), os.Stdout)
		if err != nil {
			return err
		}
		defer services.Close()

		// Access logs follow the application logs
		gin.DefaultWriter = services.Logger.Writer

		server := api.NewServer(
			cfg,
			services.Logger.Logger,
			services.TaskService,
			services.RealtimeService,
			services.ComputerService,
			services.Tools,
		)

		// Start server in goroutine
		serverErr := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()

		// Wait for interrupt signal or server error
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		if cfg.OpenAIAPIKey == "" {
			services.Logger.Warn("OPENAI_API_KEY is not set; ephemeral key requests will fail")
		}
		fmt.Println("Server is ready. Press Ctrl+C to stop.")

		select {
		case err := <-serverErr:
			return fmt.Errorf("server error: %w", err)
		case <-sigChan:
			fmt.Println("\nShutting down gracefully...")
		}

		// Graceful shutdown; the server stops the running coding task first
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		fmt.Println("Server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
