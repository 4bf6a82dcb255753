package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/service"
)

var (
	opusTimeout     time.Duration
	opusContainer   string
	opusModel       string
	opusToolVersion string
)

var opusCmd = &cobra.Command{
	Use:   "opus <task>",
	Short: "Run a computer-use task",
	Long:  "Run a task through the computer-use agent inside the computer-use demo container",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context(), os.Stderr)
		if err != nil {
			return err
		}
		defer services.Close()

		output, err := services.ComputerService.RunOpusTask(cmd.Context(), strings.Join(args, " "), service.OpusTaskOptions{
			Timeout:     opusTimeout,
			Container:   opusContainer,
			Model:       opusModel,
			ToolVersion: opusToolVersion,
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), output)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(opusCmd)

	opusCmd.Flags().DurationVar(&opusTimeout, "timeout", service.DefaultOpusTimeout, "Task timeout (10s to 30m)")
	opusCmd.Flags().StringVar(&opusContainer, "container", "", "Container ID or name (default: configured or detected)")
	opusCmd.Flags().StringVar(&opusModel, "model", "", "Model used by the agent loop")
	opusCmd.Flags().StringVar(&opusToolVersion, "tool-version", "", "Computer-use tool version")
}
