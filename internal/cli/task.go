package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var taskCmd = &cobra.Command{
	Use:   "task [prompt...]",
	Short: "Run a coding task locally",
	Long: `Run a coding task through the Claude Code CLI and stream its output.

The prompt is taken from the arguments, or from standard input when it is
piped. Ctrl+C stops the task gracefully; a second Ctrl+C kills it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := readPrompt(args, cmd.InOrStdin(), term.IsTerminal(int(os.Stdin.Fd())))
		if err != nil {
			return err
		}

		services, err := initServices(cmd.Context(), os.Stderr)
		if err != nil {
			return err
		}
		defer services.Close()

		sigChan := make(chan os.Signal, 2)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer func() {
			signal.Stop(sigChan)
			close(sigChan)
		}()
		go func() {
			if _, ok := <-sigChan; !ok {
				return
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "\nStopping task...")
			go services.TaskService.Stop(0)
			if _, ok := <-sigChan; ok {
				services.TaskService.Kill()
			}
		}()

		out := cmd.OutOrStdout()
		task, err := services.TaskService.Run(cmd.Context(), prompt, func(line string) {
			fmt.Fprint(out, line)
		})
		if err != nil {
			if task != nil {
				return fmt.Errorf("task %s: %w", task.Status, err)
			}
			return err
		}

		return nil
	},
}

// readPrompt joins args, or reads in when there are no args and in is not
// a terminal.
func readPrompt(args []string, in io.Reader, interactive bool) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if interactive {
		return "", errors.New("a prompt is required: pass it as arguments or pipe it on stdin")
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt from stdin: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("a prompt is required")
	}
	return prompt, nil
}

func init() {
	rootCmd.AddCommand(taskCmd)
}
