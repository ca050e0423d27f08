package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/squeakbox/squeakbox/internal/core"
	"github.com/squeakbox/squeakbox/internal/daemon"
)

func NewLogsCommand() *cobra.Command {
	logsCmd := &cobra.Command{
		Use:     "logs",
		Aliases: []string{"log"},
		Short:   "Stream daemon logs in real-time",
		Long: `Stream daemon logs in real-time.

Press Ctrl+C to exit. By default, only shows INFO level and above.

Examples:
  squeakbox logs            # Stream INFO and above
  squeakbox logs -d         # Include DEBUG logs
  squeakbox logs -F policy  # Filter by keyword`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			// Check if daemon is running
			if _, err := daemon.SendCommand("STATUS"); err != nil {
				slog.Error("Daemon is not running. Use 'squeakbox start' to start it.")
				os.Exit(1)
			}

			debug, _ := cmd.Flags().GetBool("debug")
			filter, _ := cmd.Flags().GetString("filter")
			noColor, _ := cmd.Flags().GetBool("no-color")

			// Set up signal handler for Ctrl+C
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			// Connect to daemon
			conn, err := net.Dial("unix", core.GetSocketPath())
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to connect to daemon: %v", err))
				os.Exit(1)
			}
			defer conn.Close()

			if _, err := conn.Write([]byte("LOGS\n")); err != nil {
				slog.Error(fmt.Sprintf("Failed to send LOGS command: %v", err))
				os.Exit(1)
			}

			done := make(chan bool)
			go func() {
				reader := bufio.NewReader(conn)
				for {
					line, err := reader.ReadString('\n')
					if err != nil {
						done <- true
						return
					}

					// Skip DEBUG logs unless asked for
					if !debug && isDebugLog(line) {
						continue
					}

					// Apply keyword filter if specified
					if filter != "" && !strings.Contains(strings.ToLower(line), strings.ToLower(filter)) {
						continue
					}

					if noColor {
						line = stripANSI(line)
					}

					fmt.Print(line)
				}
			}()

			select {
			case <-sigChan:
				fmt.Println("\nDisconnected from daemon logs.")
			case <-done:
			}
		},
	}

	logsCmd.Flags().BoolP("debug", "d", false, "Show DEBUG level logs")
	logsCmd.Flags().StringP("filter", "F", "", "Filter logs by keyword")
	logsCmd.Flags().Bool("no-color", false, "Disable colored output")

	return logsCmd
}

// isDebugLog checks if a log line is a DEBUG level log
func isDebugLog(line string) bool {
	// Check for plain DBG
	if strings.Contains(line, " DBG ") || strings.Contains(line, "\tDBG\t") {
		return true
	}
	// Check for ANSI-colored DBG (gray color: \033[90mDBG\033[0m)
	if strings.Contains(line, "\033[90mDBG\033[0m") {
		return true
	}
	// Strip ANSI and check again
	stripped := stripANSI(line)
	return strings.Contains(stripped, " DBG ") || strings.Contains(stripped, "\tDBG\t")
}

// stripANSI removes ANSI escape codes from a string
func stripANSI(s string) string {
	var result strings.Builder
	inEscape := false

	for i := 0; i < len(s); i++ {
		if s[i] == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if s[i] == 'm' {
				inEscape = false
			}
			continue
		}
		result.WriteByte(s[i])
	}

	return result.String()
}
