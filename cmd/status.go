package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/squeakbox/squeakbox/internal/daemon"
)

func NewStatusCommand() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, playback and guardian status",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("STATUS")
			if err != nil {
				slog.Warn("Daemon is not running. Use 'squeakbox start' to start it.")
				return
			}

			jsonBytes, _ := json.Marshal(response.Data)
			status := daemon.DaemonStatus{}
			json.Unmarshal(jsonBytes, &status)

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				fmt.Printf("Daemon:    running (PID %d, up %s)\n", status.Pid, status.Uptime)
				fmt.Printf("Guardian:  %s\n", status.GuardianState)
				if status.CurrentItem != "" {
					fmt.Printf("Playback:  %s '%s' (%s / %s)\n",
						status.PlaybackState, status.CurrentItem, status.Position, status.Duration)
				} else {
					fmt.Printf("Playback:  %s\n", status.PlaybackState)
				}
				if status.ScreenTimeLeft != "" {
					fmt.Printf("Screen time left today: %s\n", status.ScreenTimeLeft)
				}
				if status.Engine != nil {
					fmt.Printf("Engine:    PID %d, CPU %.1f%%, memory %.1f MB\n",
						status.Engine.Pid, status.Engine.CPUPercent, status.Engine.MemoryMB)
				}
			case "json":
				fmt.Println(string(jsonBytes))
			default:
				slog.Error("unknown format")
				os.Exit(1)
			}
		},
	}
	statusCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	return statusCmd
}
