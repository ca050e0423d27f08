package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/squeakbox/squeakbox/internal/daemon"
)

func NewGuardianCommand() *cobra.Command {
	guardianCmd := &cobra.Command{
		Use:   "guardian",
		Short: "Manage the guardian app connection",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the guardian connection state and active policy",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("GUARDIAN_STATUS")
			if err != nil {
				slog.Warn("Daemon is not running")
				return
			}
			if response.IsError() || response.Data == nil {
				response.LogMessages()
				return
			}

			jsonBytes, _ := json.Marshal(response.Data)
			status := daemon.GuardianStatus{}
			json.Unmarshal(jsonBytes, &status)

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				fmt.Printf("State:     %s\n", status.State)
				fmt.Printf("Bus name:  %s\n", status.BusName)
				if status.PolicyRevision > 0 {
					fmt.Printf("Policy:    revision %d\n", status.PolicyRevision)
					if status.DailyLimit != "" {
						fmt.Printf("  Daily limit:   %s\n", status.DailyLimit)
					}
					if status.BedtimeStart != "" {
						fmt.Printf("  Bedtime:       %s - %s\n", status.BedtimeStart, status.BedtimeEnd)
					}
					fmt.Printf("  Blocked items: %d\n", status.BlockedItems)
				} else {
					fmt.Println("Policy:    none received yet")
				}
				if status.Unlocked {
					fmt.Println("Unlocked:  yes (parent PIN)")
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

	bindCmd := &cobra.Command{
		Use:   "bind",
		Short: "Bind to the guardian app's control service",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			daemon.EnsureDaemonIsRunning()
			sendSimpleCommand("GUARDIAN_BIND")
		},
	}

	unbindCmd := &cobra.Command{
		Use:   "unbind",
		Short: "Release the guardian binding",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			sendSimpleCommand("GUARDIAN_UNBIND")
		},
	}

	guardianCmd.AddCommand(statusCmd, bindCmd, unbindCmd)
	return guardianCmd
}
