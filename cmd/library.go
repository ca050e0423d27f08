package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/squeakbox/squeakbox/internal/daemon"
	"github.com/squeakbox/squeakbox/internal/library"
)

func NewLibraryCommand() *cobra.Command {
	libraryCmd := &cobra.Command{
		Use:     "library",
		Aliases: []string{"lib"},
		Short:   "Manage the media library",
	}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the configured media directories",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			daemon.EnsureDaemonIsRunning()
			response, err := daemon.SendCommand("LIBRARY_SCAN")
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			response.LogMessages()
		},
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all cataloged media items",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			daemon.EnsureDaemonIsRunning()
			response, err := daemon.SendCommand("LIBRARY_LIST")
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}

			jsonBytes, _ := json.Marshal(response.Data)
			items := []library.Item{}
			json.Unmarshal(jsonBytes, &items)

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				if len(items) == 0 {
					fmt.Println("Library is empty. Run 'squeakbox library scan' first.")
					return
				}
				for _, item := range items {
					fmt.Printf("  %-36s  %-5s  %s\n", item.ID, item.Kind, item.Title)
				}
			case "json":
				fmt.Println(string(jsonBytes))
			default:
				slog.Error("unknown format")
				os.Exit(1)
			}
		},
	}
	listCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	libraryCmd.AddCommand(scanCmd, listCmd)
	return libraryCmd
}
