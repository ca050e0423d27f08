package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/squeakbox/squeakbox/internal/daemon"
	"github.com/squeakbox/squeakbox/internal/library"
)

func NewHistoryCommand() *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent watch history",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand(fmt.Sprintf("HISTORY %d", limit))
			if err != nil {
				slog.Warn("Daemon is not running")
				return
			}

			jsonBytes, _ := json.Marshal(response.Data)
			records := []library.WatchRecord{}
			json.Unmarshal(jsonBytes, &records)

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				if len(records) == 0 {
					fmt.Println("No watch history yet.")
					return
				}
				for _, record := range records {
					watched := time.Duration(record.SecondsWatched) * time.Second
					fmt.Printf("  %s  %-36s  %s\n",
						record.StartedAt.Format("2006-01-02 15:04"), record.ItemID, watched)
				}
			case "json":
				fmt.Println(string(jsonBytes))
			default:
				slog.Error("unknown format")
				os.Exit(1)
			}
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")
	historyCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	return historyCmd
}
