package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/squeakbox/squeakbox/internal/daemon"
)

func NewPlayCommand() *cobra.Command {
	playCmd := &cobra.Command{
		Use:     "play <item-id>",
		Aliases: []string{"p"},
		Short:   "Play a media item from the library",
		Long: `Play a media item from the library.

The item must be allowed by the guardian policy; blocked items, bedtime
and a used-up screen time budget all refuse playback.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			daemon.EnsureDaemonIsRunning()
			daemon.CheckVersionMismatch()
			response, err := daemon.SendCommand("PLAY " + args[0])
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			response.LogMessages()
			if response.IsError() {
				os.Exit(1)
			}
		},
	}

	return playCmd
}

func NewPauseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the current playback",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			sendSimpleCommand("PAUSE")
		},
	}
}

func NewResumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume paused playback",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			sendSimpleCommand("RESUME")
		},
	}
}

func NewPlaybackStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "end",
		Short: "Stop the current playback",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			sendSimpleCommand("PLAYBACK_STOP")
		},
	}
}

// sendSimpleCommand sends a command that needs no arguments and prints
// the daemon's messages.
func sendSimpleCommand(command string) {
	response, err := daemon.SendCommand(command)
	if err != nil {
		slog.Warn("Daemon is not running")
		os.Exit(1)
	}
	response.LogMessages()
	if response.IsError() {
		os.Exit(1)
	}
}
