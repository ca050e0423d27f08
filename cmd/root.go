package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/squeakbox/squeakbox/internal/core"
)

func NewRootCommand() *cobra.Command {
	var configPath string
	var verbose int

	homeDir, _ := os.UserHomeDir()

	rootCmd := &cobra.Command{
		Use:   "squeakbox",
		Short: "Squeakbox - kid-safe media player",
		Long:  `Squeakbox - kid-safe media player`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := core.InitializeConfig(configPath); err != nil {
				return err
			}
			core.Config.Verbose = verbose
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config-path", fmt.Sprintf("%s/%s", homeDir, core.BaseDirName),
		"config path",
	)
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewStartCommand(),
		NewStopCommand(),
		NewStatusCommand(),
		NewPlayCommand(),
		NewPauseCommand(),
		NewResumeCommand(),
		NewPlaybackStopCommand(),
		NewLibraryCommand(),
		NewHistoryCommand(),
		NewGuardianCommand(),
		NewPinCommand(),
		NewUnlockCommand(),
		NewLogsCommand(),
		NewVersionCommand(),
		NewInternalCommand(),
	)

	return rootCmd
}
