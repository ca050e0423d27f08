package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/squeakbox/squeakbox/internal/daemon"
	"github.com/squeakbox/squeakbox/internal/keyring"
)

func NewUnlockCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Unlock parental controls with the parent PIN",
		Long: `Unlock parental controls with the parent PIN.

Enforcement is suspended for the configured unlock duration, then resumes
automatically.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			pin, err := keyring.PromptPIN("Enter parent PIN")
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}

			response, err := daemon.SendCommand("UNLOCK " + pin)
			if err != nil {
				slog.Warn("Daemon is not running")
				os.Exit(1)
			}
			response.LogMessages()
			if response.IsError() {
				os.Exit(1)
			}
		},
	}
}
