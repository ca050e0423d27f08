package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/squeakbox/squeakbox/internal/keyring"
)

func NewPinCommand() *cobra.Command {
	pinCmd := &cobra.Command{
		Use:   "pin",
		Short: "Manage the parent PIN",
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Set or change the parent PIN",
		Long: `Set or change the parent PIN.

The PIN itself never leaves this machine; only a bcrypt hash is stored in
the system keyring.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			pin, err := keyring.PromptAndConfirmPIN()
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}

			hash, err := keyring.HashPIN(pin)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}

			if err := keyring.SetPINHash(hash); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			slog.Info("Parent PIN saved to system keyring")
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the parent PIN",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := keyring.DeletePINHash(); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			slog.Info("Parent PIN removed")
		},
	}

	pinCmd.AddCommand(setCmd, clearCmd)
	return pinCmd
}
