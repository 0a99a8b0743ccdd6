package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/switchboardhq/switchboard/internal/vault"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a token encryption key",
	Long: `Generate a random 256-bit key for the token vault, printed as an
environment assignment. Changing the key makes stored tokens unreadable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := vault.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Printf("%s=%s\n", vault.KeyEnv, key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
