package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/flasharb/config"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a signing key for flash loan transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		privateKey, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s_PRIVATE_KEY=0x%x\n", config.EnvPrefix, crypto.FromECDSA(privateKey))
		fmt.Fprintf(out, "# address: %s\n", crypto.PubkeyToAddress(privateKey.PublicKey).Hex())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
