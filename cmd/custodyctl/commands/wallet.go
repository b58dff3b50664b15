package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tyler-smith/go-bip39"
)

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Wallet helpers",
	}
	cmd.AddCommand(walletNewCmd())
	return cmd
}

func walletNewCmd() *cobra.Command {
	var words int
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a fresh BIP-39 mnemonic",
		RunE: func(cmd *cobra.Command, args []string) error {
			var bits int
			switch words {
			case 12:
				bits = 128
			case 24:
				bits = 256
			default:
				return fmt.Errorf("--words must be 12 or 24")
			}
			entropy, err := bip39.NewEntropy(bits)
			if err != nil {
				return err
			}
			mnemonic, err := bip39.NewMnemonic(entropy)
			if err != nil {
				return err
			}
			fmt.Println(mnemonic)
			return nil
		},
	}
	cmd.Flags().IntVar(&words, "words", 12, "mnemonic length: 12 or 24 words")
	return cmd
}
