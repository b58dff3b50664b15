package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"custody/go-client/internal/enclave"
)

func loginCmd() *cobra.Command {
	var bundle, embeddedKey string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Decrypt a login credential bundle with the device's embedded key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bundle == "" || embeddedKey == "" {
				return fmt.Errorf("--bundle and --embedded-key are required")
			}
			keyHex, err := codec.DecryptCredentialBundle(bundle, embeddedKey)
			if err != nil {
				return err
			}
			fmt.Println(keyHex)
			return nil
		},
	}
	cmd.Flags().StringVar(&bundle, "bundle", "", "base58check credential bundle")
	cmd.Flags().StringVar(&embeddedKey, "embedded-key", "", "embedded P-256 private key (hex scalar)")
	return cmd
}

func exportCmd() *cobra.Command {
	var bundle, embeddedKey, orgID, userID, format string
	var mnemonic bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Verify and decrypt a wallet/key export bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bundle == "" || embeddedKey == "" {
				return fmt.Errorf("--bundle and --embedded-key are required")
			}
			out, err := codec.DecryptExportBundle(bundle, embeddedKey, enclave.ExportOptions{
				OrganizationID: orgID,
				UserID:         userID,
				Format:         enclave.KeyFormat(format),
				ReturnMnemonic: mnemonic,
			})
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&bundle, "bundle", "", "export bundle JSON")
	cmd.Flags().StringVar(&embeddedKey, "embedded-key", "", "embedded P-256 private key (hex scalar)")
	cmd.Flags().StringVar(&orgID, "organization-id", "", "expected organization id")
	cmd.Flags().StringVar(&userID, "user-id", "", "expected user id")
	cmd.Flags().StringVar(&format, "format", string(enclave.KeyFormatHexadecimal), "output key format: HEXADECIMAL or SOLANA")
	cmd.Flags().BoolVar(&mnemonic, "mnemonic", false, "decode the plaintext as a mnemonic")
	return cmd
}

func importCmd() *cobra.Command {
	var bundle, mnemonic, orgID, userID string
	var validate bool
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Seal a wallet mnemonic to a verified import bundle's target key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bundle == "" || mnemonic == "" {
				return fmt.Errorf("--bundle and --mnemonic are required")
			}
			out, err := codec.EncryptWalletToBundle(mnemonic, bundle, enclave.ImportOptions{
				OrganizationID:   orgID,
				UserID:           userID,
				ValidateMnemonic: validate,
			})
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&bundle, "bundle", "", "import bundle JSON")
	cmd.Flags().StringVar(&mnemonic, "mnemonic", "", "BIP-39 mnemonic to seal")
	cmd.Flags().StringVar(&orgID, "organization-id", "", "expected organization id")
	cmd.Flags().StringVar(&userID, "user-id", "", "expected user id")
	cmd.Flags().BoolVar(&validate, "validate", true, "enforce BIP-39 validity before sealing")
	return cmd
}
