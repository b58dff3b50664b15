package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"custody/go-client/internal/keys"
	"custody/go-client/internal/securestore"
)

func keysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List key pairs held by the local software keystore",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.StoreDir == "" || cfg.StorePassphrase == "" {
				return fmt.Errorf("storeDir and CUSTODY_STORE_PASSPHRASE are required")
			}
			store, err := securestore.Open(cfg.StoreDir, cfg.StorePassphrase)
			if err != nil {
				return err
			}
			backend, err := keys.NewSoftwareKeystore(store)
			if err != nil {
				return err
			}
			pairs, err := keys.Pairs(backend)
			if err != nil {
				return err
			}
			for _, pair := range pairs {
				fmt.Printf("%s\tbackend=%s\n", pair.PublicKeyHex, pair.Backend)
			}
			return nil
		},
	}
}
