// Package commands wires the custodyctl CLI: operator workflows over the
// credential-bundle codec and the local session store.
package commands

import (
	"github.com/spf13/cobra"

	"custody/go-client/internal/config"
	"custody/go-client/internal/enclave"
)

var (
	configPath string
	cfg        config.Config
	codec      *enclave.Codec
)

func Execute() error {
	root := &cobra.Command{
		Use:   "custodyctl",
		Short: "Operator CLI for the custody API client",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			codec = enclave.NewCodec(cfg.SignerPublicKey)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (optional)")

	root.AddCommand(loginCmd(), exportCmd(), importCmd(), walletCmd(), sessionsCmd(), keysCmd())
	return root.Execute()
}
