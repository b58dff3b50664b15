package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"custody/go-client/internal/keys"
	"custody/go-client/internal/securestore"
	"custody/go-client/internal/session"
)

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List registered sessions in the local store",
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
			mgr, err := session.NewManager(session.Config{Store: store, Backend: backend})
			if err != nil {
				return err
			}
			sessionKeys, err := mgr.List()
			if err != nil {
				return err
			}
			for _, sk := range sessionKeys {
				sess, err := mgr.Get(sk)
				if err != nil {
					fmt.Printf("%s\t(missing record)\n", sk)
					continue
				}
				fmt.Printf("%s\torg=%s type=%s expires=%s\n",
					sk, sess.OrganizationID, sess.Type,
					time.Unix(sess.Expiry, 0).UTC().Format(time.RFC3339))
			}
			return nil
		},
	}
}
