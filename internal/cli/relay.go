package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"fragboard/internal/relay"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the local relay server for the browser client",
	Long: `Run the local HTTP relay the browser client talks to.

It serves the non-secret client configuration on /config, forwards token
requests to the identity provider on /auth/token, and reverse-proxies
fragment store calls under /api.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Cfg == nil {
			return fmt.Errorf("configuration not initialized")
		}

		srv, err := relay.New(relay.Config{
			Addr:          Cfg.RelayAddr,
			StoreURL:      Cfg.StoreURL,
			TokenURL:      Cfg.Auth.TokenURL,
			ClientID:      Cfg.Auth.ClientID,
			AuthURL:       Cfg.Auth.AuthURL,
			AllowedOrigin: Cfg.AllowedOrigin,
			Workspace:     Cfg.Workspace,
			FragmentType:  Cfg.FragmentType,
		}, EventLog)
		if err != nil {
			return fmt.Errorf("configuring relay: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		fmt.Printf("relay listening on %s\n", Cfg.RelayAddr)
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)
}
