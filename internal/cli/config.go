package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Cfg == nil {
			return fmt.Errorf("configuration not initialized")
		}

		fmt.Printf("base path:       %s\n", BasePath)
		fmt.Printf("store url:       %s\n", Cfg.StoreURL)
		fmt.Printf("workspace:       %s\n", Cfg.Workspace)
		fmt.Printf("fragment type:   %s\n", Cfg.FragmentType)
		fmt.Printf("list limit:      %d\n", Cfg.ListLimit)
		fmt.Printf("allowed origin:  %s\n", Cfg.AllowedOrigin)
		fmt.Printf("poll interval:   %s\n", Cfg.PollInterval)
		fmt.Printf("relay addr:      %s\n", Cfg.RelayAddr)
		fmt.Printf("auth client id:  %s\n", Cfg.Auth.ClientID)
		fmt.Printf("auth url:        %s\n", Cfg.Auth.AuthURL)
		fmt.Printf("token url:       %s\n", Cfg.Auth.TokenURL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
