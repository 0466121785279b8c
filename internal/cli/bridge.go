package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"fragboard/internal/bridge"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run the agent panel bridge on stdio",
	Long: `Run the message bridge used by the embedded agent panel, speaking one
JSON message per line on stdin/stdout.

The host process forwards the panel's postMessage frames (with their origin)
to stdin and relays stdout frames back to the panel. Messages from any origin
other than the configured allowed origin are dropped silently.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil || Auth == nil {
			return fmt.Errorf("bridge dependencies not initialized")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := Engine.Load(ctx); err != nil {
			return err
		}

		port := bridge.NewJSONLPort(os.Stdin, os.Stdout)
		b := bridge.New(Engine, Auth, port, Cfg.AllowedOrigin, Cfg.PollInterval, EventLog)
		if err := b.Run(ctx); err != nil {
			return fmt.Errorf("running bridge: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
}
