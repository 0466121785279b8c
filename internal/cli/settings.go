package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change durable client settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Settings == nil {
			return fmt.Errorf("settings store not initialized")
		}

		conn := Settings.Connection()
		cardSize, docked := Settings.Preferences()

		fmt.Printf("workspace:      %s\n", valueOrDefault(conn.Workspace))
		fmt.Printf("fragment type:  %s\n", valueOrDefault(conn.FragmentType))
		if conn.Token != "" {
			fmt.Println("store token:    (set manually)")
		} else {
			fmt.Println("store token:    (from login session)")
		}
		fmt.Printf("card size:      %s\n", valueOrDefault(cardSize))
		fmt.Printf("docked panel:   %v\n", docked)
		return nil
	},
}

var settingsConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Set the connection used for the fragment store",
	Long: `Set the persisted connection settings. A token set here is used for
store calls instead of the login session's access token, for stores that
run without an identity provider.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Settings == nil {
			return fmt.Errorf("settings store not initialized")
		}

		conn := Settings.Connection()
		if cmd.Flags().Changed("token") {
			conn.Token, _ = cmd.Flags().GetString("token")
		}
		if cmd.Flags().Changed("workspace") {
			conn.Workspace, _ = cmd.Flags().GetString("workspace")
		}
		if cmd.Flags().Changed("type") {
			conn.FragmentType, _ = cmd.Flags().GetString("type")
		}

		if err := Settings.SetConnection(conn); err != nil {
			return fmt.Errorf("saving connection settings: %w", err)
		}
		fmt.Println("Connection settings saved.")
		return nil
	},
}

var settingsPrefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Set display preferences",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Settings == nil {
			return fmt.Errorf("settings store not initialized")
		}

		cardSize, docked := Settings.Preferences()
		if cmd.Flags().Changed("card-size") {
			cardSize, _ = cmd.Flags().GetString("card-size")
			if cardSize != "compact" && cardSize != "normal" {
				return fmt.Errorf("invalid card size %q: must be compact or normal", cardSize)
			}
		}
		if cmd.Flags().Changed("docked") {
			docked, _ = cmd.Flags().GetBool("docked")
		}

		if err := Settings.SetPreferences(cardSize, docked); err != nil {
			return fmt.Errorf("saving preferences: %w", err)
		}
		fmt.Println("Preferences saved.")
		return nil
	},
}

func valueOrDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}

func init() {
	settingsConnectCmd.Flags().String("token", "", "manual store token (empty to fall back to the login session)")
	settingsConnectCmd.Flags().String("workspace", "", "workspace identifier")
	settingsConnectCmd.Flags().String("type", "", "fragment type identifier")

	settingsPrefsCmd.Flags().String("card-size", "", "board card size (compact, normal)")
	settingsPrefsCmd.Flags().Bool("docked", false, "dock the agent panel")

	settingsCmd.AddCommand(settingsConnectCmd, settingsPrefsCmd)
	rootCmd.AddCommand(settingsCmd)
}
