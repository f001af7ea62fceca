package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jensroland/git-aitrack/internal/config"
)

var (
	configForce  bool
	configGlobal bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or write settings",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective settings to a config file",
	Long: `Write the effective settings as TOML to .git/ai-track/config.toml, or
with --global to $HOME/.config/git-aitrack/config.toml.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		path := env.Paths.ConfigFile
		if configGlobal {
			if path = config.UserFile(); path == "" {
				return fmt.Errorf("cannot determine home directory")
			}
		}
		if err := config.Write(path, config.Current(), configForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := setup(); err != nil {
			return err
		}
		return config.Encode(cmd.OutOrStdout(), config.Current())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configInitCmd.Flags().BoolVar(&configGlobal, "global", false, "write the per-user file instead")
}
