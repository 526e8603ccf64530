package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Rorical/PromptMachine/internal/config"
)

var useCmd = &cobra.Command{
	Use:   "use [profile-name]",
	Short: "Switch to a profile and open the editor",
	Long:  `Switch to the specified profile and immediately open the prompt editor.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := cfg.SwitchProfile(args[0]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}

		return runEditor(cmd, cfg)
	},
}

func init() {
	addEditorFlags(useCmd.Flags())
	rootCmd.AddCommand(useCmd)
}
