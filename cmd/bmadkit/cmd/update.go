package cmd

import "github.com/spf13/cobra"

var updateCmd = &cobra.Command{
	Use:   "update [module...]",
	Short: "Update installed modules from their sources",
	Long: `Update installed modules in place.

Files you edited after the last install are kept. Agents are recompiled and
their memories are preserved. Without arguments every installed module is
updated. Use --force to reinstall from scratch instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd, args, true)
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
	addProjectFlags(updateCmd)
	addIDEsFlag(updateCmd)
	updateCmd.Flags().Bool("force", false, "Reinstall instead of syncing")
	updateCmd.Flags().BoolP("verbose", "v", false, "Show every step")
}
