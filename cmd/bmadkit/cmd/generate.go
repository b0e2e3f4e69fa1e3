package cmd

import (
	"fmt"

	"github.com/barysiuk/bmadkit/internal/core"
	"github.com/barysiuk/bmadkit/internal/core/system"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Regenerate IDE launchers",
	Long: `Regenerate the IDE launchers of an installed project from its workflow
and agent manifests. IDEs default to the ones recorded at install time, then
to the ones detected in the project.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		cfg, err := d.settings(cmd)
		if err != nil {
			return err
		}
		dir, err := resolveTargetDir(cmd)
		if err != nil {
			return err
		}

		folder := cfg.FolderName()
		rec, err := core.ReadRecord(dir, folder)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("no installation found in %s; run bmadkit install first", dir)
		}

		ides := resolveIDEs(cfg, rec, dir)
		if len(ides) == 0 {
			return fmt.Errorf("no IDEs configured or detected; pass --ides")
		}
		systems, err := system.ByNames(ides)
		if err != nil {
			return err
		}

		results, err := core.GenerateLaunchers(dir, folder, systems)
		if err != nil {
			return err
		}
		for _, gen := range results {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d workflow(s), %d agent(s)\n",
				successStyle.Render("✓"), systemDisplayNames([]string{gen.System}), gen.Workflows, gen.Agents)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringP("dir", "d", "", "Project directory (default: current directory)")
	generateCmd.Flags().String("folder", "", "Install folder name (default: _bmad)")
	generateCmd.Flags().String("config", "", "TOML preset with folder, ides, modules and answers")
	addIDEsFlag(generateCmd)
}
