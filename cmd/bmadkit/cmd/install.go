package cmd

import (
	"fmt"
	"sort"

	"github.com/barysiuk/bmadkit/internal/core"
	"github.com/barysiuk/bmadkit/internal/core/hook"
	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install [module...]",
	Short: "Install modules into a project",
	Long: `Install BMAD modules into the project folder (default: _bmad).

The core module is always installed first. Modules are installed after the
modules they depend on. Without arguments the modules named in the config
are installed, or the modules marked as selected by default.

Custom modules are found by walking the project. Use --custom to fetch one
from a local directory or a git repository first:
  bmadkit install --custom ./my-module
  bmadkit install --custom owner/repo
  bmadkit install --custom git@github.com:owner/repo.git#v1.2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd, args, false)
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
	addProjectFlags(installCmd)
	addIDEsFlag(installCmd)
	installCmd.Flags().Bool("all", false, "Install every available module")
	installCmd.Flags().StringArray("custom", nil, "Fetch a custom module before installing (repeatable)")
	installCmd.Flags().Bool("skip-docs", false, "Do not install user documentation")
	installCmd.Flags().Bool("skip-game", false, "Skip game planning workflows")
	installCmd.Flags().BoolP("verbose", "v", false, "Show every step")
}

// runSession installs or updates modules and prints a summary.
func runSession(cmd *cobra.Command, args []string, update bool) error {
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
	verbose, _ := cmd.Flags().GetBool("verbose")
	log := newLogger(cmd.OutOrStdout(), cmd.ErrOrStderr(), verbose)

	folder := cfg.FolderName()
	rec, err := core.ReadRecord(dir, folder)
	if err != nil {
		return err
	}
	if update && rec == nil {
		return fmt.Errorf("no installation found in %s; run bmadkit install first", dir)
	}

	modules := args
	if !update {
		customs, _ := cmd.Flags().GetStringArray("custom")
		for _, src := range customs {
			m, err := core.FetchCustom(cmd.Context(), src, dir, folder)
			if err != nil {
				return err
			}
			log.Success(fmt.Sprintf("Fetched custom module %s from %s", m.ID, src))
			modules = append(modules, m.ID)
		}
	}

	catalog, err := discover(cfg, dir, log)
	if err != nil {
		return err
	}

	all, _ := cmd.Flags().GetBool("all")
	modules = selectModules(modules, all, update, cfg, rec, catalog)

	ctx := core.InstallContext{
		ProjectRoot: dir,
		FolderName:  folder,
		IDEs:        resolveIDEs(cfg, rec, dir),
		Flags:       cfg.Flags(),
		Locator:     catalog,
		Hooks:       hook.Default(),
		Logger:      log,
		Answers:     cfg.Answers,
	}

	force, _ := cmd.Flags().GetBool("force")
	res, err := core.NewSession(ctx).Run(core.SessionOptions{
		Modules: modules,
		Update:  update,
		Force:   force,
		Version: Version,
	})
	if err != nil {
		return err
	}
	printSessionSummary(cmd, res)

	if !res.OK() {
		return fmt.Errorf("%d module(s) failed", len(res.Failed))
	}
	return nil
}

// selectModules decides what a session installs when no module is named.
func selectModules(named []string, all, update bool, cfg *core.Config, rec *core.Record, catalog *core.Catalog) []string {
	if all {
		var ids []string
		for _, m := range catalog.All() {
			if m.ID != core.CoreModuleID {
				ids = append(ids, m.ID)
			}
		}
		return ids
	}
	if len(named) > 0 {
		return named
	}
	if update {
		return installedModules(rec)
	}
	if len(cfg.Modules) > 0 {
		return cfg.Modules
	}
	var ids []string
	for _, m := range catalog.Modules {
		if m.DefaultSelected {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

func printSessionSummary(cmd *cobra.Command, res *core.SessionResult) {
	out := cmd.OutOrStdout()

	var agents int
	for _, r := range res.Installed {
		agents += len(r.Agents)
	}
	fmt.Fprintf(out, "\n%s %d module(s), %d agent(s), %d workflow(s)\n",
		headerStyle.Render("Installed"), len(res.Installed), agents, len(res.Workflows))

	for _, gen := range res.Launchers {
		fmt.Fprintf(out, "  %s: %d launcher(s)\n", systemDisplayNames([]string{gen.System}), len(gen.Files))
	}

	failed := make([]string, 0, len(res.Failed))
	for id := range res.Failed {
		failed = append(failed, id)
	}
	sort.Strings(failed)
	for _, id := range failed {
		fmt.Fprintf(out, "  %s %s: %v\n", errorStyle.Render("failed"), id, res.Failed[id])
	}
}
