package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/barysiuk/bmadkit/internal/core"
	"github.com/barysiuk/bmadkit/internal/core/system"
	"github.com/spf13/cobra"
)

// resolveTargetDir resolves the --dir flag or falls back to cwd. The result
// is absolute.
func resolveTargetDir(cmd *cobra.Command) (string, error) {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		return cwd, nil
	}
	abs, err := filepath.Abs(expandHome(dir))
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", dir, err)
	}
	return abs, nil
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

// splitList splits a comma-separated flag value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// addProjectFlags adds the flags every project command shares.
func addProjectFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("dir", "d", "", "Project directory (default: current directory)")
	cmd.Flags().StringP("source", "s", "", "Source tree holding src/core and src/modules")
	cmd.Flags().String("folder", "", "Install folder name (default: _bmad)")
	cmd.Flags().String("config", "", "TOML preset with folder, ides, modules and answers")
}

// addIDEsFlag adds --ides to a command.
func addIDEsFlag(cmd *cobra.Command) {
	cmd.Flags().String("ides", "", "Comma-separated IDE names: "+strings.Join(system.Names(system.All()), ", "))
}

// resolveIDEs picks the IDEs to generate launchers for: configured ones
// first, then the ones recorded by a previous install, then the ones
// detected in the project.
func resolveIDEs(cfg *core.Config, rec *core.Record, projectDir string) []string {
	if len(cfg.IDEs) > 0 {
		return cfg.IDEs
	}
	if rec != nil && len(rec.IDEs) > 0 {
		return rec.IDEs
	}
	return detectIDEs(projectDir)
}

func detectIDEs(projectDir string) []string {
	names := system.Names(system.DetectInFolder(projectDir))
	sort.Strings(names)
	return names
}

// discover lists the modules available to a project.
func discover(cfg *core.Config, projectDir string, log *cliLogger) (*core.Catalog, error) {
	catalog, err := core.NewDiscovery(core.DiscoveryOptions{
		SourceRoot:  cfg.Source,
		ProjectRoot: projectDir,
		FolderName:  cfg.FolderName(),
	}).ListAvailable()
	if err != nil {
		return nil, err
	}
	for _, s := range catalog.Skipped {
		log.Warn(fmt.Sprintf("skipped %s: %s (%v)", s.Path, s.Reason, s.Err))
	}
	for _, w := range catalog.Warnings {
		log.Warn(w)
	}
	return catalog, nil
}

// installedModules returns the module names of an installation record, core
// excluded.
func installedModules(rec *core.Record) []string {
	if rec == nil {
		return nil
	}
	var ids []string
	for _, m := range rec.Modules {
		if m.Name != core.CoreModuleID {
			ids = append(ids, m.Name)
		}
	}
	return ids
}

// systemDisplayNames converts system names to display names.
func systemDisplayNames(names []string) string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if sys, ok := system.ByName(name); ok {
			out = append(out, sys.DisplayName())
		} else {
			out = append(out, name)
		}
	}
	return strings.Join(out, ", ")
}
