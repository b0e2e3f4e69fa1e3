package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/barysiuk/bmadkit/internal/core"
	"github.com/barysiuk/bmadkit/internal/core/agent"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build [agent]",
	Short: "Recompile installed agents",
	Long: `Recompile agents of an installed project from their sources and
customization overlays (_bmad/_config/agents/<module>-<agent>.customize.yaml).

Only compiled agents and their memories are touched. The manifests and IDE
launchers are refreshed afterwards. With --watch the command keeps running
and rebuilds an agent whenever its source or overlay changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	addProjectFlags(buildCmd)
	buildCmd.Flags().Bool("all", false, "Build every agent of every installed module")
	buildCmd.Flags().BoolP("watch", "w", false, "Rebuild agents when their sources or overlays change")
	buildCmd.Flags().BoolP("verbose", "v", false, "Show every step")
}

// buildTarget is an agent to build. An empty agent means every agent of the
// module.
type buildTarget struct {
	module string
	agent  string
}

type builder struct {
	ctx     core.InstallContext
	catalog *core.Catalog
	modules []string
	ides    []string
	log     *cliLogger
	out     io.Writer
}

func runBuild(cmd *cobra.Command, args []string) error {
	var name string
	if len(args) == 1 {
		name = args[0]
	}
	all, _ := cmd.Flags().GetBool("all")
	switch {
	case name == "" && !all:
		return fmt.Errorf("specify an agent name or --all")
	case name != "" && all:
		return fmt.Errorf("--all cannot be combined with an agent name")
	}

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
	if rec == nil {
		return fmt.Errorf("no installation found in %s; run bmadkit install first", dir)
	}
	catalog, err := discover(cfg, dir, log)
	if err != nil {
		return err
	}

	ctx := core.InstallContext{
		ProjectRoot: dir,
		FolderName:  folder,
		Flags:       cfg.Flags(),
		Locator:     catalog,
		Logger:      log,
	}
	if coreCfg, err := core.ReadModuleConfig(filepath.Join(ctx.ModuleDir(core.CoreModuleID), "config.yaml")); err == nil {
		ctx = ctx.WithCore(coreCfg)
	}

	b := &builder{
		ctx:     ctx,
		catalog: catalog,
		ides:    rec.IDEs,
		log:     log,
		out:     cmd.OutOrStdout(),
	}
	for _, m := range rec.Modules {
		b.modules = append(b.modules, m.Name)
	}

	targets := make([]buildTarget, 0, len(b.modules))
	for _, id := range b.modules {
		targets = append(targets, buildTarget{module: id, agent: name})
	}
	n, err := b.build(targets)
	if err != nil {
		return err
	}
	if name != "" && n == 0 {
		return fmt.Errorf("agent %q not found in installed modules", name)
	}
	fmt.Fprintf(b.out, "Built %d agent(s)\n", n)

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		return b.watch(cmd.Context())
	}
	return nil
}

// build compiles the targets and refreshes the manifests and launchers. It
// returns the number of agents built.
func (b *builder) build(targets []buildTarget) (int, error) {
	inst := core.NewInstaller(b.ctx)
	total := 0
	for _, t := range targets {
		res, err := inst.BuildAgents(t.module, t.agent)
		var notFound *core.ModuleNotFoundError
		if errors.As(err, &notFound) {
			b.log.Warn(fmt.Sprintf("source of module %s not found; skipping", t.module))
			continue
		}
		if err != nil {
			return total, err
		}
		for _, a := range res.Agents {
			b.log.Success(fmt.Sprintf("Built %s/%s", t.module, a.Name))
		}
		total += len(res.Agents)
	}
	if _, err := core.RefreshIndexes(b.ctx.ProjectRoot, b.ctx.FolderName, b.ides); err != nil {
		return total, err
	}
	return total, nil
}

func (b *builder) watch(ctx context.Context) error {
	roots := []string{filepath.Join(b.ctx.InstallDir(), "_config", "agents")}
	for _, id := range b.modules {
		if m, ok := b.catalog.Find(id); ok {
			roots = append(roots, filepath.Join(m.Path, "agents"))
		}
	}

	w, err := core.NewWatcher(roots, core.DefaultDebounce, b.log)
	if err != nil {
		return err
	}
	defer w.Close()

	fmt.Fprintln(b.out, mutedStyle.Render("Watching for agent changes. Press Ctrl+C to stop."))
	return w.Run(ctx, func(paths []string) {
		targets := b.targets(paths)
		if len(targets) == 0 {
			return
		}
		if _, err := b.build(targets); err != nil {
			b.log.Error(err.Error())
		}
	})
}

// targets maps changed files to the agents they feed.
func (b *builder) targets(paths []string) []buildTarget {
	seen := make(map[buildTarget]bool)
	var out []buildTarget
	for _, p := range paths {
		t, ok := b.targetFor(p)
		if !ok || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].module != out[j].module {
			return out[i].module < out[j].module
		}
		return out[i].agent < out[j].agent
	})
	return out
}

func (b *builder) targetFor(path string) (buildTarget, bool) {
	base := filepath.Base(path)
	if stem, ok := strings.CutSuffix(base, ".customize.yaml"); ok {
		return overlayTarget(stem, b.modules)
	}
	for _, id := range b.modules {
		m, ok := b.catalog.Find(id)
		if !ok {
			continue
		}
		rel, err := filepath.Rel(filepath.Join(m.Path, "agents"), path)
		if err == nil && !strings.HasPrefix(rel, "..") {
			return buildTarget{module: id, agent: agent.NameFromPath(path)}, true
		}
	}
	return buildTarget{}, false
}

// overlayTarget splits an overlay stem ("bmm-pm") into module and agent. The
// longest matching module ID wins so "bmm-extra-pm" prefers a module named
// "bmm-extra" over "bmm".
func overlayTarget(stem string, modules []string) (buildTarget, bool) {
	var best buildTarget
	for _, id := range modules {
		rest, ok := strings.CutPrefix(stem, id+"-")
		if !ok || rest == "" || len(id) <= len(best.module) {
			continue
		}
		best = buildTarget{module: id, agent: rest}
	}
	return best, best.module != ""
}
