package core

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/barysiuk/bmadkit/internal/core/agent"
	"github.com/barysiuk/bmadkit/internal/core/hook"
	"github.com/barysiuk/bmadkit/internal/core/placeholder"
)

// InstallContext is everything an installation depends on. It is a value:
// derive variants with the With methods instead of mutating it.
type InstallContext struct {
	ProjectRoot string
	FolderName  string
	Core        ModuleConfig // effective core configuration
	IDEs        []string
	Flags       FeatureFlags
	Locator     ModuleLocator
	Hooks       *hook.Registry
	Logger      Logger
	Answers     map[string]map[string]any // preset prompt answers by module ID
}

// WithCore returns a copy of c using core as the core configuration.
func (c InstallContext) WithCore(core ModuleConfig) InstallContext {
	c.Core = core.Clone()
	return c
}

// InstallDir returns <project>/<folder>.
func (c InstallContext) InstallDir() string {
	return filepath.Join(c.ProjectRoot, c.folder())
}

// ModuleDir returns the installed tree of a module.
func (c InstallContext) ModuleDir(id string) string {
	return filepath.Join(c.InstallDir(), id)
}

// OverlayPath returns the customization overlay of an installed agent.
func (c InstallContext) OverlayPath(moduleID, agentName string) string {
	return filepath.Join(c.InstallDir(), "_config", "agents", moduleID+"-"+agentName+".customize.yaml")
}

func (c InstallContext) folder() string {
	if c.FolderName == "" {
		return placeholder.DefaultFolderName
	}
	return c.FolderName
}

// InstallOptions configures Install.
type InstallOptions struct {
	Track func(path string) // called with every file written
}

// UpdateOptions configures Update.
type UpdateOptions struct {
	Force bool // remove and reinstall instead of syncing
	Track func(path string)
}

// CompiledAgent is one agent written during an installation.
type CompiledAgent struct {
	Name          string
	Source        string
	Output        string
	IgnoredFields []string
}

// InstallResult describes one module installation. Mode is the path the
// installation took.
type InstallResult struct {
	Module      string
	Version     string
	Kind        SourceKind
	Path        string
	Mode        InstallMode
	Config      ModuleConfig
	Files       []string // module-relative, slash-separated
	Preserved   []string // files a sync left alone because they were newer
	Agents      []CompiledAgent
	Vendored    []VendoredWorkflow
	Sidecars    map[string]*SidecarResult // by agent name
	HookOutcome hook.Outcome
	Warnings    []string
}

// Installer installs and updates modules into a project.
type Installer struct {
	ctx     InstallContext
	paths   *placeholder.Resolver // absolute filesystem paths
	content *placeholder.Resolver // file contents, relocatable
}

// NewInstaller creates an Installer for ctx.
func NewInstaller(ctx InstallContext) *Installer {
	ctx.FolderName = ctx.folder()
	ctx.Logger = loggerOrNop(ctx.Logger)
	paths := placeholder.New(ctx.ProjectRoot, ctx.FolderName)
	return &Installer{ctx: ctx, paths: paths, content: paths.ForContent()}
}

// Context returns the installer's context.
func (inst *Installer) Context() InstallContext { return inst.ctx }

// Install copies a module into the project. An existing installation of the
// module is removed first.
func (inst *Installer) Install(moduleID string, opts InstallOptions) (*InstallResult, error) {
	m, err := inst.locate(moduleID)
	if err != nil {
		return nil, err
	}
	target := inst.ctx.ModuleDir(m.ID)
	mode := ModeInstalling
	if dirExists(target) {
		mode = ModeReinstalling
		if err := os.RemoveAll(target); err != nil {
			return nil, fmt.Errorf("removing previous installation of %s: %w", m.ID, err)
		}
	}
	return inst.run(m, target, mode, opts.Track)
}

// Update brings an installed module up to date with its source. Files in
// the installation that are newer than their source are kept. A module that
// is not installed, or Force, falls back to Install.
func (inst *Installer) Update(moduleID string, opts UpdateOptions) (*InstallResult, error) {
	m, err := inst.locate(moduleID)
	if err != nil {
		return nil, err
	}
	target := inst.ctx.ModuleDir(m.ID)
	if opts.Force || !dirExists(target) {
		return inst.Install(moduleID, InstallOptions{Track: opts.Track})
	}
	return inst.run(m, target, ModeSyncing, opts.Track)
}

// BuildAgents recompiles the agents of an installed module from their
// sources and overlays. When name is not empty only that agent is built.
// Nothing but the compiled agents and sidecars is touched.
func (inst *Installer) BuildAgents(moduleID, name string) (*InstallResult, error) {
	m, err := inst.locate(moduleID)
	if err != nil {
		return nil, err
	}
	target := inst.ctx.ModuleDir(m.ID)
	if !dirExists(target) {
		return nil, fmt.Errorf("module %s is not installed", m.ID)
	}
	cfg, err := ReadModuleConfig(filepath.Join(target, "config.yaml"))
	if err != nil {
		return nil, err
	}
	r := &installRun{
		inst:   inst,
		m:      m,
		target: target,
		filter: newCopyFilter(inst.ctx.Flags, cfg),
		only:   name,
		res: &InstallResult{
			Module:   m.ID,
			Version:  m.Version,
			Kind:     m.Kind,
			Path:     target,
			Mode:     ModeInstalled,
			Config:   cfg,
			Sidecars: map[string]*SidecarResult{},
		},
	}
	if err := r.compileAgents(); err != nil {
		return nil, fmt.Errorf("compiling agents of %s: %w", m.ID, err)
	}
	return r.res, nil
}

// Installed reports whether a module has an installed tree.
func (inst *Installer) Installed(moduleID string) bool {
	return dirExists(inst.ctx.ModuleDir(moduleID))
}

func (inst *Installer) locate(id string) (*ModuleDescriptor, error) {
	if inst.ctx.Locator == nil {
		return nil, &ModuleNotFoundError{ID: id}
	}
	m, ok := inst.ctx.Locator.Find(id)
	if !ok {
		return nil, &ModuleNotFoundError{ID: id}
	}
	return m, nil
}

// installRun carries the state of one Install or Update call.
type installRun struct {
	inst   *Installer
	m      *ModuleDescriptor
	target string
	track  func(string)
	filter copyFilter
	only   string // compile only this agent
	res    *InstallResult
}

func (inst *Installer) run(m *ModuleDescriptor, target string, mode InstallMode, track func(string)) (*InstallResult, error) {
	r := &installRun{
		inst:   inst,
		m:      m,
		target: target,
		track:  track,
		res: &InstallResult{
			Module:   m.ID,
			Version:  m.Version,
			Kind:     m.Kind,
			Path:     target,
			Mode:     mode,
			Sidecars: map[string]*SidecarResult{},
		},
	}

	cfg, err := inst.moduleConfig(m)
	if err != nil {
		return nil, err
	}
	r.res.Config = cfg
	r.filter = newCopyFilter(inst.ctx.Flags, cfg)

	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", target, err)
	}

	v := &Vendorer{
		Locator:    inst.ctx.Locator,
		Resolver:   inst.content,
		FolderName: inst.ctx.FolderName,
		Logger:     inst.ctx.Logger,
		Sync:       mode == ModeSyncing,
	}
	vendored, warnings, err := v.Vendor(m.Path, target, m.ID)
	r.res.Warnings = append(r.res.Warnings, warnings...)
	if err != nil {
		return nil, err
	}
	r.res.Vendored = vendored
	for _, vw := range vendored {
		for _, f := range vw.Written {
			r.written(f)
		}
		for _, f := range vw.Preserved {
			r.res.Preserved = append(r.res.Preserved, slashRel(target, f))
		}
	}

	if err := r.copyTree(); err != nil {
		return nil, fmt.Errorf("copying %s: %w", m.ID, err)
	}
	if err := r.compileAgents(); err != nil {
		return nil, fmt.Errorf("compiling agents of %s: %w", m.ID, err)
	}
	if err := r.ensureActivation(); err != nil {
		return nil, fmt.Errorf("checking agents of %s: %w", m.ID, err)
	}

	cfgPath := filepath.Join(target, "config.yaml")
	if err := WriteModuleConfig(cfgPath, m.ID, cfg, inst.ctx.Core); err != nil {
		return nil, err
	}
	r.written(cfgPath)

	r.runHook(cfg)
	return r.res, nil
}

// moduleConfig resolves a module's prompts and applies its custom values.
func (inst *Installer) moduleConfig(m *ModuleDescriptor) (ModuleConfig, error) {
	cfg := ResolvePrompts(m.Prompts, inst.ctx.Answers[m.ID], inst.ctx.Core, inst.content)
	custom, path, err := readCustomValues(m.Path)
	if err != nil {
		return cfg, err
	}
	merged, overridden := MergeConfig(cfg, custom, nil)
	for _, key := range overridden {
		inst.ctx.Logger.Info(fmt.Sprintf("%s: %s overrides %s", m.ID, filepath.Base(path), key))
	}
	return merged, nil
}

func (r *installRun) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.res.Warnings = append(r.res.Warnings, msg)
	r.inst.ctx.Logger.Warn(msg)
}

func (r *installRun) written(path string) {
	r.res.Files = append(r.res.Files, slashRel(r.target, path))
	if r.track != nil {
		r.track(path)
	}
}

func (r *installRun) syncing() bool { return r.res.Mode == ModeSyncing }

// copyTree copies the filtered module source into the target.
func (r *installRun) copyTree() error {
	src := r.m.Path
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := slashRel(src, path)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || r.filter.excludeDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if r.filter.excludeFile(rel, path) {
			return nil
		}

		dst := filepath.Join(r.target, filepath.FromSlash(rel))
		if r.syncing() && targetIsNewer(dst, path) {
			r.res.Preserved = append(r.res.Preserved, rel)
			return nil
		}
		if d.Name() == "workflow.yaml" {
			if err := r.copyWorkflowDescriptor(path, dst, rel); err != nil {
				return err
			}
		} else if err := r.inst.content.CopyFile(path, dst); err != nil {
			return err
		}
		r.written(dst)
		return nil
	})
}

// copyWorkflowDescriptor installs a workflow.yaml without its web_bundle
// section. A descriptor that cannot be parsed is copied as is.
func (r *installRun) copyWorkflowDescriptor(src, dst, rel string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	stripped, _, err := StripTopLevelKey(data, "web_bundle")
	if err != nil {
		r.warn("%s/%s: could not strip web_bundle (%v), copied unchanged", r.m.ID, rel, err)
		return copyFile(src, dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, r.inst.content.ResolveBytes(stripped), 0o644)
}

// compileAgents compiles every agent source of the module. A broken agent
// is reported and skipped.
func (r *installRun) compileAgents() error {
	agentsRoot := filepath.Join(r.m.Path, "agents")
	if !dirExists(agentsRoot) {
		return nil
	}
	var sources []string
	err := filepath.WalkDir(agentsRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != agentsRoot && (isSidecarDir(d.Name()) || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".agent.yaml") {
			sources = append(sources, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var prepared []*preparedAgent
	var jobs []agent.Job
	for _, src := range sources {
		rel := slashRel(r.m.Path, src)
		if r.filter.skipGame && isGamePath(rel) {
			continue
		}
		if r.only != "" && agent.NameFromPath(src) != r.only {
			continue
		}
		p, err := r.prepareAgent(agentsRoot, src)
		if err != nil {
			return err
		}
		if p == nil {
			continue
		}
		if p.job != nil {
			jobs = append(jobs, *p.job)
		}
		prepared = append(prepared, p)
	}

	results := agent.CompileAll(jobs)
	next := 0
	for _, p := range prepared {
		if p.job != nil {
			res := results[next]
			next++
			if res.Err != nil {
				r.warn("skipping agent %s: %v", p.name, res.Err)
				continue
			}
			if err := r.writeAgent(p, res.Result); err != nil {
				return err
			}
		}
		if p.def.Metadata.HasSidecar {
			if err := r.installSidecar(filepath.Dir(p.src), p.name, p.sidecarRef); err != nil {
				return err
			}
		}
	}
	return nil
}

// preparedAgent is an agent source ready for compilation. job is nil when a
// sync keeps the installed document.
type preparedAgent struct {
	name       string
	src        string
	out        string
	def        *agent.Definition
	sidecarRef string
	job        *agent.Job
}

// prepareAgent parses an agent source and makes sure its overlay exists. It
// returns nil for agents that are broken or web only.
func (r *installRun) prepareAgent(agentsRoot, src string) (*preparedAgent, error) {
	ctx := r.inst.ctx
	name := agent.NameFromPath(src)

	raw, err := os.ReadFile(src)
	if err != nil {
		return nil, err
	}
	def, err := agent.ParseDefinition(raw, src)
	if err != nil {
		r.warn("skipping agent %s: %v", name, err)
		return nil, nil
	}
	if def.Metadata.LocalSkip {
		ctx.Logger.Info(fmt.Sprintf("Skipping %s (web only)", name))
		return nil, nil
	}

	overlayPath := ctx.OverlayPath(r.m.ID, name)
	if !fileExists(overlayPath) {
		if err := writeFileAtomic(overlayPath, agent.DefaultOverlay()); err != nil {
			return nil, err
		}
		if r.track != nil {
			r.track(overlayPath)
		}
	}
	overlay, err := agent.LoadOverlay(overlayPath)
	if err != nil {
		r.warn("ignoring overlay for %s: %v", name, err)
		overlay = nil
	}

	relDir := slashRel(agentsRoot, filepath.Dir(src))
	p := &preparedAgent{
		name:       name,
		src:        src,
		out:        filepath.Join(r.target, "agents", filepath.FromSlash(relDir), name+".md"),
		def:        def,
		sidecarRef: r.sidecarRef(name),
	}
	if r.syncing() && targetIsNewer(p.out, src, overlayPath) {
		r.res.Preserved = append(r.res.Preserved, slashRel(r.target, p.out))
		return p, nil
	}
	p.job = &agent.Job{Source: raw, Options: agent.Options{
		SourcePath:  src,
		Module:      r.m.ID,
		Name:        name,
		Overlay:     overlay,
		SidecarPath: p.sidecarRef,
	}}
	return p, nil
}

func (r *installRun) writeAgent(p *preparedAgent, compiled *agent.Result) error {
	if len(compiled.IgnoredFields) > 0 {
		r.warn("overlay for %s lists unknown fields: %s", p.name, strings.Join(compiled.IgnoredFields, ", "))
	}
	if err := os.MkdirAll(filepath.Dir(p.out), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(p.out, r.inst.content.ResolveBytes(compiled.Content), 0o644); err != nil {
		return err
	}
	r.written(p.out)
	r.res.Agents = append(r.res.Agents, CompiledAgent{
		Name:          p.name,
		Source:        p.src,
		Output:        p.out,
		IgnoredFields: compiled.IgnoredFields,
	})
	return nil
}

// sidecarRef returns the placeholder-form sidecar folder of an agent.
func (r *installRun) sidecarRef(name string) string {
	base := strings.TrimSuffix(r.inst.ctx.Core.String("agent_sidecar_folder"), "/")
	if base == "" {
		base = r.inst.content.Resolve(DefaultSidecarBase)
	}
	return base + "/" + name + "-sidecar"
}

func (r *installRun) installSidecar(agentDir, name, ref string) error {
	dst := filepath.FromSlash(r.inst.paths.Resolve(ref))
	src := sidecarSource(agentDir, name)
	if src == "" {
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return fmt.Errorf("creating sidecar for %s: %w", name, err)
		}
		r.res.Sidecars[name] = &SidecarResult{}
		return nil
	}
	res, err := CopySidecarFiles(src, dst)
	if err != nil {
		return err
	}
	r.res.Sidecars[name] = res
	if r.track != nil {
		for _, f := range res.Copied {
			r.track(filepath.Join(dst, filepath.FromSlash(f)))
		}
	}
	return nil
}

// ensureActivation re-checks every installed agent document and injects the
// activation block where it is missing.
func (r *installRun) ensureActivation() error {
	dir := filepath.Join(r.target, "agents")
	if !dirExists(dir) {
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if !bytes.Contains(data, []byte("<agent")) {
			return nil
		}
		updated, changed := agent.InjectActivation(data, r.m.ID)
		if !changed {
			return nil
		}
		if err := os.WriteFile(path, r.inst.content.ResolveBytes(updated), 0o644); err != nil {
			return err
		}
		r.inst.ctx.Logger.Info(fmt.Sprintf("Added activation block to %s", d.Name()))
		return nil
	})
}

func (r *installRun) runHook(cfg ModuleConfig) {
	ctx := r.inst.ctx
	outcome, err := ctx.Hooks.Run(hook.Context{
		ModuleID:    r.m.ID,
		ProjectRoot: ctx.ProjectRoot,
		FolderName:  ctx.FolderName,
		Config:      cfg.Map(),
		CoreConfig:  ctx.Core.Map(),
		IDEs:        ctx.IDEs,
		Logger:      ctx.Logger,
	})
	r.res.HookOutcome = outcome
	switch outcome {
	case hook.Declined:
		r.warn("post-install hook for %s did not complete", r.m.ID)
	case hook.Failed:
		ctx.Logger.Error(err.Error())
	}
}
