package core

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/barysiuk/bmadkit/internal/core/manifest"
	"github.com/barysiuk/bmadkit/internal/core/system"
)

// Session installs or updates a set of modules into one project and then
// refreshes the manifests, the IDE launchers and the installation record.
// It lives in the core package so it can import the system sub-package
// without circular dependencies.
type Session struct {
	ctx InstallContext
}

// NewSession creates a Session for ctx.
func NewSession(ctx InstallContext) *Session {
	ctx.FolderName = ctx.folder()
	ctx.Logger = loggerOrNop(ctx.Logger)
	return &Session{ctx: ctx}
}

// SessionOptions configures Run.
type SessionOptions struct {
	Modules []string // requested module IDs; core is always added
	Update  bool     // sync installed modules instead of reinstalling
	Force   bool     // with Update, reinstall anyway
	Version string   // installer version written to the record
	Track   func(path string)
	Now     func() time.Time
}

// SessionResult is the outcome of a session. A module that failed is listed
// in Failed and the remaining modules still run.
type SessionResult struct {
	Order     []string
	Installed []*InstallResult
	Failed    map[string]error
	Warnings  []string
	Workflows []manifest.Workflow
	Agents    []manifest.Agent
	Launchers []*system.GenerateResult
	Record    *Record
}

// OK reports whether every module succeeded.
func (r *SessionResult) OK() bool { return len(r.Failed) == 0 }

// Run executes the session:
// 1. Order modules (core first, dependencies before dependents)
// 2. Install or update each module, isolating failures
// 3. Rebuild the workflow and agent manifests from the installed tree
// 4. Regenerate launchers for every configured IDE
// 5. Update the installation record
func (s *Session) Run(opts SessionOptions) (*SessionResult, error) {
	ctx := s.ctx
	if ctx.Locator == nil {
		return nil, fmt.Errorf("no module sources configured")
	}
	systems, err := system.ByNames(ctx.IDEs)
	if err != nil {
		return nil, err
	}

	ids := opts.Modules
	if _, ok := ctx.Locator.Find(CoreModuleID); ok {
		ids = append([]string{CoreModuleID}, ids...)
	} else {
		ctx.Logger.Warn("core module not found in sources; installing without it")
	}

	inst := NewInstaller(ctx)
	order, warnings, err := OrderModules(ids, ctx.Locator, inst.Installed)
	if err != nil {
		return nil, err
	}
	res := &SessionResult{Order: order, Failed: map[string]error{}}
	for _, w := range warnings {
		ctx.Logger.Warn(w)
		res.Warnings = append(res.Warnings, w)
	}

	if ctx.Core.Len() == 0 {
		if core, err := ReadModuleConfig(filepath.Join(ctx.ModuleDir(CoreModuleID), "config.yaml")); err == nil {
			ctx = ctx.WithCore(core)
		}
	}

	for _, id := range order {
		inst := NewInstaller(ctx)
		var r *InstallResult
		if opts.Update {
			r, err = inst.Update(id, UpdateOptions{Force: opts.Force, Track: opts.Track})
		} else {
			r, err = inst.Install(id, InstallOptions{Track: opts.Track})
		}
		if err != nil {
			ctx.Logger.Error(fmt.Sprintf("%s: %v", id, err))
			res.Failed[id] = err
			continue
		}
		res.Installed = append(res.Installed, r)
		res.Warnings = append(res.Warnings, r.Warnings...)
		if id == CoreModuleID {
			ctx = ctx.WithCore(r.Config)
		}
		ctx.Logger.Success(fmt.Sprintf("Installed %s (%d files)", id, len(r.Files)))
	}

	res.Workflows, res.Agents, err = WriteManifests(ctx.ProjectRoot, ctx.FolderName)
	if err != nil {
		return res, fmt.Errorf("writing manifests: %w", err)
	}

	res.Launchers, err = generateLaunchers(ctx.ProjectRoot, systems, system.LauncherInput{
		FolderName: ctx.FolderName,
		Workflows:  res.Workflows,
		Agents:     res.Agents,
	})
	if err != nil {
		return res, err
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	res.Record, err = updateRecord(ctx.ProjectRoot, ctx.FolderName, opts.Version, ctx.IDEs, res.Installed, now().UTC())
	if err != nil {
		return res, fmt.Errorf("updating installation record: %w", err)
	}
	return res, nil
}

// GenerateLaunchers regenerates the launchers of the given IDEs from the
// manifests of an existing installation.
func GenerateLaunchers(projectRoot, folderName string, systems []system.System) ([]*system.GenerateResult, error) {
	workflows, agents, err := ReadManifests(projectRoot, folderName)
	if err != nil {
		return nil, err
	}
	return generateLaunchers(projectRoot, systems, system.LauncherInput{
		FolderName: folderName,
		Workflows:  workflows,
		Agents:     agents,
	})
}

// RefreshIndexes rebuilds the manifests from the installed tree and
// regenerates the launchers of the named IDEs.
func RefreshIndexes(projectRoot, folderName string, ides []string) ([]*system.GenerateResult, error) {
	systems, err := system.ByNames(ides)
	if err != nil {
		return nil, err
	}
	workflows, agents, err := WriteManifests(projectRoot, folderName)
	if err != nil {
		return nil, fmt.Errorf("writing manifests: %w", err)
	}
	return generateLaunchers(projectRoot, systems, system.LauncherInput{
		FolderName: folderName,
		Workflows:  workflows,
		Agents:     agents,
	})
}

func generateLaunchers(projectRoot string, systems []system.System, in system.LauncherInput) ([]*system.GenerateResult, error) {
	var out []*system.GenerateResult
	for _, sys := range systems {
		gen, err := sys.Generate(projectRoot, in)
		if err != nil {
			return out, fmt.Errorf("generating launchers for %s: %w", sys.DisplayName(), err)
		}
		out = append(out, gen)
	}
	return out, nil
}
