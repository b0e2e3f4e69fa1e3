package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barysiuk/bmadkit/internal/core/system"
)

func fixedNow(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestSession_Run(t *testing.T) {
	ctx, log := testContext(t, sourceTree(t))
	ctx.IDEs = []string{"claude-code"}
	now := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

	res, err := NewSession(ctx).Run(SessionOptions{
		Modules: []string{"cis", "bmm"},
		Version: "6.0.0",
		Now:     fixedNow(now),
	})
	require.NoError(t, err)
	require.True(t, res.OK())

	assert.Equal(t, []string{"core", "cis", "bmm"}, res.Order)
	require.Len(t, res.Installed, 3)
	assert.Len(t, log.successes, 3)

	// Core answers reach every later module's config.
	bmmCfg, err := ReadModuleConfig(filepath.Join(ctx.ModuleDir("bmm"), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "BMad", bmmCfg.String("user_name"))

	assert.Len(t, res.Workflows, 2)
	assert.Len(t, res.Agents, 3)

	require.Len(t, res.Launchers, 1)
	assert.Equal(t, 2, res.Launchers[0].Workflows)
	assert.Equal(t, 3, res.Launchers[0].Agents)
	for _, f := range []string{
		".claude/commands/bmad/bmm/workflows/prd.md",
		".claude/commands/bmad/cis/workflows/prd.md",
		".claude/commands/bmad/bmm/agents/pm.md",
		".claude/commands/bmad/core/agents/bmad-master.md",
		".claude/commands/bmad/bmm/README.md",
	} {
		assert.Contains(t, res.Launchers[0].Files, f)
		assert.FileExists(t, filepath.Join(ctx.ProjectRoot, filepath.FromSlash(f)))
	}
	launcher := readString(t, filepath.Join(ctx.ProjectRoot, ".claude", "commands", "bmad", "bmm", "workflows", "prd.md"))
	assert.Contains(t, launcher, "{project-root}/_bmad/bmm/workflows/prd/workflow.yaml")

	require.NotNil(t, res.Record)
	assert.Equal(t, "6.0.0", res.Record.Installation.Version)
	assert.True(t, res.Record.Installation.InstallDate.Equal(now))
	assert.Equal(t, []string{"claude-code"}, res.Record.IDEs)
	assert.Len(t, res.Record.Modules, 3)
	assert.FileExists(t, RecordPath(ctx.ProjectRoot, "_bmad"))
}

func TestSession_Update(t *testing.T) {
	ctx, _ := testContext(t, sourceTree(t))
	first := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	_, err := NewSession(ctx).Run(SessionOptions{Modules: []string{"bmm"}, Now: fixedNow(first)})
	require.NoError(t, err)

	later := first.Add(24 * time.Hour)
	res, err := NewSession(ctx).Run(SessionOptions{Modules: []string{"bmm"}, Update: true, Now: fixedNow(later)})
	require.NoError(t, err)
	for _, r := range res.Installed {
		assert.Equal(t, ModeSyncing, r.Mode, r.Module)
	}

	bmm, ok := res.Record.Module("bmm")
	require.True(t, ok)
	assert.True(t, bmm.InstallDate.Equal(first))
	assert.True(t, bmm.LastUpdated.Equal(later))
}

func TestSession_FailureIsolated(t *testing.T) {
	source := sourceTree(t)
	writeFiles(t, source, map[string]string{
		"src/modules/bmm/custom.yaml": "project_name: [\n",
	})
	ctx, log := testContext(t, source)

	res, err := NewSession(ctx).Run(SessionOptions{Modules: []string{"bmm", "cis"}})
	require.NoError(t, err)
	assert.False(t, res.OK())
	require.Contains(t, res.Failed, "bmm")
	assert.Len(t, res.Installed, 2)
	assert.NotEmpty(t, log.errors)

	assert.DirExists(t, ctx.ModuleDir("cis"))
	_, ok := res.Record.Module("bmm")
	assert.False(t, ok)
	_, ok = res.Record.Module("cis")
	assert.True(t, ok)
}

func TestSession_Errors(t *testing.T) {
	_, err := NewSession(InstallContext{ProjectRoot: t.TempDir()}).Run(SessionOptions{})
	assert.ErrorContains(t, err, "no module sources")

	ctx, _ := testContext(t, sourceTree(t))
	ctx.IDEs = []string{"notepad"}
	_, err = NewSession(ctx).Run(SessionOptions{})
	assert.ErrorContains(t, err, `unknown IDE "notepad"`)
	assert.NoDirExists(t, ctx.InstallDir())
}

func TestSession_WithoutCore(t *testing.T) {
	source := sourceTree(t)
	require.NoError(t, os.RemoveAll(filepath.Join(source, "src", "core")))
	ctx, log := testContext(t, source)

	res, err := NewSession(ctx).Run(SessionOptions{Modules: []string{"cis"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"cis"}, res.Order)
	assert.Contains(t, log.warns, "core module not found in sources; installing without it")
}

func TestGenerateLaunchers(t *testing.T) {
	ctx, _ := testContext(t, sourceTree(t))
	_, err := NewSession(ctx).Run(SessionOptions{Modules: []string{"bmm"}})
	require.NoError(t, err)

	systems, err := system.ByNames([]string{"codex"})
	require.NoError(t, err)
	res, err := GenerateLaunchers(ctx.ProjectRoot, "_bmad", systems)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Files, ".codex/prompts/bmad-bmm-prd.md")
	assert.Contains(t, res[0].Files, ".codex/prompts/bmad-bmm-agent-pm.md")
}
