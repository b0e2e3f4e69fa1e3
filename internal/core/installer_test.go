package core

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barysiuk/bmadkit/internal/core/hook"
)

func TestInstaller_InstallModule(t *testing.T) {
	ctx, log := testContext(t, sourceTree(t))
	inst := NewInstaller(ctx)

	res, err := inst.Install("bmm", InstallOptions{})
	require.NoError(t, err)

	assert.Equal(t, ModeInstalling, res.Mode)
	assert.Equal(t, "6.1.0", res.Version)
	assert.Equal(t, KindOfficial, res.Kind)
	assert.Contains(t, res.Files, "workflows/prd/workflow.yaml")
	assert.Contains(t, res.Files, "workflows/prd/instructions.md")
	assert.Contains(t, res.Files, "docs/guide.md")
	assert.Contains(t, res.Files, "agents/pm.md")
	assert.Contains(t, res.Files, "config.yaml")

	target := ctx.ModuleDir("bmm")
	assert.NoFileExists(t, filepath.Join(target, "module.yaml"))
	assert.NoFileExists(t, filepath.Join(target, "agents", "pm.agent.yaml"))
	assert.NoDirExists(t, filepath.Join(target, "_module-installer"))

	wf := readString(t, filepath.Join(target, "workflows", "prd", "workflow.yaml"))
	assert.NotContains(t, wf, "web_bundle")
	assert.Contains(t, wf, `config_source: "{project-root}/_bmad/bmm/config.yaml"`)
	assert.Contains(t, wf, "# Output location")

	pm := readString(t, filepath.Join(target, "agents", "pm.md"))
	assert.Equal(t, 1, strings.Count(pm, "<activation"))
	assert.Contains(t, pm, `<agent id="_bmad/bmm/agents/pm.md"`)
	assert.Contains(t, pm, "{project-root}/_bmad/bmm/config.yaml")
	assert.NotContains(t, pm, "{bmad_folder}")

	assert.FileExists(t, ctx.OverlayPath("bmm", "pm"))
	require.Len(t, res.Agents, 1)
	assert.Equal(t, "pm", res.Agents[0].Name)

	cfg, err := ReadModuleConfig(filepath.Join(target, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.String("project_name"))
	assert.Equal(t, "{project-root}/docs/sprint-artifacts", cfg.String("sprint_artifacts_folder"))

	// The bmm hook creates the configured folders.
	assert.Equal(t, hook.Succeeded, res.HookOutcome)
	assert.DirExists(t, filepath.Join(ctx.ProjectRoot, "docs", "sprint-artifacts"))
	assert.Empty(t, log.errors)
}

func TestInstaller_UnknownModule(t *testing.T) {
	ctx, _ := testContext(t, sourceTree(t))
	_, err := NewInstaller(ctx).Install("nope", InstallOptions{})

	var nf *ModuleNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "nope", nf.ID)
}

func TestInstaller_AnswersAndCore(t *testing.T) {
	ctx, _ := testContext(t, sourceTree(t))
	ctx.Answers = map[string]map[string]any{"bmm": {"project_name": "Orbit"}}
	ctx = ctx.WithCore(NewModuleConfig(
		ConfigEntry{Key: "user_name", Value: "Ada"},
		ConfigEntry{Key: "communication_language", Value: "English"},
	))

	res, err := NewInstaller(ctx).Install("bmm", InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Orbit", res.Config.String("project_name"))

	cfg, err := ReadModuleConfig(filepath.Join(ctx.ModuleDir("bmm"), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "Orbit", cfg.String("project_name"))
	assert.Equal(t, "Ada", cfg.String("user_name"), "core values are appended to module config")
}

func TestInstaller_CustomValuesOverride(t *testing.T) {
	source := sourceTree(t)
	writeFiles(t, source, map[string]string{
		"src/modules/bmm/_module-installer/custom.yaml": "project_name: from-custom\nextra_key: 7\n",
	})
	ctx, log := testContext(t, source)

	res, err := NewInstaller(ctx).Install("bmm", InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "from-custom", res.Config.String("project_name"))
	assert.Equal(t, "7", res.Config.String("extra_key"))
	assert.Contains(t, strings.Join(log.infos, "\n"), "overrides project_name")
}

func TestInstaller_SkipUserDocs(t *testing.T) {
	ctx, _ := testContext(t, sourceTree(t))
	ctx.Answers = map[string]map[string]any{"bmm": {"install_user_docs": false}}

	_, err := NewInstaller(ctx).Install("bmm", InstallOptions{})
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(ctx.ModuleDir("bmm"), "docs"))

	ctx2, _ := testContext(t, sourceTree(t))
	ctx2.Flags = FeatureFlags{SkipUserDocs: true}
	_, err = NewInstaller(ctx2).Install("bmm", InstallOptions{})
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(ctx2.ModuleDir("bmm"), "docs"))
}

func TestInstaller_ReinstallIsDestructive(t *testing.T) {
	ctx, _ := testContext(t, sourceTree(t))
	inst := NewInstaller(ctx)

	_, err := inst.Install("bmm", InstallOptions{})
	require.NoError(t, err)

	extra := filepath.Join(ctx.ModuleDir("bmm"), "extra.txt")
	require.NoError(t, os.WriteFile(extra, []byte("mine"), 0o644))

	res, err := inst.Install("bmm", InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeReinstalling, res.Mode)
	assert.NoFileExists(t, extra)
	assert.FileExists(t, filepath.Join(ctx.ModuleDir("bmm"), "agents", "pm.md"))
}

func TestInstaller_UpdatePreservesNewerFiles(t *testing.T) {
	source := sourceTree(t)
	ctx, _ := testContext(t, source)
	inst := NewInstaller(ctx)

	_, err := inst.Install("bmm", InstallOptions{})
	require.NoError(t, err)
	target := ctx.ModuleDir("bmm")

	// A user edit in the installation, newer than its source.
	edited := filepath.Join(target, "workflows", "prd", "instructions.md")
	require.NoError(t, os.WriteFile(edited, []byte("my edits\n"), 0o644))
	ageFile(t, edited, time.Hour)

	// A source change, newer than its installed copy.
	guideSrc := filepath.Join(source, "src", "modules", "bmm", "docs", "guide.md")
	require.NoError(t, os.WriteFile(guideSrc, []byte("# Guide v2\n"), 0o644))
	ageFile(t, guideSrc, 2*time.Hour)

	// A file only the installation has.
	extra := filepath.Join(target, "notes.txt")
	require.NoError(t, os.WriteFile(extra, []byte("keep"), 0o644))

	res, err := inst.Update("bmm", UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeSyncing, res.Mode)

	assert.Equal(t, "my edits\n", readString(t, edited))
	assert.Contains(t, res.Preserved, "workflows/prd/instructions.md")
	assert.Equal(t, "# Guide v2\n", readString(t, filepath.Join(target, "docs", "guide.md")))
	assert.Contains(t, res.Files, "docs/guide.md")
	assert.FileExists(t, extra)
}

func TestInstaller_UpdatePreservesEditedVendoredWorkflow(t *testing.T) {
	ctx, _ := testContext(t, sourceTree(t))
	inst := NewInstaller(ctx)

	_, err := inst.Install("cis", InstallOptions{})
	require.NoError(t, err)

	edited := filepath.Join(ctx.ModuleDir("cis"), "workflows", "story-prd", "instructions.md")
	require.NoError(t, os.WriteFile(edited, []byte("USER EDIT"), 0o644))
	ageFile(t, edited, time.Hour)

	res, err := inst.Update("cis", UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeSyncing, res.Mode)
	assert.Equal(t, "USER EDIT", readString(t, edited))
	assert.Contains(t, res.Preserved, "workflows/story-prd/instructions.md")
	assert.NotContains(t, res.Files, "workflows/story-prd/instructions.md")

	res, err = inst.Update("cis", UpdateOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, "Write the PRD into {output_folder}.\n", readString(t, edited))
	assert.Contains(t, res.Files, "workflows/story-prd/instructions.md")
}

func TestInstaller_UpdateRecompilesChangedAgent(t *testing.T) {
	source := sourceTree(t)
	ctx, _ := testContext(t, source)
	inst := NewInstaller(ctx)

	_, err := inst.Install("bmm", InstallOptions{})
	require.NoError(t, err)
	out := filepath.Join(ctx.ModuleDir("bmm"), "agents", "pm.md")

	// Unchanged source: the compiled agent is kept.
	ageFile(t, out, time.Hour)
	res, err := inst.Update("bmm", UpdateOptions{})
	require.NoError(t, err)
	assert.Contains(t, res.Preserved, "agents/pm.md")
	assert.Empty(t, res.Agents)

	// Changed source: recompiled.
	src := filepath.Join(source, "src", "modules", "bmm", "agents", "pm.agent.yaml")
	require.NoError(t, os.WriteFile(src, []byte(strings.Replace(pmAgent, "Ships things.", "Ships better things.", 1)), 0o644))
	ageFile(t, src, 2*time.Hour)

	res, err = inst.Update("bmm", UpdateOptions{})
	require.NoError(t, err)
	require.Len(t, res.Agents, 1)
	assert.Contains(t, readString(t, out), "Ships better things.")
}

func TestInstaller_UpdateFallsBackToInstall(t *testing.T) {
	ctx, _ := testContext(t, sourceTree(t))
	inst := NewInstaller(ctx)

	res, err := inst.Update("bmm", UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeInstalling, res.Mode)

	extra := filepath.Join(ctx.ModuleDir("bmm"), "extra.txt")
	require.NoError(t, os.WriteFile(extra, []byte("x"), 0o644))

	res, err = inst.Update("bmm", UpdateOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, ModeReinstalling, res.Mode)
	assert.NoFileExists(t, extra)
}

func TestInstaller_EndToEnd(t *testing.T) {
	ctx, log := testContext(t, sourceTree(t))
	inst := NewInstaller(ctx)

	res, err := inst.Install("cis", InstallOptions{})
	require.NoError(t, err)
	target := ctx.ModuleDir("cis")

	// (1) compiled agent with exactly one activation block.
	agentOut := readString(t, filepath.Join(target, "agents", "storyteller.md"))
	assert.Equal(t, 1, strings.Count(agentOut, "<activation"))
	assert.Contains(t, agentOut, `workflow="{project-root}/_bmad/cis/workflows/story-prd/workflow.yaml"`)
	assert.Contains(t, agentOut, "{project-root}/_bmad/_memory/storyteller-sidecar")

	// (2) sidecar with the declared files.
	sidecar := filepath.Join(ctx.InstallDir(), "_memory", "storyteller-sidecar")
	assert.FileExists(t, filepath.Join(sidecar, "memories.md"))
	assert.FileExists(t, filepath.Join(sidecar, "instructions.md"))
	require.Contains(t, res.Sidecars, "storyteller")
	assert.Equal(t, []string{"instructions.md", "memories.md"}, res.Sidecars["storyteller"].Copied)
	assert.NoDirExists(t, filepath.Join(target, "agents", "storyteller-sidecar"))

	// (3) vendored workflow with config_source rewritten.
	require.Len(t, res.Vendored, 1)
	assert.Equal(t, "bmm", res.Vendored[0].OriginModule)
	wf := readString(t, filepath.Join(target, "workflows", "story-prd", "workflow.yaml"))
	assert.Contains(t, wf, `config_source: "{project-root}/_bmad/cis/config.yaml"`)
	assert.NotContains(t, wf, "web_bundle")
	assert.FileExists(t, filepath.Join(target, "workflows", "story-prd", "instructions.md"))

	// (4) re-running install leaves user sidecar files alone.
	userFile := filepath.Join(sidecar, "user-notes.md")
	require.NoError(t, os.WriteFile(userFile, []byte("private"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sidecar, "memories.md"), []byte("learned"), 0o644))

	res, err = inst.Install("cis", InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "private", readString(t, userFile))
	assert.Equal(t, "learned", readString(t, filepath.Join(sidecar, "memories.md")))
	assert.Empty(t, res.Sidecars["storyteller"].Copied)
	assert.Equal(t, []string{"instructions.md", "memories.md"}, res.Sidecars["storyteller"].Preserved)
	assert.Empty(t, log.errors)
}

func TestInstaller_OverlayApplied(t *testing.T) {
	ctx, _ := testContext(t, sourceTree(t))
	writeFiles(t, ctx.ProjectRoot, map[string]string{
		"_bmad/_config/agents/bmm-pm.customize.yaml": `customized_fields:
  - agent.metadata.name
  - persona.favourite_color
agent:
  metadata:
    name: Jane
`,
	})

	res, err := NewInstaller(ctx).Install("bmm", InstallOptions{})
	require.NoError(t, err)

	pm := readString(t, filepath.Join(ctx.ModuleDir("bmm"), "agents", "pm.md"))
	assert.Contains(t, pm, `name="Jane"`)
	require.Len(t, res.Agents, 1)
	assert.Equal(t, []string{"persona.favourite_color"}, res.Agents[0].IgnoredFields)
	assert.NotEmpty(t, res.Warnings)

	// The user's overlay is never replaced by the default.
	assert.Contains(t, readString(t, ctx.OverlayPath("bmm", "pm")), "Jane")
}

func TestInstaller_BrokenAgentIsSkipped(t *testing.T) {
	source := sourceTree(t)
	writeFiles(t, source, map[string]string{
		"src/modules/bmm/agents/broken.agent.yaml": "agent: [unclosed\n",
	})
	ctx, _ := testContext(t, source)

	res, err := NewInstaller(ctx).Install("bmm", InstallOptions{})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(ctx.ModuleDir("bmm"), "agents", "pm.md"))
	assert.NoFileExists(t, filepath.Join(ctx.ModuleDir("bmm"), "agents", "broken.md"))
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "broken")
}

func TestInstaller_CompiledAgentGetsActivation(t *testing.T) {
	source := sourceTree(t)
	writeFiles(t, source, map[string]string{
		"src/modules/bmm/agents/legacy.md": "---\nname: legacy\n---\n\n```xml\n<agent id=\"legacy\" name=\"Old\" title=\"Legacy\">\n<menu>\n  <item cmd=\"go\" exec=\"x.md\">Go</item>\n</menu>\n</agent>\n```\n",
	})
	ctx, log := testContext(t, source)

	_, err := NewInstaller(ctx).Install("bmm", InstallOptions{})
	require.NoError(t, err)

	legacy := readString(t, filepath.Join(ctx.ModuleDir("bmm"), "agents", "legacy.md"))
	assert.Equal(t, 1, strings.Count(legacy, "<activation"))
	assert.Contains(t, legacy, `<handler type="exec">`)
	assert.Contains(t, strings.Join(log.infos, "\n"), "Added activation block to legacy.md")
}

func TestInstaller_LocalSkipAgent(t *testing.T) {
	source := sourceTree(t)
	writeFiles(t, source, map[string]string{
		"src/modules/bmm/agents/web-only.agent.yaml": "agent:\n  metadata:\n    name: Web\n    title: Web only\n    localskip: true\n  persona:\n    role: r\n  menu: []\n",
		"src/modules/bmm/agents/web.md":              "<agent id=\"web\" localskip=\"true\">\n</agent>\n",
	})
	ctx, _ := testContext(t, source)

	_, err := NewInstaller(ctx).Install("bmm", InstallOptions{})
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(ctx.ModuleDir("bmm"), "agents", "web-only.md"))
	assert.NoFileExists(t, filepath.Join(ctx.ModuleDir("bmm"), "agents", "web.md"))
}

func TestInstaller_HookFailureDoesNotFailInstall(t *testing.T) {
	ctx, log := testContext(t, sourceTree(t))
	hooks := hook.NewRegistry()
	hooks.Register("bmm", hook.Func(func(hook.Context) (bool, error) {
		return false, errors.New("disk full")
	}))
	ctx.Hooks = hooks

	res, err := NewInstaller(ctx).Install("bmm", InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, hook.Failed, res.HookOutcome)
	require.Len(t, log.errors, 1)
	assert.Contains(t, log.errors[0], "disk full")
}

func TestInstaller_HookDeclinedWarns(t *testing.T) {
	ctx, _ := testContext(t, sourceTree(t))
	hooks := hook.NewRegistry()
	hooks.Register("bmm", hook.Func(func(hook.Context) (bool, error) { return false, nil }))
	ctx.Hooks = hooks

	res, err := NewInstaller(ctx).Install("bmm", InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, hook.Declined, res.HookOutcome)
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "did not complete")
}

func TestInstaller_Track(t *testing.T) {
	ctx, _ := testContext(t, sourceTree(t))
	var tracked []string
	_, err := NewInstaller(ctx).Install("bmm", InstallOptions{Track: func(p string) { tracked = append(tracked, p) }})
	require.NoError(t, err)
	assert.Contains(t, tracked, filepath.Join(ctx.ModuleDir("bmm"), "agents", "pm.md"))
	assert.Contains(t, tracked, ctx.OverlayPath("bmm", "pm"))
}

func TestInstallContext_WithCoreCopies(t *testing.T) {
	core := NewModuleConfig(ConfigEntry{Key: "user_name", Value: "Ada"})
	ctx := InstallContext{}.WithCore(core)
	core.Set("user_name", "Grace")
	assert.Equal(t, "Ada", ctx.Core.String("user_name"))
	assert.Equal(t, filepath.Join("p", "_bmad"), InstallContext{ProjectRoot: "p"}.InstallDir())
}

func TestInstaller_BuildAgents(t *testing.T) {
	ctx, _ := testContext(t, sourceTree(t))
	inst := NewInstaller(ctx)

	_, err := inst.BuildAgents("bmm", "")
	assert.ErrorContains(t, err, "not installed")

	_, err = inst.Install("bmm", InstallOptions{})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(ctx.OverlayPath("bmm", "pm"),
		[]byte("customized_fields: [agent.metadata.name]\nagent:\n  metadata:\n    name: Jane\n"), 0o644))

	res, err := inst.BuildAgents("bmm", "nobody")
	require.NoError(t, err)
	assert.Empty(t, res.Agents)

	res, err = inst.BuildAgents("bmm", "pm")
	require.NoError(t, err)
	assert.Equal(t, ModeInstalled, res.Mode)
	require.Len(t, res.Agents, 1)
	assert.Contains(t, readString(t, filepath.Join(ctx.ModuleDir("bmm"), "agents", "pm.md")), `name="Jane"`)
	assert.Equal(t, "demo", res.Config.String("project_name"))
}
