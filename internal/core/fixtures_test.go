package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/barysiuk/bmadkit/internal/core/hook"
)

// writeFiles creates files under root from a map of slash paths to content.
func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func readString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// ageFile moves the mtime of path by d.
func ageFile(t *testing.T, path string, d time.Duration) {
	t.Helper()
	ts := time.Now().Add(d)
	require.NoError(t, os.Chtimes(path, ts, ts))
}

// recordingLogger keeps every message for assertions.
type recordingLogger struct {
	infos, warns, errors, successes []string
}

func (l *recordingLogger) Info(msg string)    { l.infos = append(l.infos, msg) }
func (l *recordingLogger) Warn(msg string)    { l.warns = append(l.warns, msg) }
func (l *recordingLogger) Error(msg string)   { l.errors = append(l.errors, msg) }
func (l *recordingLogger) Success(msg string) { l.successes = append(l.successes, msg) }

const coreDescriptor = `code: core
name: "BMad Core"
version: 6.0.0
user_name:
  prompt: "What should agents call you?"
  default: "BMad"
  result: "{value}"
communication_language:
  prompt: "Preferred chat language?"
  default: "English"
  result: "{value}"
output_folder:
  prompt: "Where should output files be saved?"
  default: "docs"
  result: "{project-root}/{value}"
`

const masterAgent = `agent:
  metadata:
    name: BMad Master
    title: Master Task Executor
    icon: "🧙"
    module: core
  persona:
    role: Orchestrator
    identity: Knows every task.
    communication_style: Precise.
    principles: Load resources at runtime.
  menu:
    - trigger: list-tasks
      action: list all tasks
      description: List available tasks
`

const bmmDescriptor = `code: bmm
name: "BMad Method"
description: "Agile AI-driven development"
version: 6.1.0
default_selected: true
dependencies:
  - core
project_name:
  prompt: "What is the project called?"
  default: "demo"
  result: "{value}"
sprint_artifacts_folder:
  prompt: "Where do sprint artifacts go?"
  default: "docs/sprint-artifacts"
  result: "{project-root}/{value}"
install_user_docs:
  prompt: "Install user docs?"
  default: true
`

const pmAgent = `agent:
  metadata:
    name: John
    title: Product Manager
    icon: "📋"
    module: bmm
  persona:
    role: Product Manager
    identity: Ships things.
    communication_style: Direct.
    principles:
      - Users first
  menu:
    - trigger: prd
      workflow: "{project-root}/{bmad_folder}/bmm/workflows/prd/workflow.yaml"
      description: Create a PRD
`

const prdWorkflow = `name: prd
description: "Create a product requirements document"
config_source: "{project-root}/{bmad_folder}/bmm/config.yaml"
# Output location
default_output_file: "{output_folder}/prd.md"

web_bundle:
  name: prd
  files:
    - "bmad/bmm/workflows/prd/instructions.md"

instructions: "{installed_path}/instructions.md"
`

const cisDescriptor = `code: cis
name: "Creative Intelligence Suite"
version: 1.0.0
`

const storytellerAgent = `agent:
  metadata:
    name: Sophia
    title: Storyteller
    icon: "📖"
    module: cis
    hasSidecar: true
  persona:
    role: Storyteller
    identity: Tells stories.
    communication_style: Warm.
    principles:
      - Every product has a story
  menu:
    - trigger: story-prd
      workflow: "{project-root}/{bmad_folder}/bmm/workflows/prd/workflow.yaml"
      workflow-install: "{project-root}/{bmad_folder}/cis/workflows/story-prd/workflow.yaml"
      description: Draft a PRD as a story
`

// sourceTree writes an official source tree with core, bmm and cis and
// returns its root.
func sourceTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/core/module.yaml":                                       coreDescriptor,
		"src/core/agents/bmad-master.agent.yaml":                     masterAgent,
		"src/core/tasks/workflow.xml":                                "<task>{project-root}/{bmad_folder}/core</task>\n",
		"src/modules/bmm/module.yaml":                                bmmDescriptor,
		"src/modules/bmm/agents/pm.agent.yaml":                       pmAgent,
		"src/modules/bmm/workflows/prd/workflow.yaml":                prdWorkflow,
		"src/modules/bmm/workflows/prd/instructions.md":              "Write the PRD into {output_folder}.\n",
		"src/modules/bmm/docs/guide.md":                              "# Guide\n",
		"src/modules/bmm/_module-installer/notes.md":                 "installer only\n",
		"src/modules/cis/module.yaml":                                cisDescriptor,
		"src/modules/cis/agents/storyteller.agent.yaml":              storytellerAgent,
		"src/modules/cis/agents/storyteller-sidecar/memories.md":     "# Memories\n",
		"src/modules/cis/agents/storyteller-sidecar/instructions.md": "# Instructions\n",
	})
	return root
}

// testContext discovers the source tree and returns an install context for
// a fresh project.
func testContext(t *testing.T, source string) (InstallContext, *recordingLogger) {
	t.Helper()
	project := t.TempDir()
	catalog, err := NewDiscovery(DiscoveryOptions{SourceRoot: source, ProjectRoot: project}).ListAvailable()
	require.NoError(t, err)
	log := &recordingLogger{}
	return InstallContext{
		ProjectRoot: project,
		FolderName:  "_bmad",
		Locator:     catalog,
		Hooks:       hook.Default(),
		Logger:      log,
	}, log
}
