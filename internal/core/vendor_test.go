package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barysiuk/bmadkit/internal/core/placeholder"
)

func TestParseWorkflowRef(t *testing.T) {
	tests := []struct {
		ref  string
		want WorkflowRef
	}{
		{"{project-root}/{bmad_folder}/bmm/workflows/prd/workflow.yaml", WorkflowRef{Module: "bmm", Subpath: "prd", File: "workflow.yaml"}},
		{"{project-root}/_bmad/bmm/workflows/2-plan/prd/workflow.md", WorkflowRef{Module: "bmm", Subpath: "2-plan/prd", File: "workflow.md"}},
		{" {project-root}/bmad/cis/workflows/story/workflow.yaml ", WorkflowRef{Module: "cis", Subpath: "story", File: "workflow.yaml"}},
	}
	for _, tt := range tests {
		got, err := ParseWorkflowRef(tt.ref, "_bmad")
		require.NoError(t, err, tt.ref)
		assert.Equal(t, tt.want, got, tt.ref)
	}
}

func TestParseWorkflowRef_Errors(t *testing.T) {
	tests := map[string]string{
		"bmad/bmm/workflows/prd/workflow.yaml":                           "must start with",
		"{project-root}/{bmad_folder}/bmm/workflows/workflow.yaml":       "too few",
		"{project-root}/other/bmm/workflows/prd/workflow.yaml":           "unknown install folder",
		"{project-root}/{bmad_folder}/bmm/tasks/prd/workflow.yaml":       "expected workflows",
		"{project-root}/{bmad_folder}/bmm/workflows/prd/instructions.md": "must end in",
		"{project-root}/{bmad_folder}/bmm/workflows/../workflow.yaml":    "invalid path segment",
		"{project-root}/{bmad_folder}//workflows/prd/workflow.yaml":      "empty module",
	}
	for ref, reason := range tests {
		_, err := ParseWorkflowRef(ref, "_bmad")
		var rerr *ReferenceError
		require.True(t, errors.As(err, &rerr), ref)
		assert.Contains(t, rerr.Reason, reason, ref)
	}
}

func TestRewriteConfigSource(t *testing.T) {
	doc := `name: x
config_source: "{project-root}/_bmad/bmm/config.yaml"
  config_source: '{project-root}/_bmad/bmm/config.yaml'
config_source: {project-root}/_bmad/bmm/config.yaml
config_source: "{project-root}/_bmad/core/config.yaml"
other: "{project-root}/_bmad/bmm/config.yaml"
`
	want := `name: x
config_source: "{project-root}/_bmad/cis/config.yaml"
  config_source: '{project-root}/_bmad/cis/config.yaml'
config_source: {project-root}/_bmad/cis/config.yaml
config_source: "{project-root}/_bmad/cis/config.yaml"
other: "{project-root}/_bmad/bmm/config.yaml"
`
	assert.Equal(t, want, string(RewriteConfigSource([]byte(doc), "cis")))
}

func newTestVendorer(t *testing.T, source string) *Vendorer {
	t.Helper()
	c, err := NewDiscovery(DiscoveryOptions{SourceRoot: source}).ListAvailable()
	require.NoError(t, err)
	return &Vendorer{Locator: c, Resolver: placeholder.New("", "_bmad"), FolderName: "_bmad"}
}

func TestVendor_SelfSufficient(t *testing.T) {
	source := sourceTree(t)
	target := t.TempDir()

	vendored, warnings, err := newTestVendorer(t, source).Vendor(
		filepath.Join(source, "src", "modules", "cis"), target, "cis")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, vendored, 1)
	assert.Equal(t, "storyteller.agent.yaml", vendored[0].Agent)
	assert.Equal(t, filepath.Join(target, "workflows", "story-prd"), vendored[0].Destination)

	wf := readString(t, filepath.Join(target, "workflows", "story-prd", "workflow.yaml"))
	assert.Contains(t, wf, `config_source: "{project-root}/_bmad/cis/config.yaml"`)
	assert.NotContains(t, wf, "web_bundle")
	assert.NotContains(t, wf, "{bmad_folder}")
	assert.Equal(t, "Write the PRD into {output_folder}.\n",
		readString(t, filepath.Join(target, "workflows", "story-prd", "instructions.md")))
}

func TestVendor_BadItemsWarn(t *testing.T) {
	source := sourceTree(t)
	writeFiles(t, source, map[string]string{
		"src/modules/cis/agents/muse.agent.yaml": `agent:
  metadata:
    name: Muse
  menu:
    - trigger: steal
      workflow: "{project-root}/{bmad_folder}/bmm/workflows/prd/workflow.yaml"
      workflow-install: "{project-root}/{bmad_folder}/bmm/workflows/prd/workflow.yaml"
    - trigger: ghost
      workflow: "{project-root}/{bmad_folder}/nowhere/workflows/x/workflow.yaml"
      workflow-install: "{project-root}/{bmad_folder}/cis/workflows/x/workflow.yaml"
    - trigger: missing
      workflow: "{project-root}/{bmad_folder}/bmm/workflows/absent/workflow.yaml"
      workflow-install: "{project-root}/{bmad_folder}/cis/workflows/absent/workflow.yaml"
    - trigger: plain
      workflow: "{project-root}/{bmad_folder}/bmm/workflows/prd/workflow.yaml"
`,
	})
	target := t.TempDir()

	vendored, warnings, err := newTestVendorer(t, source).Vendor(
		filepath.Join(source, "src", "modules", "cis"), target, "cis")
	require.NoError(t, err)
	assert.Len(t, vendored, 1, "only the storyteller item vendors")
	require.Len(t, warnings, 3)
	assert.Contains(t, warnings[0], "destination must be inside module cis")
	assert.Contains(t, warnings[1], "origin module nowhere not found")
	assert.Contains(t, warnings[2], "does not exist")
	assert.NoDirExists(t, filepath.Join(target, "workflows", "absent"))
}

func TestVendor_SyncKeepsNewerDestination(t *testing.T) {
	source := sourceTree(t)
	target := t.TempDir()
	v := newTestVendorer(t, source)
	cis := filepath.Join(source, "src", "modules", "cis")

	_, _, err := v.Vendor(cis, target, "cis")
	require.NoError(t, err)

	edited := filepath.Join(target, "workflows", "story-prd", "instructions.md")
	require.NoError(t, os.WriteFile(edited, []byte("USER EDIT"), 0o644))
	ageFile(t, edited, time.Hour)

	v.Sync = true
	vendored, _, err := v.Vendor(cis, target, "cis")
	require.NoError(t, err)
	require.Len(t, vendored, 1)
	assert.Contains(t, vendored[0].Preserved, edited)
	assert.NotContains(t, vendored[0].Written, edited)
	assert.Equal(t, "USER EDIT", readString(t, edited))

	// Without sync the copy is refreshed.
	v.Sync = false
	_, _, err = v.Vendor(cis, target, "cis")
	require.NoError(t, err)
	assert.Equal(t, "Write the PRD into {output_folder}.\n", readString(t, edited))
}
