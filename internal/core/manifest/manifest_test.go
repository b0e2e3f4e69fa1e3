package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflows_WriteSortsAndQuotes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "_config", WorkflowFile)
	err := WriteWorkflows(path, []Workflow{
		{Name: "prd", Description: "Create a PRD, step by step", Module: "bmm", Path: "{bmad_folder}/bmm/workflows/prd/workflow.yaml"},
		{Name: "brainstorming", Description: "Ideas", Module: "core", Path: "{bmad_folder}/core/workflows/brainstorming/workflow.md"},
		{Name: "architecture", Description: "Arch", Module: "bmm", Path: "{bmad_folder}/bmm/workflows/architecture/workflow.yaml"},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "name,description,module,path\n"+
		"architecture,Arch,bmm,{bmad_folder}/bmm/workflows/architecture/workflow.yaml\n"+
		"prd,\"Create a PRD, step by step\",bmm,{bmad_folder}/bmm/workflows/prd/workflow.yaml\n"+
		"brainstorming,Ideas,core,{bmad_folder}/core/workflows/brainstorming/workflow.md\n", string(data))

	got, err := ReadWorkflows(path)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Create a PRD, step by step", got[1].Description)
	assert.False(t, got[1].Markdown())
	assert.True(t, got[2].Markdown())
}

func TestReadWorkflows_Missing(t *testing.T) {
	got, err := ReadWorkflows(filepath.Join(t.TempDir(), "nope.csv"))
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestReadWorkflows_ReorderedColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), WorkflowFile)
	content := "module,path,name,description,standalone\nbmm,p.yaml,prd,Doc,true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := ReadWorkflows(path)
	require.NoError(t, err)
	assert.Equal(t, []Workflow{{Name: "prd", Description: "Doc", Module: "bmm", Path: "p.yaml"}}, got)
}

func TestReadWorkflows_MissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), WorkflowFile)
	require.NoError(t, os.WriteFile(path, []byte("name,module\nprd,bmm\n"), 0o644))

	_, err := ReadWorkflows(path)
	assert.ErrorContains(t, err, `missing column "description"`)
}

func TestAgents_WriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), AgentFile)
	in := []Agent{
		{Name: "pm", DisplayName: "John", Title: "Product Manager", Icon: "📋", Description: "Product Manager", Module: "bmm", Path: "{bmad_folder}/bmm/agents/pm.md"},
		{Name: "analyst", DisplayName: "Mary", Title: "Business Analyst", Icon: "📊", Description: "Business Analyst", Module: "bmm", Path: "{bmad_folder}/bmm/agents/analyst.md"},
	}
	require.NoError(t, WriteAgents(path, in))

	got, err := ReadAgents(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, in[1], got[0])
	assert.Equal(t, in[0], got[1])
}

func TestReadAgents_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), AgentFile)
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	got, err := ReadAgents(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}
