package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchCustom_Local(t *testing.T) {
	src := filepath.Join(t.TempDir(), "finance-pack")
	writeFiles(t, src, map[string]string{
		"module.yaml":                   "code: Fin Tools\nname: Finance\nversion: 0.2.0\n",
		"agents/cfo.agent.yaml":         "agent:\n  metadata:\n    name: CFO\n",
		"workflows/close/workflow.yaml": "name: close\n",
		".git/config":                   "[core]\n",
	})
	project := t.TempDir()

	m, err := FetchCustom(context.Background(), src, project, "_bmad")
	require.NoError(t, err)

	cached := filepath.Join(CacheDir(project, "_bmad"), "fin-tools")
	assert.Equal(t, "Fin Tools", m.ID)
	assert.Equal(t, KindCached, m.Kind)
	assert.Equal(t, cached, m.Path)
	assert.Equal(t, filepath.Join(cached, "module.yaml"), m.DescriptorPath)
	assert.FileExists(t, filepath.Join(cached, "workflows", "close", "workflow.yaml"))
	assert.NoDirExists(t, filepath.Join(cached, ".git"))

	c, err := NewDiscovery(DiscoveryOptions{ProjectRoot: project, FolderName: "_bmad"}).ListAvailable()
	require.NoError(t, err)
	found, ok := c.Find("Fin Tools")
	require.True(t, ok)
	assert.Equal(t, KindCached, found.Kind)
}

func TestFetchCustom_ReplacesCache(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"module.yaml": "code: legal\n", "old.md": "old"})
	project := t.TempDir()

	_, err := FetchCustom(context.Background(), src, project, "_bmad")
	require.NoError(t, err)

	writeFiles(t, src, map[string]string{"new.md": "new"})
	require.NoError(t, os.Remove(filepath.Join(src, "old.md")))
	_, err = FetchCustom(context.Background(), src, project, "_bmad")
	require.NoError(t, err)

	cached := filepath.Join(CacheDir(project, "_bmad"), "legal")
	assert.FileExists(t, filepath.Join(cached, "new.md"))
	assert.NoFileExists(t, filepath.Join(cached, "old.md"))
}

func TestFetchCustom_Errors(t *testing.T) {
	project := t.TempDir()

	_, err := FetchCustom(context.Background(), t.TempDir(), project, "_bmad")
	assert.ErrorContains(t, err, "no module descriptor")

	core := t.TempDir()
	writeFiles(t, core, map[string]string{"module.yaml": "code: core\n"})
	_, err = FetchCustom(context.Background(), core, project, "_bmad")
	assert.ErrorContains(t, err, "reserved id")

	_, err = FetchCustom(context.Background(), "", project, "_bmad")
	assert.Error(t, err)
}
