package core

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// DefaultSidecarBase is used when the core configuration has no
// agent_sidecar_folder.
const DefaultSidecarBase = "{project-root}/{bmad_folder}/_memory"

// SidecarResult lists the files a sidecar merge copied and the ones it left
// alone because they already existed. Paths are relative and slash-separated.
type SidecarResult struct {
	Copied    []string
	Preserved []string
}

// CopySidecarFiles merges src into dst without overwriting anything that
// already exists in dst.
func CopySidecarFiles(src, dst string) (*SidecarResult, error) {
	res := &SidecarResult{}
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if _, err := os.Lstat(target); err == nil {
			res.Preserved = append(res.Preserved, filepath.ToSlash(rel))
			return nil
		}
		if err := copyFile(path, target); err != nil {
			return err
		}
		res.Copied = append(res.Copied, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("copying sidecar %s: %w", filepath.Base(src), err)
	}
	sort.Strings(res.Copied)
	sort.Strings(res.Preserved)
	return res, nil
}

// sidecarSource returns the sidecar directory shipped next to an agent
// source, or "".
func sidecarSource(agentDir, agentName string) string {
	for _, name := range []string{agentName + "-sidecar", "sidecar"} {
		p := filepath.Join(agentDir, name)
		if dirExists(p) {
			return p
		}
	}
	return ""
}
