package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const cloneTimeout = 60 * time.Second

// FetchCustom copies the custom module named by source into the project's
// module cache and returns its descriptor. A git source is cloned to a
// temporary directory first. An existing cached copy of the module is
// replaced.
func FetchCustom(ctx context.Context, source, projectRoot, folderName string) (*ModuleDescriptor, error) {
	parsed, err := ParseSource(source)
	if err != nil {
		return nil, err
	}

	root := parsed.LocalPath
	if !parsed.IsLocal() {
		tmpDir, err := cloneRepo(ctx, parsed.CloneURL, parsed.Ref)
		if err != nil {
			return nil, fmt.Errorf("cloning: %w", err)
		}
		defer func() { _ = os.RemoveAll(tmpDir) }()
		root = filepath.Join(tmpDir, filepath.FromSlash(parsed.SubPath))
	}

	desc := findDescriptor(root)
	if desc == "" {
		return nil, fmt.Errorf("no module descriptor found in %s", parsed)
	}
	m, _, err := parseDescriptor(desc, root, KindCached)
	if err != nil {
		return nil, err
	}
	if m.ID == CoreModuleID {
		return nil, fmt.Errorf("custom module cannot use the reserved id %q", CoreModuleID)
	}

	dst := filepath.Join(CacheDir(projectRoot, folderName), sanitizeName(m.ID))
	if err := os.RemoveAll(dst); err != nil {
		return nil, fmt.Errorf("clearing cached %s: %w", m.ID, err)
	}
	if err := copyDirectory(root, dst); err != nil {
		return nil, fmt.Errorf("caching %s: %w", m.ID, err)
	}

	cached, _, err := parseDescriptor(filepath.Join(dst, slashRel(root, desc)), dst, KindCached)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// copyDirectory copies src to dst, skipping VCS metadata.
func copyDirectory(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		return copyFile(path, filepath.Join(dst, rel))
	})
}

// cloneRepo shallow-clones a git repository to a temp directory.
func cloneRepo(ctx context.Context, url, ref string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "bmadkit-clone-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}

	args := append(cloneArgs(url, ref), tmpDir)

	ctx, cancel := context.WithTimeout(ctx, cloneTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
		return "", newCloneError(url, ref, string(output), timedOut)
	}
	return tmpDir, nil
}
