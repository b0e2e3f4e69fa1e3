package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/barysiuk/bmadkit/internal/core/placeholder"
)

// skipDirs are never descended into when walking a project for modules.
var skipDirs = map[string]bool{
	"node_modules":          true,
	"vendor":                true,
	"bower_components":      true,
	".venv":                 true,
	"venv":                  true,
	"__pycache__":           true,
	"dist":                  true,
	"build":                 true,
	"out":                   true,
	"target":                true,
	"coverage":              true,
	placeholder.ProjectRoot: true,
}

// CacheDir returns the directory fetched custom modules are cached in.
func CacheDir(projectRoot, folderName string) string {
	return filepath.Join(projectRoot, folderName, "_config", "custom")
}

// DiscoveryOptions configures where modules are looked for. Empty roots are
// not scanned.
type DiscoveryOptions struct {
	SourceRoot  string // tree holding src/core and src/modules
	ProjectRoot string
	FolderName  string
}

// Discovery finds installable modules.
type Discovery struct {
	opts DiscoveryOptions
}

// NewDiscovery creates a Discovery.
func NewDiscovery(opts DiscoveryOptions) *Discovery {
	if opts.FolderName == "" {
		opts.FolderName = placeholder.DefaultFolderName
	}
	return &Discovery{opts: opts}
}

// ListAvailable scans the official source, the project tree and the custom
// module cache, in that order. The first location a module ID is found in
// wins. Directories that cannot be read and malformed descriptors are
// reported in Catalog.Skipped.
func (d *Discovery) ListAvailable() (*Catalog, error) {
	c := &Catalog{}
	seen := make(map[string]bool)

	add := func(dir string, kind SourceKind) {
		desc := findDescriptor(dir)
		if desc == "" {
			return
		}
		m, warning, err := parseDescriptor(desc, dir, kind)
		if err != nil {
			c.Skipped = append(c.Skipped, SkippedDir{Path: dir, Reason: "malformed descriptor", Err: err})
			return
		}
		if warning != "" {
			c.Warnings = append(c.Warnings, warning)
		}
		if seen[m.ID] {
			return
		}
		seen[m.ID] = true

		switch {
		case m.ID == CoreModuleID:
			c.Core = m
		case kind == KindOfficial:
			c.Modules = append(c.Modules, *m)
		default:
			c.CustomModules = append(c.CustomModules, *m)
		}
	}

	if d.opts.SourceRoot != "" {
		if err := d.scanOfficial(c, add); err != nil {
			return nil, err
		}
	}
	if d.opts.ProjectRoot != "" {
		for _, dir := range d.walkProject(c) {
			add(dir, KindCustom)
		}
		cache := CacheDir(d.opts.ProjectRoot, d.opts.FolderName)
		for _, dir := range d.listChildren(c, cache) {
			add(dir, KindCached)
		}
	}

	sort.SliceStable(c.Modules, func(i, j int) bool { return c.Modules[i].ID < c.Modules[j].ID })
	sort.SliceStable(c.CustomModules, func(i, j int) bool { return c.CustomModules[i].ID < c.CustomModules[j].ID })
	return c, nil
}

func (d *Discovery) scanOfficial(c *Catalog, add func(string, SourceKind)) error {
	src := filepath.Join(d.opts.SourceRoot, "src")
	if !dirExists(src) {
		return fmt.Errorf("source %s has no src directory", d.opts.SourceRoot)
	}
	if core := filepath.Join(src, "core"); dirExists(core) {
		add(core, KindOfficial)
	}
	for _, dir := range d.listChildren(c, filepath.Join(src, "modules")) {
		add(dir, KindOfficial)
	}
	return nil
}

// listChildren returns the subdirectories of dir, sorted. A missing dir is
// not an error; an unreadable one is recorded.
func (d *Discovery) listChildren(c *Catalog, dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.Skipped = append(c.Skipped, SkippedDir{Path: dir, Reason: "unreadable", Err: err})
		}
		return nil
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(dir, e.Name()))
		}
	}
	return dirs
}

// walkProject returns every module root in the project tree. Recursion
// stops at a module boundary.
func (d *Discovery) walkProject(c *Catalog) []string {
	root := d.opts.ProjectRoot
	install := filepath.Join(root, d.opts.FolderName)
	official := ""
	if d.opts.SourceRoot != "" {
		official, _ = filepath.Abs(d.opts.SourceRoot)
	}

	var found []string
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path != root {
				c.Skipped = append(c.Skipped, SkippedDir{Path: path, Reason: "unreadable", Err: err})
			}
			if entry != nil && entry.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root {
			name := entry.Name()
			if strings.HasPrefix(name, ".") || skipDirs[name] || path == install {
				return filepath.SkipDir
			}
			if official != "" {
				if abs, _ := filepath.Abs(path); abs == official {
					return filepath.SkipDir
				}
			}
		}
		if path != root && findDescriptor(path) != "" {
			found = append(found, path)
			return filepath.SkipDir
		}
		return nil
	})
	return found
}
