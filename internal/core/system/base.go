package system

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/barysiuk/bmadkit/internal/core/manifest"
	"github.com/barysiuk/bmadkit/internal/core/placeholder"
)

// launcherFormat selects how a launcher file is encoded.
type launcherFormat int

const (
	formatMarkdown launcherFormat = iota // YAML frontmatter + markdown body
	formatTOML                           // description + prompt keys
)

// BaseSystem provides default implementations for common system patterns.
// Individual systems embed this and override methods as needed.
type BaseSystem struct {
	name          string
	displayName   string
	commandDir    string   // project-relative launcher directory
	configSignals []string // project files indicating active use
	format        launcherFormat
	ext           string // launcher file extension
	// flat systems keep all launchers in commandDir itself, each named
	// with prefix; nested systems own commandDir and use <module>/ folders.
	flat             bool
	prefix           string
	frontmatterExtra [][2]string
}

func (b *BaseSystem) Name() string        { return b.name }
func (b *BaseSystem) DisplayName() string { return b.displayName }

func (b *BaseSystem) IsActiveInFolder(folderPath string) bool {
	for _, sig := range b.configSignals {
		if pathExists(filepath.Join(folderPath, sig)) {
			return true
		}
	}
	return dirExists(b.CommandDir(folderPath))
}

func (b *BaseSystem) DetectionSignals() []string {
	return b.configSignals
}

func (b *BaseSystem) CommandDir(projectDir string) string {
	return filepath.Join(projectDir, filepath.FromSlash(b.commandDir))
}

// Generate removes the previous launchers and writes one launcher per
// workflow and agent plus one index per module.
func (b *BaseSystem) Generate(projectDir string, in LauncherInput) (*GenerateResult, error) {
	if err := b.Clean(projectDir); err != nil {
		return nil, err
	}

	files, err := b.render(in)
	if err != nil {
		return nil, err
	}

	res := &GenerateResult{System: b.name, Workflows: len(in.Workflows), Agents: len(in.Agents)}
	for rel, content := range files {
		path := filepath.Join(projectDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating launcher directory for %s: %w", b.displayName, err)
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return nil, fmt.Errorf("writing launcher for %s: %w", b.displayName, err)
		}
		res.Files = append(res.Files, rel)
	}
	sort.Strings(res.Files)
	return res, nil
}

// Clean removes every launcher generated by this system.
func (b *BaseSystem) Clean(projectDir string) error {
	dir := b.CommandDir(projectDir)
	if !b.flat {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("removing %s launchers: %w", b.displayName, err)
		}
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s launchers: %w", b.displayName, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), b.prefix) || !strings.HasSuffix(e.Name(), b.ext) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("removing %s launcher %s: %w", b.displayName, e.Name(), err)
		}
	}
	return nil
}

// render returns the launcher files for in keyed by project-relative path.
func (b *BaseSystem) render(in LauncherInput) (map[string][]byte, error) {
	resolver := placeholder.New("", in.FolderName)
	files := make(map[string][]byte)
	indexes := make(map[string]*moduleIndex)
	index := func(module string) *moduleIndex {
		if indexes[module] == nil {
			indexes[module] = &moduleIndex{Module: module}
		}
		return indexes[module]
	}

	put := func(rel string, content []byte) error {
		if _, dup := files[rel]; dup {
			return fmt.Errorf("two launchers map to %s", rel)
		}
		files[rel] = resolver.ResolveBytes(content)
		return nil
	}

	workflows := sortedWorkflows(in.Workflows)
	wfNames := launcherNames(len(workflows), func(i int) (string, string, string) {
		return workflows[i].Module, workflows[i].Name, workflows[i].Path
	})
	for i, w := range workflows {
		l := newLauncher(w.Name, w.Description, w.Module, w.Path)
		tmpl := "workflow-yaml.tmpl"
		if w.Markdown() {
			tmpl = "workflow-md.tmpl"
		}
		content, err := b.encode(tmpl, l)
		if err != nil {
			return nil, fmt.Errorf("rendering workflow %s/%s: %w", w.Module, w.Name, err)
		}
		if err := put(b.launcherPath(w.Module, "workflows", wfNames[i]), content); err != nil {
			return nil, err
		}
		idx := index(w.Module)
		idx.Workflows = append(idx.Workflows, l)
	}

	agents := sortedAgents(in.Agents)
	agentNames := launcherNames(len(agents), func(i int) (string, string, string) {
		return agents[i].Module, agents[i].Name, agents[i].Path
	})
	for i, a := range agents {
		desc := a.Description
		if desc == "" {
			desc = a.Title
		}
		l := newLauncher(a.Name, desc, a.Module, a.Path)
		content, err := b.encode("agent.tmpl", l)
		if err != nil {
			return nil, fmt.Errorf("rendering agent %s/%s: %w", a.Module, a.Name, err)
		}
		if err := put(b.launcherPath(a.Module, "agents", agentNames[i]), content); err != nil {
			return nil, err
		}
		idx := index(a.Module)
		idx.Agents = append(idx.Agents, l)
	}

	for module, idx := range indexes {
		body, err := renderTemplate("readme.tmpl", idx)
		if err != nil {
			return nil, fmt.Errorf("rendering index for %s: %w", module, err)
		}
		if err := put(b.indexPath(module), body); err != nil {
			return nil, err
		}
	}
	return files, nil
}

func (b *BaseSystem) encode(tmpl string, l launcher) ([]byte, error) {
	body, err := renderTemplate(tmpl, l)
	if err != nil {
		return nil, err
	}
	if b.format == formatTOML {
		return encodeTOML(l.Description, body)
	}
	pairs := append([][2]string{{"description", l.Description}}, b.frontmatterExtra...)
	fm, err := marshalFrontmatter(pairs)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// launcherNames returns a file stem for each of n entries. Entries of one
// module whose names sanitize alike get the nearest directory segment of
// their path that tells them apart. Failing that the first keeps the plain
// name and the rest get a counter.
func launcherNames(n int, entry func(i int) (module, name, path string)) []string {
	out := make([]string, n)
	groups := make(map[string][]int)
	for i := 0; i < n; i++ {
		module, name, _ := entry(i)
		out[i] = sanitizeName(name)
		key := module + "/" + out[i]
		groups[key] = append(groups[key], i)
	}

	used := make(map[string]bool)
	var clashes []string
	for key, idx := range groups {
		if len(idx) == 1 {
			used[key] = true
			continue
		}
		clashes = append(clashes, key)
	}
	sort.Strings(clashes)

	for _, key := range clashes {
		idx := groups[key]
		sort.SliceStable(idx, func(a, b int) bool {
			_, _, pa := entry(idx[a])
			_, _, pb := entry(idx[b])
			return pa < pb
		})
		for _, i := range idx {
			module, _, path := entry(i)
			base := out[i]
			stem := ""
			for _, seg := range parentSegments(path, module) {
				cand := base + "-" + sanitizeName(seg)
				if sanitizeName(seg) != base && !used[module+"/"+cand] {
					stem = cand
					break
				}
			}
			for c := 1; stem == ""; c++ {
				cand := base
				if c > 1 {
					cand = fmt.Sprintf("%s-%d", base, c)
				}
				if !used[module+"/"+cand] {
					stem = cand
				}
			}
			used[module+"/"+stem] = true
			out[i] = stem
		}
	}
	return out
}

// parentSegments lists the directories of path from the innermost outwards,
// stopping before the module segment.
func parentSegments(path, module string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	var segs []string
	for i := len(parts) - 2; i >= 0; i-- {
		if parts[i] == module {
			break
		}
		segs = append(segs, parts[i])
	}
	return segs
}

// launcherPath returns the project-relative path of a launcher. kind is
// "agents" or "workflows" and name an already sanitized stem.
func (b *BaseSystem) launcherPath(module, kind, name string) string {
	if b.flat {
		if kind == "agents" {
			return b.commandDir + "/" + b.prefix + module + "-agent-" + name + b.ext
		}
		return b.commandDir + "/" + b.prefix + module + "-" + name + b.ext
	}
	return b.commandDir + "/" + module + "/" + kind + "/" + name + b.ext
}

func (b *BaseSystem) indexPath(module string) string {
	if b.flat {
		return b.commandDir + "/" + b.prefix + module + "-index" + b.ext
	}
	return b.commandDir + "/" + module + "/README.md"
}

func sortedWorkflows(in []manifest.Workflow) []manifest.Workflow {
	out := append([]manifest.Workflow(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func sortedAgents(in []manifest.Agent) []manifest.Agent {
	out := append([]manifest.Agent(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// --- Shared Helpers ---

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func sanitizeName(name string) string {
	name = strings.ToLower(name)
	// Replace non-alphanumeric chars (except hyphen) with hyphen.
	var result []byte
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' {
			result = append(result, c)
		} else {
			result = append(result, '-')
		}
	}
	name = strings.Trim(string(result), "-.")
	if len(name) > 255 {
		name = name[:255]
	}
	if name == "" {
		name = "unnamed"
	}
	return name
}

// readConfigFile reads a config file. Returns empty string if not found.
func readConfigFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// writeConfigFile writes content atomically, creating parent directories.
func writeConfigFile(path string, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
