package core

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/barysiuk/bmadkit/internal/core/agent"
	"github.com/barysiuk/bmadkit/internal/core/manifest"
	"github.com/barysiuk/bmadkit/internal/core/placeholder"
)

// descriptorHead is the part of a workflow descriptor the manifests need.
type descriptorHead struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

var agentAttr = regexp.MustCompile(`\s(name|title|icon)="([^"]*)"`)

// ScanInstalled indexes the workflows and compiled agents of every module
// installed under installDir. Folders starting with "_" hold installer state
// and are not modules. Paths are returned in placeholder form.
func ScanInstalled(installDir string) ([]manifest.Workflow, []manifest.Agent, error) {
	entries, err := os.ReadDir(installDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	var workflows []manifest.Workflow
	var agents []manifest.Agent
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), "_") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		module := e.Name()
		w, err := scanWorkflows(filepath.Join(installDir, module), module)
		if err != nil {
			return nil, nil, err
		}
		workflows = append(workflows, w...)

		a, err := scanAgents(filepath.Join(installDir, module, "agents"), module)
		if err != nil {
			return nil, nil, err
		}
		agents = append(agents, a...)
	}
	return workflows, agents, nil
}

// scanWorkflows finds workflow descriptors. A folder holding both forms is
// listed once, by its workflow.yaml.
func scanWorkflows(moduleDir, module string) ([]manifest.Workflow, error) {
	byDir := make(map[string]string)
	err := filepath.WalkDir(moduleDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != moduleDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		switch d.Name() {
		case "workflow.yaml":
			byDir[filepath.Dir(path)] = path
		case "workflow.md":
			if _, ok := byDir[filepath.Dir(path)]; !ok {
				byDir[filepath.Dir(path)] = path
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []manifest.Workflow
	for dir, path := range byDir {
		head := readDescriptorHead(path)
		if head.Name == "" {
			head.Name = filepath.Base(dir)
		}
		out = append(out, manifest.Workflow{
			Name:        head.Name,
			Description: head.Description,
			Module:      module,
			Path:        placeholder.Folder + "/" + module + "/" + slashRel(moduleDir, path),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// readDescriptorHead reads name and description from a workflow.yaml or
// the frontmatter of a workflow.md. Unreadable descriptors yield an empty
// head.
func readDescriptorHead(path string) descriptorHead {
	var head descriptorHead
	data, err := os.ReadFile(path)
	if err != nil {
		return head
	}
	if strings.HasSuffix(path, ".md") {
		fm, _, ok := agent.SplitFrontmatter(string(data))
		if !ok {
			return head
		}
		data = []byte(fm)
	}
	_ = yaml.Unmarshal(data, &head)
	head.Description = strings.TrimSpace(head.Description)
	return head
}

func scanAgents(agentsDir, module string) ([]manifest.Agent, error) {
	if !dirExists(agentsDir) {
		return nil, nil
	}
	moduleDir := filepath.Dir(agentsDir)
	var out []manifest.Agent
	err := filepath.WalkDir(agentsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != agentsDir && isSidecarDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		fm, body, _ := agent.SplitFrontmatter(string(data))
		tag := agentOpenTag(body)
		if tag == "" {
			return nil
		}
		a := manifest.Agent{
			Name:   strings.TrimSuffix(d.Name(), ".md"),
			Module: module,
			Path:   placeholder.Folder + "/" + module + "/" + slashRel(moduleDir, path),
		}
		for _, m := range agentAttr.FindAllStringSubmatch(tag, -1) {
			switch m[1] {
			case "name":
				a.DisplayName = m[2]
			case "title":
				a.Title = m[2]
			case "icon":
				a.Icon = m[2]
			}
		}
		var head descriptorHead
		_ = yaml.Unmarshal([]byte(fm), &head)
		a.Description = head.Description
		if a.Description == a.Name {
			a.Description = a.Title
		}
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func agentOpenTag(body string) string {
	i := strings.Index(body, "<agent ")
	if i < 0 {
		return ""
	}
	j := strings.Index(body[i:], ">")
	if j < 0 {
		return ""
	}
	return body[i : i+j]
}

// WriteManifests scans the installation and rewrites both CSV manifests.
func WriteManifests(projectRoot, folderName string) ([]manifest.Workflow, []manifest.Agent, error) {
	installDir := filepath.Join(projectRoot, folderName)
	workflows, agents, err := ScanInstalled(installDir)
	if err != nil {
		return nil, nil, err
	}
	cfgDir := filepath.Join(installDir, "_config")
	if err := manifest.WriteWorkflows(filepath.Join(cfgDir, manifest.WorkflowFile), workflows); err != nil {
		return nil, nil, err
	}
	if err := manifest.WriteAgents(filepath.Join(cfgDir, manifest.AgentFile), agents); err != nil {
		return nil, nil, err
	}
	return workflows, agents, nil
}

// ReadManifests loads both CSV manifests of an installation.
func ReadManifests(projectRoot, folderName string) ([]manifest.Workflow, []manifest.Agent, error) {
	cfgDir := filepath.Join(projectRoot, folderName, "_config")
	workflows, err := manifest.ReadWorkflows(filepath.Join(cfgDir, manifest.WorkflowFile))
	if err != nil {
		return nil, nil, err
	}
	agents, err := manifest.ReadAgents(filepath.Join(cfgDir, manifest.AgentFile))
	if err != nil {
		return nil, nil, err
	}
	return workflows, agents, nil
}
