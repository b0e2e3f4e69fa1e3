package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/barysiuk/bmadkit/internal/core/agent"
	"github.com/barysiuk/bmadkit/internal/core/placeholder"
)

// WorkflowRef is a parsed reference to a workflow descriptor inside an
// installed module.
type WorkflowRef struct {
	Module  string // owning module ID
	Subpath string // slash path under workflows/
	File    string // workflow.yaml or workflow.md
}

// ReferenceError reports a workflow reference that does not follow the
// {project-root}/{bmad_folder}/<module>/workflows/<path>/workflow.(yaml|md)
// grammar.
type ReferenceError struct {
	Ref    string
	Reason string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("invalid workflow reference %q: %s", e.Ref, e.Reason)
}

// ParseWorkflowRef parses a workflow reference. The folder segment may be
// the {bmad_folder} token, the legacy "bmad" name or folderName.
func ParseWorkflowRef(ref, folderName string) (WorkflowRef, error) {
	s := strings.TrimSpace(ref)
	if !strings.HasPrefix(s, placeholder.ProjectRoot+"/") {
		return WorkflowRef{}, &ReferenceError{Ref: ref, Reason: "must start with " + placeholder.ProjectRoot}
	}
	parts := strings.Split(strings.TrimPrefix(s, placeholder.ProjectRoot+"/"), "/")
	if len(parts) < 5 {
		return WorkflowRef{}, &ReferenceError{Ref: ref, Reason: "too few path segments"}
	}
	switch parts[0] {
	case placeholder.Folder, "bmad", folderName:
	default:
		return WorkflowRef{}, &ReferenceError{Ref: ref, Reason: fmt.Sprintf("unknown install folder %q", parts[0])}
	}
	if parts[2] != "workflows" {
		return WorkflowRef{}, &ReferenceError{Ref: ref, Reason: "expected workflows segment"}
	}
	file := parts[len(parts)-1]
	if file != "workflow.yaml" && file != "workflow.md" {
		return WorkflowRef{}, &ReferenceError{Ref: ref, Reason: "must end in workflow.yaml or workflow.md"}
	}
	sub := parts[3 : len(parts)-1]
	for _, p := range sub {
		if p == "" || p == "." || p == ".." {
			return WorkflowRef{}, &ReferenceError{Ref: ref, Reason: "invalid path segment"}
		}
	}
	if parts[1] == "" {
		return WorkflowRef{}, &ReferenceError{Ref: ref, Reason: "empty module segment"}
	}
	return WorkflowRef{Module: parts[1], Subpath: strings.Join(sub, "/"), File: file}, nil
}

// VendoredWorkflow records one workflow copied into the installing module.
type VendoredWorkflow struct {
	Agent        string // agent source file name
	OriginModule string
	Origin       string // absolute origin workflow directory
	Destination  string // absolute destination workflow directory
	Written      []string // destination files written, absolute
	Preserved    []string // destination files kept because they were newer, absolute
}

// Vendorer copies workflows that a module's agents reference from other
// modules into the module's own tree.
type Vendorer struct {
	Locator    ModuleLocator
	Resolver   *placeholder.Resolver // content resolver
	FolderName string
	Logger     Logger
	Sync       bool // keep destination files newer than their origin
}

// Vendor scans the agent sources directly under sourceRoot/agents and
// copies every workflow named by a menu item with both workflow and
// workflow-install into targetRoot. Problems with single items are returned
// as warnings; only filesystem errors fail.
func (v *Vendorer) Vendor(sourceRoot, targetRoot, moduleID string) ([]VendoredWorkflow, []string, error) {
	log := loggerOrNop(v.Logger)
	var warnings []string
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		warnings = append(warnings, msg)
		log.Warn(msg)
	}

	matches, err := filepath.Glob(filepath.Join(sourceRoot, "agents", "*.agent.yaml"))
	if err != nil {
		return nil, nil, fmt.Errorf("listing agents: %w", err)
	}
	sort.Strings(matches)

	var out []VendoredWorkflow
	for _, agentPath := range matches {
		def, err := agent.ParseFile(agentPath)
		if err != nil {
			warn("skipping vendoring for %s: %v", filepath.Base(agentPath), err)
			continue
		}
		for _, item := range def.Menu {
			if item.Workflow == "" || item.WorkflowInstall == "" {
				continue
			}
			vw, err := v.vendorOne(item, targetRoot, moduleID)
			if err != nil {
				var perr *fs.PathError
				if errors.As(err, &perr) {
					return out, warnings, fmt.Errorf("vendoring %s: %w", item.Workflow, err)
				}
				warn("%s: %v", filepath.Base(agentPath), err)
				continue
			}
			vw.Agent = filepath.Base(agentPath)
			out = append(out, *vw)
			log.Info(fmt.Sprintf("Vendored %s/%s into %s", vw.OriginModule, filepath.Base(vw.Origin), moduleID))
		}
	}
	return out, warnings, nil
}

func (v *Vendorer) vendorOne(item agent.MenuItem, targetRoot, moduleID string) (*VendoredWorkflow, error) {
	origin, err := ParseWorkflowRef(item.Workflow, v.FolderName)
	if err != nil {
		return nil, err
	}
	dest, err := ParseWorkflowRef(item.WorkflowInstall, v.FolderName)
	if err != nil {
		return nil, err
	}
	if dest.Module != moduleID {
		return nil, &ReferenceError{Ref: item.WorkflowInstall, Reason: fmt.Sprintf("destination must be inside module %s", moduleID)}
	}

	m, ok := v.Locator.Find(origin.Module)
	if !ok {
		return nil, fmt.Errorf("origin module %s not found for %s", origin.Module, item.Workflow)
	}
	originDir := filepath.Join(m.Path, "workflows", filepath.FromSlash(origin.Subpath))
	if !dirExists(originDir) {
		return nil, fmt.Errorf("origin workflow %s does not exist", originDir)
	}
	destDir := filepath.Join(targetRoot, "workflows", filepath.FromSlash(dest.Subpath))

	vw := &VendoredWorkflow{OriginModule: origin.Module, Origin: originDir, Destination: destDir}
	if err := v.copyWorkflow(vw, moduleID); err != nil {
		return nil, err
	}
	return vw, nil
}

func (v *Vendorer) copyWorkflow(vw *VendoredWorkflow, moduleID string) error {
	src, dst := vw.Origin, vw.Destination
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
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
		if v.Sync && targetIsNewer(target, path) {
			vw.Preserved = append(vw.Preserved, target)
			return nil
		}
		vw.Written = append(vw.Written, target)
		if rel != "workflow.yaml" && rel != "workflow.md" {
			return v.Resolver.CopyFile(path, target)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		data = v.Resolver.ResolveBytes(data)
		if rel == "workflow.yaml" {
			if stripped, _, err := StripTopLevelKey(data, "web_bundle"); err == nil {
				data = stripped
			}
		}
		data = RewriteConfigSource(data, moduleID)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}

var configSourceLine = regexp.MustCompile(`(?m)^(\s*config_source:\s*["']?[^"'\n]*/)([^/"'\s]+)(/config\.yaml)`)

// RewriteConfigSource points every config_source line at the config.yaml
// of module to, whichever module it named before.
func RewriteConfigSource(doc []byte, to string) []byte {
	return configSourceLine.ReplaceAllFunc(doc, func(m []byte) []byte {
		sub := configSourceLine.FindSubmatch(m)
		out := make([]byte, 0, len(m)+len(to))
		out = append(out, sub[1]...)
		out = append(out, to...)
		return append(out, sub[3]...)
	})
}
