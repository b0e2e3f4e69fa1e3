// Package manifest reads and writes the CSV indexes of installed workflows
// and agents kept under <folder>/_config. Launcher generators consume them.
package manifest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	WorkflowFile = "workflow-manifest.csv"
	AgentFile    = "agent-manifest.csv"
)

var (
	workflowHeader = []string{"name", "description", "module", "path"}
	agentHeader    = []string{"name", "displayName", "title", "icon", "description", "module", "path"}
)

// Workflow is one installed workflow. Path is placeholder-form, e.g.
// "{bmad_folder}/bmm/workflows/prd/workflow.yaml".
type Workflow struct {
	Name        string
	Description string
	Module      string
	Path        string
}

// Markdown reports whether the workflow uses the markdown-only descriptor.
func (w Workflow) Markdown() bool {
	return strings.HasSuffix(w.Path, ".md")
}

// Agent is one installed, compiled agent.
type Agent struct {
	Name        string // file stem
	DisplayName string
	Title       string
	Icon        string
	Description string
	Module      string
	Path        string // placeholder-form path of the compiled .md
}

// WriteWorkflows writes the workflow manifest atomically, sorted by module
// then name.
func WriteWorkflows(path string, workflows []Workflow) error {
	sorted := append([]Workflow(nil), workflows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Module != sorted[j].Module {
			return sorted[i].Module < sorted[j].Module
		}
		return sorted[i].Name < sorted[j].Name
	})
	rows := make([][]string, 0, len(sorted))
	for _, w := range sorted {
		rows = append(rows, []string{w.Name, w.Description, w.Module, w.Path})
	}
	return writeCSV(path, workflowHeader, rows)
}

// ReadWorkflows reads a workflow manifest. Returns nil, nil if the file does
// not exist.
func ReadWorkflows(path string) ([]Workflow, error) {
	records, err := readCSV(path, workflowHeader)
	if err != nil || records == nil {
		return nil, err
	}
	out := make([]Workflow, 0, len(records))
	for _, r := range records {
		out = append(out, Workflow{
			Name:        r["name"],
			Description: r["description"],
			Module:      r["module"],
			Path:        r["path"],
		})
	}
	return out, nil
}

// WriteAgents writes the agent manifest atomically, sorted by module then
// name.
func WriteAgents(path string, agents []Agent) error {
	sorted := append([]Agent(nil), agents...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Module != sorted[j].Module {
			return sorted[i].Module < sorted[j].Module
		}
		return sorted[i].Name < sorted[j].Name
	})
	rows := make([][]string, 0, len(sorted))
	for _, a := range sorted {
		rows = append(rows, []string{a.Name, a.DisplayName, a.Title, a.Icon, a.Description, a.Module, a.Path})
	}
	return writeCSV(path, agentHeader, rows)
}

// ReadAgents reads an agent manifest. Returns nil, nil if the file does not
// exist.
func ReadAgents(path string) ([]Agent, error) {
	records, err := readCSV(path, agentHeader)
	if err != nil || records == nil {
		return nil, err
	}
	out := make([]Agent, 0, len(records))
	for _, r := range records {
		out = append(out, Agent{
			Name:        r["name"],
			DisplayName: r["displayName"],
			Title:       r["title"],
			Icon:        r["icon"],
			Description: r["description"],
			Module:      r["module"],
			Path:        r["path"],
		})
	}
	return out, nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing manifest header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("writing manifest rows: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("saving manifest: %w", err)
	}
	return nil
}

// readCSV returns one map per row keyed by column name. Columns are matched
// by header name, so extra or reordered columns are tolerated; every
// required column must be present.
func readCSV(path string, required []string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("manifest %s: missing column %q", path, col)
		}
	}

	records := []map[string]string{}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading manifest %s: %w", path, err)
		}
		rec := make(map[string]string, len(required))
		for _, col := range required {
			if i := index[col]; i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
