// Package agent compiles declarative YAML agent definitions into
// self-contained Markdown runtime documents.
//
// A compiled agent is YAML frontmatter (name, description) followed by a
// fenced xml block holding the <agent> element with exactly one <activation>
// block, the persona, and a normalized menu. Compilation is idempotent: an
// already compiled document passes through unchanged apart from trigger
// normalization.
package agent

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DocumentParseError reports an agent or overlay document that could not be
// parsed.
type DocumentParseError struct {
	Path string
	Err  error
}

func (e *DocumentParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.Path, e.Err)
}

func (e *DocumentParseError) Unwrap() error { return e.Err }

// Definition is the parsed `agent:` root of an agent source file.
type Definition struct {
	Metadata        Metadata   `yaml:"metadata"`
	Persona         Persona    `yaml:"persona"`
	CriticalActions []string   `yaml:"critical_actions,omitempty"`
	Memories        []string   `yaml:"memories,omitempty"`
	Prompts         []Prompt   `yaml:"prompts,omitempty"`
	Menu            []MenuItem `yaml:"menu"`
}

// Metadata holds the identifying fields of an agent.
type Metadata struct {
	ID         string `yaml:"id,omitempty"`
	Name       string `yaml:"name"`
	Title      string `yaml:"title"`
	Icon       string `yaml:"icon,omitempty"`
	Module     string `yaml:"module,omitempty"`
	HasSidecar bool   `yaml:"hasSidecar,omitempty"`
	LocalSkip  bool   `yaml:"localskip,omitempty"`
}

// Persona describes how the agent behaves.
type Persona struct {
	Role               string     `yaml:"role"`
	Identity           string     `yaml:"identity"`
	CommunicationStyle string     `yaml:"communication_style"`
	Principles         Principles `yaml:"principles"`
}

// Principles accepts either a single block string or a list of strings.
type Principles []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Principles) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		s := strings.TrimSpace(value.Value)
		if s == "" {
			*p = nil
			return nil
		}
		*p = Principles{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*p = list
		return nil
	default:
		return fmt.Errorf("line %d: principles must be a string or a list", value.Line)
	}
}

// Prompt is a named reusable prompt referenced by menu actions.
type Prompt struct {
	ID      string `yaml:"id"`
	Content string `yaml:"content"`
}

// MenuItem is one entry of an agent menu.
type MenuItem struct {
	Trigger         string `yaml:"trigger"`
	Description     string `yaml:"description,omitempty"`
	Label           string `yaml:"label,omitempty"`
	Workflow        string `yaml:"workflow,omitempty"`
	WorkflowInstall string `yaml:"workflow-install,omitempty"`
	Exec            string `yaml:"exec,omitempty"`
	Action          string `yaml:"action,omitempty"`
	Tmpl            string `yaml:"tmpl,omitempty"`
	Data            string `yaml:"data,omitempty"`
}

// Text returns the display label of the item.
func (m MenuItem) Text() string {
	if m.Description != "" {
		return m.Description
	}
	return m.Label
}

type sourceFile struct {
	Agent *Definition `yaml:"agent"`
}

// ParseDefinition parses agent source YAML. The path is used for errors only.
func ParseDefinition(raw []byte, path string) (*Definition, error) {
	var f sourceFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, &DocumentParseError{Path: path, Err: err}
	}
	if f.Agent == nil {
		return nil, &DocumentParseError{Path: path, Err: errors.New("missing root \"agent\" key")}
	}
	return f.Agent, nil
}

// ParseFile reads and parses an agent source file.
func ParseFile(path string) (*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseDefinition(raw, path)
}

// SplitFrontmatter separates a Markdown document into its YAML frontmatter
// and body. ok is false when the document has no frontmatter.
func SplitFrontmatter(content string) (fm, body string, ok bool) {
	trimmed := strings.TrimLeft(content, " \t\r\n")
	if !strings.HasPrefix(trimmed, "---") {
		return "", content, false
	}

	start := strings.Index(content, "---")
	rest := content[start+3:]

	// Skip the newline after the opening delimiter.
	if strings.HasPrefix(rest, "\r\n") {
		rest = rest[2:]
	} else if strings.HasPrefix(rest, "\n") {
		rest = rest[1:]
	}

	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", content, false
	}

	fm = rest[:end]
	body = rest[end+4:]
	if strings.HasPrefix(body, "\r\n") {
		body = body[2:]
	} else if strings.HasPrefix(body, "\n") {
		body = body[1:]
	}
	return fm, body, true
}

// IsCompiled reports whether content is an already compiled agent document.
func IsCompiled(content []byte) bool {
	_, body, ok := SplitFrontmatter(string(content))
	return ok && strings.Contains(body, "<agent")
}
