package agent

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// TriggerPrefix marks every menu trigger in a compiled agent.
const TriggerPrefix = "*"

const preamble = "You must fully embody this agent's persona and follow all activation instructions exactly as specified. NEVER break character until given an exit command."

// Options configures a compilation.
type Options struct {
	SourcePath  string   // used for errors and to derive Name
	Module      string   // owning module; falls back to metadata.module
	Name        string   // file stem of the compiled agent
	Overlay     *Overlay // optional customization overlay
	SidecarPath string   // placeholder-form path of the agent's sidecar folder
}

// Result is a compiled agent.
type Result struct {
	Content       []byte
	Definition    *Definition // nil when the input was already compiled
	Applied       []string    // overlay fields applied
	IgnoredFields []string    // overlay fields listed but not recognized
}

// Compile turns an agent source document into its runtime form. Input that
// is already a compiled document only has its triggers normalized and, if
// missing, its activation block injected.
func Compile(src []byte, opts Options) (*Result, error) {
	if IsCompiled(src) {
		content := normalizeCompiledTriggers(src)
		content, _ = InjectActivation(content, opts.Module)
		return &Result{Content: content}, nil
	}

	def, err := ParseDefinition(src, opts.SourcePath)
	if err != nil {
		return nil, err
	}
	applied, ignored := opts.Overlay.Apply(def)

	content, err := render(def, opts)
	if err != nil {
		return nil, &DocumentParseError{Path: opts.SourcePath, Err: err}
	}
	return &Result{
		Content:       content,
		Definition:    def,
		Applied:       applied,
		IgnoredFields: ignored,
	}, nil
}

// NameFromPath derives the compiled agent name from a source path
// ("agents/analyst.agent.yaml" -> "analyst").
func NameFromPath(path string) string {
	base := filepath.Base(path)
	for _, suffix := range []string{".agent.yaml", ".agent.yml", ".yaml", ".yml", ".md"} {
		if strings.HasSuffix(base, suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return base
}

// NormalizeTrigger returns t with exactly one leading TriggerPrefix.
func NormalizeTrigger(t string) string {
	t = strings.TrimLeft(strings.TrimSpace(t), TriggerPrefix)
	if t == "" {
		return ""
	}
	return TriggerPrefix + t
}

var compiledCmdAttr = regexp.MustCompile(`cmd="([^"]*)"`)

func normalizeCompiledTriggers(doc []byte) []byte {
	return compiledCmdAttr.ReplaceAllFunc(doc, func(m []byte) []byte {
		sub := compiledCmdAttr.FindSubmatch(m)
		return []byte(`cmd="` + NormalizeTrigger(string(sub[1])) + `"`)
	})
}

func render(def *Definition, opts Options) ([]byte, error) {
	name := opts.Name
	if name == "" {
		name = NameFromPath(opts.SourcePath)
	}
	module := opts.Module
	if module == "" {
		module = def.Metadata.Module
	}
	description := def.Metadata.Title
	if description == "" {
		description = name
	}

	fm, err := marshalFrontmatter([][2]string{{"name", name}, {"description", description}})
	if err != nil {
		return nil, fmt.Errorf("marshaling frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	buf.WriteString(preamble)
	buf.WriteString("\n\n```xml\n")

	agentID := name + ".md"
	if module != "" {
		agentID = fmt.Sprintf("{bmad_folder}/%s/agents/%s.md", module, name)
	}
	fmt.Fprintf(&buf, `<agent id="%s" name="%s" title="%s"`,
		escapeAttr(agentID), escapeAttr(def.Metadata.Name), escapeAttr(def.Metadata.Title))
	if def.Metadata.Icon != "" {
		fmt.Fprintf(&buf, ` icon="%s"`, escapeAttr(def.Metadata.Icon))
	}
	buf.WriteString(">\n")

	handlers := make(map[string]bool)
	for _, item := range def.Menu {
		for attr := range itemAttrs(item) {
			handlers[attr] = true
		}
	}
	buf.WriteString(buildActivation(activationConfig{
		Module:          module,
		CriticalActions: def.CriticalActions,
		SidecarPath:     sidecarFor(def, opts),
		Handlers:        handlers,
	}))

	writePersona(&buf, def.Persona)
	writeMemories(&buf, def.Memories)
	writePrompts(&buf, def.Prompts)
	writeMenu(&buf, def.Menu)

	buf.WriteString("</agent>\n```\n")
	return buf.Bytes(), nil
}

func sidecarFor(def *Definition, opts Options) string {
	if !def.Metadata.HasSidecar {
		return ""
	}
	return opts.SidecarPath
}

func writePersona(buf *bytes.Buffer, p Persona) {
	buf.WriteString("<persona>\n")
	writeElement(buf, "role", p.Role)
	writeElement(buf, "identity", p.Identity)
	writeElement(buf, "communication_style", p.CommunicationStyle)
	if len(p.Principles) == 1 {
		writeElement(buf, "principles", p.Principles[0])
	} else if len(p.Principles) > 1 {
		lines := make([]string, len(p.Principles))
		for i, pr := range p.Principles {
			lines[i] = "- " + strings.TrimSpace(pr)
		}
		writeElement(buf, "principles", strings.Join(lines, "\n"))
	}
	buf.WriteString("</persona>\n")
}

func writeElement(buf *bytes.Buffer, tag, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	fmt.Fprintf(buf, "  <%s>%s</%s>\n", tag, escapeText(value), tag)
}

func writeMemories(buf *bytes.Buffer, memories []string) {
	if len(memories) == 0 {
		return
	}
	buf.WriteString("<memories>\n")
	for _, m := range memories {
		writeElement(buf, "memory", m)
	}
	buf.WriteString("</memories>\n")
}

func writePrompts(buf *bytes.Buffer, prompts []Prompt) {
	if len(prompts) == 0 {
		return
	}
	buf.WriteString("<prompts>\n")
	for _, p := range prompts {
		fmt.Fprintf(buf, "  <prompt id=\"%s\">\n%s\n  </prompt>\n",
			escapeAttr(p.ID), escapeText(strings.TrimRight(p.Content, "\n")))
	}
	buf.WriteString("</prompts>\n")
}

func writeMenu(buf *bytes.Buffer, items []MenuItem) {
	buf.WriteString("<menu>\n")
	buf.WriteString("  <item cmd=\"*help\">Show numbered menu</item>\n")
	for _, item := range items {
		trigger := NormalizeTrigger(item.Trigger)
		if trigger == "" || trigger == "*help" || trigger == "*exit" {
			continue
		}
		fmt.Fprintf(buf, "  <item cmd=\"%s\"", escapeAttr(trigger))
		attrs := itemAttrs(item)
		for _, attr := range handlerOrder {
			if v, ok := attrs[attr]; ok {
				fmt.Fprintf(buf, " %s=\"%s\"", attr, escapeAttr(v))
			}
		}
		fmt.Fprintf(buf, ">%s</item>\n", escapeText(item.Text()))
	}
	buf.WriteString("  <item cmd=\"*exit\">Exit with confirmation</item>\n")
	buf.WriteString("</menu>\n")
}

// itemAttrs returns the handler attributes of a menu item. A vendored
// workflow is referenced at its install destination.
func itemAttrs(item MenuItem) map[string]string {
	attrs := make(map[string]string)
	switch {
	case item.WorkflowInstall != "":
		attrs["workflow"] = item.WorkflowInstall
	case item.Workflow != "":
		attrs["workflow"] = item.Workflow
	}
	if item.Exec != "" {
		attrs["exec"] = item.Exec
	}
	if item.Tmpl != "" {
		attrs["tmpl"] = item.Tmpl
	}
	if item.Data != "" {
		attrs["data"] = item.Data
	}
	if item.Action != "" {
		attrs["action"] = item.Action
	}
	return attrs
}

// marshalFrontmatter serializes key/value pairs in the given order with
// double-quoted values.
func marshalFrontmatter(pairs [][2]string) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, kv := range pairs {
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kv[0]},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kv[1], Style: yaml.DoubleQuotedStyle},
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Job is one agent to compile in a batch.
type Job struct {
	Source  []byte
	Options Options
}

// BatchResult is the outcome of one Job. Exactly one of Result and Err is set.
type BatchResult struct {
	Name   string
	Result *Result
	Err    error
}

// CompileAll compiles every job. A failing agent does not stop the others.
func CompileAll(jobs []Job) []BatchResult {
	out := make([]BatchResult, 0, len(jobs))
	for _, job := range jobs {
		name := job.Options.Name
		if name == "" {
			name = NameFromPath(job.Options.SourcePath)
		}
		res, err := Compile(job.Source, job.Options)
		out = append(out, BatchResult{Name: name, Result: res, Err: err})
	}
	return out
}
