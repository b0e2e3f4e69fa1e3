package agent

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// handlerOrder fixes the order menu handlers appear in the activation block.
var handlerOrder = []string{"workflow", "exec", "tmpl", "data", "action"}

var handlerText = map[string]string{
	"workflow": `When menu item has: workflow="path/to/workflow.yaml"
    1. CRITICAL: Always LOAD {project-root}/{bmad_folder}/core/tasks/workflow.xml
    2. Read the complete file - this is the CORE OS for executing workflows
    3. Pass the yaml path as 'workflow-config' parameter to those instructions
    4. Execute workflow.xml instructions precisely following all steps
    5. Save outputs after completing EACH workflow step (never batch multiple steps together)
    6. If workflow.yaml path is "todo", inform user the workflow hasn't been implemented yet`,
	"exec": `When menu item has: exec="path/to/file.md"
    Actually LOAD and EXECUTE the file at that path - do not improvise`,
	"tmpl": `When menu item has: tmpl="path/to/template.md"
    Load the template file and use it as the structure for the output document`,
	"data": `When menu item has: data="path/to/file"
    Load the file first, parse according to extension, make available as {data} variable to subsequent handler operations`,
	"action": `When menu item has: action="#id"
    Find prompt with id="id" in current agent XML, execute its content
    When menu item has: action="text"
    Execute the text directly as an inline instruction`,
}

// activationConfig carries what the activation block depends on.
type activationConfig struct {
	Module          string
	CriticalActions []string
	SidecarPath     string
	Handlers        map[string]bool
}

// buildActivation renders the canonical activation block.
func buildActivation(cfg activationConfig) string {
	module := cfg.Module
	if module == "" {
		module = "core"
	}

	var steps []string
	steps = append(steps,
		"Load persona from this current agent file (already in context)",
		fmt.Sprintf(`IMMEDIATE ACTION REQUIRED - BEFORE ANY OUTPUT:
      - Load and read {project-root}/{bmad_folder}/%s/config.yaml NOW
      - Store ALL fields as session variables: {user_name}, {communication_language}, {output_folder}
      - VERIFY: If config not loaded, STOP and report error to user
      - DO NOT PROCEED to step 3 until config is successfully loaded and variables stored`, module),
		"Remember: user's name is {user_name}",
	)
	if cfg.SidecarPath != "" {
		steps = append(steps, fmt.Sprintf(
			"Load COMPLETE files from %s/ - these are your persistent memories; only write inside this folder",
			strings.TrimSuffix(cfg.SidecarPath, "/")))
	}
	for _, action := range cfg.CriticalActions {
		if a := strings.TrimSpace(action); a != "" {
			steps = append(steps, a)
		}
	}
	steps = append(steps,
		"Show greeting using {user_name} from config, communicate in {communication_language}, then display numbered list of ALL menu items from menu section",
		"STOP and WAIT for user input - do NOT execute menu items automatically - accept number or cmd trigger or fuzzy command match",
		`On user input: Number: execute menu item[n] | Text: case-insensitive substring match | Multiple matches: ask user to clarify | No match: show "Not recognized"`,
		"When executing a menu item: Check menu-handlers section below - extract any attributes from the selected menu item (workflow, exec, tmpl, data, action) and follow the corresponding handler instructions",
	)

	var b strings.Builder
	b.WriteString("<activation critical=\"MANDATORY\">\n")
	for i, s := range steps {
		fmt.Fprintf(&b, "  <step n=\"%d\">%s</step>\n", i+1, escapeText(s))
	}

	var handlers []string
	for _, h := range handlerOrder {
		if cfg.Handlers[h] {
			handlers = append(handlers, h)
		}
	}
	if len(handlers) > 0 {
		b.WriteString("\n  <menu-handlers>\n    <handlers>\n")
		for _, h := range handlers {
			fmt.Fprintf(&b, "      <handler type=\"%s\">\n    %s\n      </handler>\n", h, escapeText(handlerText[h]))
		}
		b.WriteString("    </handlers>\n  </menu-handlers>\n")
	}

	b.WriteString(`
  <rules>
    - ALWAYS communicate in {communication_language} UNLESS contradicted by communication_style
    - Stay in character until exit selected
    - Menu triggers use asterisk (*) - NOT markdown, display exactly as shown
    - Number all lists, use letters for sub-options
    - Load files ONLY when executing menu items or a workflow or command requires it. EXCEPTION: Config file MUST be loaded at startup step 2
    - Written file output in workflows uses professional {communication_language}
  </rules>
</activation>
`)
	return b.String()
}

var (
	agentOpenTag   = regexp.MustCompile(`<agent\b[^>]*>`)
	handlerAttrRef = regexp.MustCompile(`\s(workflow|exec|tmpl|data|action)="`)
)

// HasActivation reports whether doc already contains an activation block.
func HasActivation(doc []byte) bool {
	return bytes.Contains(doc, []byte("<activation"))
}

// InjectActivation inserts the canonical activation block directly after
// the opening <agent> tag when doc has none. It reports whether doc changed.
// Menu handlers are derived from the attributes the document uses.
func InjectActivation(doc []byte, module string) ([]byte, bool) {
	if HasActivation(doc) {
		return doc, false
	}
	loc := agentOpenTag.FindIndex(doc)
	if loc == nil {
		return doc, false
	}

	handlers := make(map[string]bool)
	for _, m := range handlerAttrRef.FindAllSubmatch(doc[loc[1]:], -1) {
		handlers[string(m[1])] = true
	}
	block := buildActivation(activationConfig{Module: module, Handlers: handlers})

	var out bytes.Buffer
	out.Grow(len(doc) + len(block) + 1)
	out.Write(doc[:loc[1]])
	out.WriteString("\n")
	out.WriteString(block)
	rest := doc[loc[1]:]
	out.Write(bytes.TrimPrefix(rest, []byte("\n")))
	return out.Bytes(), true
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

func escapeText(s string) string { return textEscaper.Replace(s) }
func escapeAttr(s string) string { return attrEscaper.Replace(s) }
