package system

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/tailscale/hujson"
)

const (
	copilotSettingsPath = ".vscode/settings.json"
	copilotPromptKey    = "chat.promptFiles"
)

// GitHubCopilot implements the System interface for GitHub Copilot.
type GitHubCopilot struct {
	BaseSystem
}

// NewGitHubCopilot creates a configured GitHub Copilot system.
func NewGitHubCopilot() *GitHubCopilot {
	return &GitHubCopilot{BaseSystem{
		name:             "github-copilot",
		displayName:      "GitHub Copilot",
		commandDir:       ".github/prompts",
		configSignals:    []string{".github/copilot-instructions.md"},
		format:           formatMarkdown,
		ext:              ".prompt.md",
		flat:             true,
		prefix:           "bmad-",
		frontmatterExtra: [][2]string{{"mode", "agent"}},
	}}
}

// Generate overrides BaseSystem to also enable prompt files in the VS Code
// workspace settings.
func (g *GitHubCopilot) Generate(projectDir string, in LauncherInput) (*GenerateResult, error) {
	res, err := g.BaseSystem.Generate(projectDir, in)
	if err != nil {
		return nil, err
	}
	changed, err := enablePromptFiles(filepath.Join(projectDir, filepath.FromSlash(copilotSettingsPath)))
	if err != nil {
		return nil, err
	}
	if changed {
		res.Files = append(res.Files, copilotSettingsPath)
		sort.Strings(res.Files)
	}
	return res, nil
}

// enablePromptFiles sets chat.promptFiles to true in a JSONC settings file,
// keeping comments and every other key. It reports whether the file changed.
func enablePromptFiles(configPath string) (bool, error) {
	content, err := readConfigFile(configPath)
	if err != nil {
		return false, err
	}
	if content == "" {
		content = "{}"
	}

	root, err := parseJSONC(content)
	if err != nil {
		return false, err
	}

	obj, ok := root.Value.(*hujson.Object)
	if !ok {
		return false, fmt.Errorf("%s: top-level value is not an object", configPath)
	}
	wasEmpty := len(obj.Members) == 0

	ptr := "/" + jsonPointerEscape(copilotPromptKey)
	op := "add"
	if v := root.Find(ptr); v != nil {
		if lit, ok := v.Value.(hujson.Literal); ok && string(lit) == "true" {
			return false, nil
		}
		op = "replace"
	}

	patch := fmt.Sprintf(`[{"op":%q,"path":%q,"value":true}]`, op, ptr)
	if err := root.Patch([]byte(patch)); err != nil {
		return false, fmt.Errorf("setting %s: %w", copilotPromptKey, err)
	}

	switch {
	case wasEmpty:
		root.Format()
	case op == "add":
		indentLastMember(root.Value.(*hujson.Object))
	}
	if err := writeConfigFile(configPath, string(root.Pack())); err != nil {
		return false, err
	}
	return true, nil
}

func parseJSONC(content string) (*hujson.Value, error) {
	root, err := hujson.Parse([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &root, nil
}

// indentLastMember lays out an appended member like the one before it.
// Nothing else in the document is touched.
func indentLastMember(obj *hujson.Object) {
	n := len(obj.Members)
	if n < 2 {
		return
	}
	prev := obj.Members[n-2].Name.BeforeExtra
	indent := prev
	if i := bytes.LastIndexByte(prev, '\n'); i >= 0 {
		indent = prev[i+1:]
	}
	last := &obj.Members[n-1]
	last.Name.BeforeExtra = append(hujson.Extra("\n"), indent...)
	last.Value.BeforeExtra = hujson.Extra(" ")
}

func jsonPointerEscape(s string) string {
	result := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '~':
			result = append(result, '~', '0')
		case '/':
			result = append(result, '~', '1')
		default:
			result = append(result, s[i])
		}
	}
	return string(result)
}

func init() { Register(NewGitHubCopilot()) }
