package system

// Codex implements the System interface for the Codex CLI.
type Codex struct {
	BaseSystem
}

// NewCodex creates a configured Codex system.
func NewCodex() *Codex {
	return &Codex{BaseSystem{
		name:          "codex",
		displayName:   "Codex",
		commandDir:    ".codex/prompts",
		configSignals: []string{"codex.md", "AGENTS.md"},
		format:        formatMarkdown,
		ext:           ".md",
		flat:          true,
		prefix:        "bmad-",
	}}
}

// Codex does not read nested prompt folders, so launchers are flat and
// share the directory with user prompts. Clean only touches bmad- files.

func init() { Register(NewCodex()) }
