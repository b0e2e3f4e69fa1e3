package system

// ClaudeCode implements the System interface for Claude Code.
type ClaudeCode struct {
	BaseSystem
}

// NewClaudeCode creates a configured Claude Code system.
func NewClaudeCode() *ClaudeCode {
	return &ClaudeCode{BaseSystem{
		name:          "claude-code",
		displayName:   "Claude Code",
		commandDir:    ".claude/commands/bmad",
		configSignals: []string{"CLAUDE.md", ".claude"},
		format:        formatMarkdown,
		ext:           ".md",
	}}
}

// Claude Code uses the default nested BaseSystem layout:
// .claude/commands/bmad/<module>/{agents,workflows}/<name>.md

func init() { Register(NewClaudeCode()) }
