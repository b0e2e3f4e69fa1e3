package system

// OpenCode implements the System interface for the OpenCode AI coding tool.
type OpenCode struct {
	BaseSystem
}

// NewOpenCode creates a configured OpenCode system.
func NewOpenCode() *OpenCode {
	return &OpenCode{BaseSystem{
		name:          "opencode",
		displayName:   "OpenCode",
		commandDir:    ".opencode/command/bmad",
		configSignals: []string{"opencode.json", "opencode.jsonc"},
		format:        formatMarkdown,
		ext:           ".md",
	}}
}

func init() { Register(NewOpenCode()) }
