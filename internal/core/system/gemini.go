package system

// GeminiCLI implements the System interface for the Gemini CLI.
type GeminiCLI struct {
	BaseSystem
}

// NewGeminiCLI creates a configured Gemini CLI system.
func NewGeminiCLI() *GeminiCLI {
	return &GeminiCLI{BaseSystem{
		name:          "gemini-cli",
		displayName:   "Gemini CLI",
		commandDir:    ".gemini/commands/bmad",
		configSignals: []string{"GEMINI.md", ".gemini"},
		format:        formatTOML,
		ext:           ".toml",
	}}
}

// Gemini CLI custom commands are TOML files with description and prompt keys.

func init() { Register(NewGeminiCLI()) }
