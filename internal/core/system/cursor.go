package system

// Cursor implements the System interface for the Cursor editor.
type Cursor struct {
	BaseSystem
}

// NewCursor creates a configured Cursor system.
func NewCursor() *Cursor {
	return &Cursor{BaseSystem{
		name:          "cursor",
		displayName:   "Cursor",
		commandDir:    ".cursor/commands/bmad",
		configSignals: []string{".cursor"},
		format:        formatMarkdown,
		ext:           ".md",
	}}
}

func init() { Register(NewCursor()) }
