// Package system defines the System abstraction for bmadkit.
//
// A System represents an AI coding tool (Claude Code, Cursor, Gemini CLI,
// etc.). Each system knows where its command files live and how to render a
// launcher for every installed workflow and agent. Systems are
// self-contained Go structs registered from init().
package system

import (
	"fmt"
	"strings"

	"github.com/barysiuk/bmadkit/internal/core/manifest"
)

// System defines how an AI coding tool receives launchers.
type System interface {
	// Identity
	Name() string        // machine name: "cursor", "claude-code"
	DisplayName() string // human name: "Cursor", "Claude Code"

	// Detection
	IsActiveInFolder(folderPath string) bool
	DetectionSignals() []string

	// CommandDir is the absolute directory launchers are written to.
	CommandDir(projectDir string) string

	// Generate replaces every launcher of this system with launchers for in.
	Generate(projectDir string, in LauncherInput) (*GenerateResult, error)

	// Clean removes every launcher this system generated.
	Clean(projectDir string) error
}

// LauncherInput is what launchers are generated from.
type LauncherInput struct {
	FolderName string
	Workflows  []manifest.Workflow
	Agents     []manifest.Agent
}

// GenerateResult lists the files a system wrote.
type GenerateResult struct {
	System    string
	Files     []string // project-relative, slash-separated, sorted
	Workflows int
	Agents    int
}

// --- Registry ---

var systems []System

// Register adds a system to the global registry.
func Register(s System) { systems = append(systems, s) }

// All returns all registered systems.
func All() []System { return systems }

// ByName returns the system with the given machine name, if registered.
func ByName(name string) (System, bool) {
	for _, s := range systems {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// ByNames resolves a list of system names to System values.
// Returns an error if any name is unknown.
func ByNames(names []string) ([]System, error) {
	result := make([]System, 0, len(names))
	for _, name := range names {
		s, ok := ByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown IDE %q; available: %s",
				name, strings.Join(Names(systems), ", "))
		}
		result = append(result, s)
	}
	return result, nil
}

// DetectInFolder returns systems active in the given project folder.
func DetectInFolder(path string) []System {
	var detected []System
	for _, s := range systems {
		if s.IsActiveInFolder(path) {
			detected = append(detected, s)
		}
	}
	return detected
}

// Names returns the machine names of the given systems.
func Names(systems []System) []string {
	names := make([]string, len(systems))
	for i, s := range systems {
		names[i] = s.Name()
	}
	return names
}

// DisplayNames returns the display names of the given systems.
func DisplayNames(systems []System) []string {
	names := make([]string, len(systems))
	for i, s := range systems {
		names[i] = s.DisplayName()
	}
	return names
}
