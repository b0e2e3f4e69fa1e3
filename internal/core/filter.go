package core

import (
	"bytes"
	"os"
	"path"
	"regexp"
	"strings"
)

// FeatureFlags switch optional content off regardless of configuration.
// The zero value installs everything the module configuration allows.
type FeatureFlags struct {
	SkipUserDocs     bool
	SkipGamePlanning bool
}

// gamePaths are module-relative prefixes of game development content.
var gamePaths = []string{
	"agents/game-architect",
	"agents/game-designer",
	"agents/game-dev",
	"workflows/1-analysis/game-brief",
	"workflows/2-plan-workflows/gdd",
	"workflows/2-plan-workflows/narrative",
	"workflows/3-solutioning/game-architecture",
	"teams/team-gamedev",
}

// copyFilter decides which module files reach the installed tree.
type copyFilter struct {
	skipDocs bool
	skipGame bool
}

func newCopyFilter(flags FeatureFlags, cfg ModuleConfig) copyFilter {
	return copyFilter{
		skipDocs: flags.SkipUserDocs || !cfg.Bool("install_user_docs", true),
		skipGame: flags.SkipGamePlanning || !cfg.Bool("include_game_planning", true),
	}
}

// excludeDir reports whether the module-relative slash path of a directory
// is pruned from the copy.
func (f copyFilter) excludeDir(rel string) bool {
	name := path.Base(rel)
	switch {
	case rel == installerDir || strings.HasPrefix(rel, installerDir+"/"):
		return true
	case name == "sub-modules":
		return true
	case isSidecarDir(name):
		return true
	case f.skipDocs && (rel == "docs" || strings.HasPrefix(rel, "docs/")):
		return true
	case f.skipGame && isGamePath(rel):
		return true
	}
	return false
}

// excludeFile reports whether the module-relative slash path of a file is
// left out. Agent markdown marked localskip is detected by content.
func (f copyFilter) excludeFile(rel, absPath string) bool {
	name := path.Base(rel)
	switch {
	case name == "config.yaml" || name == "custom.yaml":
		return true
	case rel == "module.yaml":
		return true
	case strings.HasSuffix(name, ".agent.yaml"):
		return true
	case f.skipGame && isGamePath(rel):
		return true
	case strings.HasSuffix(name, ".md") && underAgents(rel) && hasLocalSkip(absPath):
		return true
	}
	return false
}

func isSidecarDir(name string) bool {
	return name == "sidecar" || strings.HasSuffix(name, "-sidecar")
}

func isGamePath(rel string) bool {
	for _, p := range gamePaths {
		if rel == p || strings.HasPrefix(rel, p+"/") || strings.HasPrefix(rel, p+".") {
			return true
		}
	}
	return false
}

func underAgents(rel string) bool {
	return strings.HasPrefix(rel, "agents/")
}

var localSkipAttr = regexp.MustCompile(`<agent\b[^>]*\blocalskip="true"`)

func hasLocalSkip(absPath string) bool {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return false
	}
	if !bytes.Contains(data, []byte("localskip")) {
		return false
	}
	return localSkipAttr.Match(data)
}
