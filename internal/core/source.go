package core

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// SourceType indicates where a custom module comes from.
type SourceType string

const (
	SourceTypeLocal  SourceType = "local"
	SourceTypeGitHub SourceType = "github"
	SourceTypeGitLab SourceType = "gitlab"
	SourceTypeGit    SourceType = "git"
)

// ParsedSource is a parsed custom module source string.
type ParsedSource struct {
	Type      SourceType
	Owner     string // repository owner
	Repo      string // repository name
	CloneURL  string // full git clone URL
	Ref       string // branch or tag, if specified
	SubPath   string // module root inside the repository
	LocalPath string // absolute directory for local sources
}

// IsLocal reports whether the source is a directory on disk.
func (s *ParsedSource) IsLocal() bool { return s.Type == SourceTypeLocal }

// String returns a display form of the source.
func (s *ParsedSource) String() string {
	if s.IsLocal() {
		return s.LocalPath
	}
	out := s.CloneURL
	if s.SubPath != "" {
		out += "//" + s.SubPath
	}
	if s.Ref != "" {
		out += "@" + s.Ref
	}
	return out
}

// ownerRepoPattern matches "owner/repo" format (2 segments, no protocol).
var ownerRepoPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+/[a-zA-Z0-9_.-]+$`)

// ownerRepoPathPattern matches "owner/repo/path/to/module" format (3+ segments).
var ownerRepoPathPattern = regexp.MustCompile(`^([a-zA-Z0-9_.-]+)/([a-zA-Z0-9_.-]+)/(.+)$`)

// ParseSource parses a custom module source string.
//
// Supported formats:
//   - "./local/path" or "/abs/path"  → local directory
//   - "owner/repo"                   → GitHub repo
//   - "owner/repo/path/to/module"    → GitHub repo with subpath
//   - "owner/repo@ref"               → GitHub repo at a branch or tag
//   - "git@host:owner/repo.git"      → SSH git URL, optionally with
//     "//subpath" and a "#ref" or "@ref" suffix
//   - "https://github.com/owner/repo[/tree/ref/subpath]" → HTTPS git URL
func ParseSource(input string) (*ParsedSource, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty source")
	}

	if isLocalPath(input) {
		return parseLocalSource(input)
	}
	if strings.HasPrefix(input, "git@") {
		return parseSSHSource(input)
	}
	if strings.HasPrefix(input, "https://") || strings.HasPrefix(input, "http://") {
		return parseHTTPSource(input)
	}

	ref := ""
	if at := strings.LastIndex(input, "@"); at > 0 {
		input, ref = input[:at], input[at+1:]
	}

	if m := ownerRepoPathPattern.FindStringSubmatch(input); m != nil {
		return &ParsedSource{
			Type:     SourceTypeGitHub,
			Owner:    m[1],
			Repo:     m[2],
			CloneURL: fmt.Sprintf("https://github.com/%s/%s.git", m[1], m[2]),
			SubPath:  m[3],
			Ref:      ref,
		}, nil
	}
	if ownerRepoPattern.MatchString(input) {
		segments := strings.SplitN(input, "/", 2)
		return &ParsedSource{
			Type:     SourceTypeGitHub,
			Owner:    segments[0],
			Repo:     segments[1],
			CloneURL: fmt.Sprintf("https://github.com/%s/%s.git", segments[0], segments[1]),
			Ref:      ref,
		}, nil
	}

	// A bare existing directory name is treated as local.
	if dirExists(input) {
		return parseLocalSource(input)
	}
	return nil, fmt.Errorf("unrecognized source format: %q", input)
}

func isLocalPath(input string) bool {
	return strings.HasPrefix(input, "./") ||
		strings.HasPrefix(input, "../") ||
		strings.HasPrefix(input, "/") ||
		strings.HasPrefix(input, "~/") ||
		input == "." || input == ".."
}

func parseLocalSource(input string) (*ParsedSource, error) {
	absPath, err := filepath.Abs(expandPath(input))
	if err != nil {
		return nil, fmt.Errorf("resolving local path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("local path not found: %s", absPath)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local path is not a directory: %s", absPath)
	}

	return &ParsedSource{
		Type:      SourceTypeLocal,
		LocalPath: absPath,
	}, nil
}

func parseSSHSource(input string) (*ParsedSource, error) {
	// git@github.com:owner/repo.git[//subpath][#ref|@ref]
	parts := strings.SplitN(input, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid SSH URL: %q", input)
	}

	host := strings.TrimPrefix(parts[0], "git@")
	repoPath, ref := parts[1], ""
	if i := strings.LastIndexAny(repoPath, "#@"); i >= 0 {
		repoPath, ref = repoPath[:i], repoPath[i+1:]
	}
	subPath := ""
	if i := strings.Index(repoPath, "//"); i >= 0 {
		repoPath, subPath = repoPath[:i], strings.Trim(repoPath[i+2:], "/")
	}
	if repoPath == "" {
		return nil, fmt.Errorf("invalid SSH URL: %q", input)
	}
	segments := strings.SplitN(strings.TrimSuffix(repoPath, ".git"), "/", 2)

	result := &ParsedSource{
		Type:     hostType(host),
		CloneURL: parts[0] + ":" + repoPath,
		Ref:      ref,
		SubPath:  subPath,
	}
	if len(segments) == 2 {
		result.Owner = segments[0]
		result.Repo = segments[1]
	}
	return result, nil
}

func parseHTTPSource(input string) (*ParsedSource, error) {
	u, err := url.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// Parse path segments: /owner/repo[/tree/ref/subpath]
	pathParts := strings.Split(strings.Trim(u.Path, "/"), "/")
	result := &ParsedSource{Type: hostType(u.Host)}

	if len(pathParts) < 2 {
		result.CloneURL = input
		return result, nil
	}

	result.Owner = pathParts[0]
	result.Repo = strings.TrimSuffix(pathParts[1], ".git")
	result.CloneURL = fmt.Sprintf("https://%s/%s/%s.git", u.Host, result.Owner, result.Repo)
	if len(pathParts) >= 4 && pathParts[2] == "tree" {
		result.Ref = pathParts[3]
		if len(pathParts) > 4 {
			result.SubPath = strings.Join(pathParts[4:], "/")
		}
	}
	return result, nil
}

func hostType(host string) SourceType {
	switch {
	case strings.Contains(host, "github.com"):
		return SourceTypeGitHub
	case strings.Contains(host, "gitlab.com"):
		return SourceTypeGitLab
	default:
		return SourceTypeGit
	}
}
