// Package placeholder resolves the abstract location tokens embedded in
// module content ({project-root}, {bmad_folder}) into concrete values.
//
// Resolution is a single left-to-right pass, so the escaped literal form
// {*bmad_folder*} becomes {bmad_folder} in the output without being replaced
// again. Unknown tokens are left untouched.
package placeholder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ProjectRoot stands for the absolute path of the target project.
	ProjectRoot = "{project-root}"
	// Folder stands for the configurable install folder name (e.g. "_bmad").
	Folder = "{bmad_folder}"
	// EscapedFolder is the literal form of Folder; it resolves to Folder itself.
	EscapedFolder = "{*bmad_folder*}"
)

// DefaultFolderName is the install folder used when none is configured.
const DefaultFolderName = "_bmad"

// textExtensions are the file types that receive placeholder substitution.
// Everything else is copied byte-for-byte.
var textExtensions = map[string]bool{
	".md":   true,
	".yaml": true,
	".yml":  true,
	".txt":  true,
	".csv":  true,
	".xml":  true,
	".json": true,
	".toml": true,
	".html": true,
	".js":   true,
	".ts":   true,
	".py":   true,
	".sh":   true,
}

// Resolver substitutes placeholder tokens. The zero value resolves nothing
// except escaped literals.
type Resolver struct {
	projectRoot string
	folderName  string
	replacer    *strings.Replacer
}

// New creates a Resolver. An empty projectRoot leaves {project-root} in place,
// which keeps installed file contents relocatable. An empty folderName leaves
// {bmad_folder} in place.
func New(projectRoot, folderName string) *Resolver {
	pairs := []string{EscapedFolder, Folder}
	if folderName != "" {
		pairs = append(pairs, Folder, folderName)
	}
	if projectRoot != "" {
		pairs = append(pairs, ProjectRoot, filepath.ToSlash(projectRoot))
	}
	return &Resolver{
		projectRoot: projectRoot,
		folderName:  folderName,
		replacer:    strings.NewReplacer(pairs...),
	}
}

// ProjectRoot returns the configured project root ("" when unresolved).
func (r *Resolver) ProjectRoot() string { return r.projectRoot }

// FolderName returns the configured install folder name.
func (r *Resolver) FolderName() string { return r.folderName }

// ForContent returns a Resolver with the same folder name that leaves
// {project-root} untouched.
func (r *Resolver) ForContent() *Resolver {
	if r.projectRoot == "" {
		return r
	}
	return New("", r.folderName)
}

// Resolve replaces every recognized token in s.
func (r *Resolver) Resolve(s string) string {
	if r == nil || r.replacer == nil || !strings.Contains(s, "{") {
		return s
	}
	return r.replacer.Replace(s)
}

// ResolveBytes is Resolve for file contents.
func (r *Resolver) ResolveBytes(b []byte) []byte {
	if r == nil || r.replacer == nil {
		return b
	}
	return []byte(r.Resolve(string(b)))
}

// ResolvePath resolves tokens in p and converts it to a native path.
func (r *Resolver) ResolvePath(p string) string {
	return filepath.FromSlash(r.Resolve(p))
}

// IsText reports whether a file receives placeholder substitution.
func IsText(path string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(path))]
}

// CopyFile copies src to dst, creating parent directories. Text files are
// passed through the resolver; binary files are copied unchanged. The source
// file mode is preserved.
func (r *Resolver) CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
	}

	if IsText(src) {
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		return os.WriteFile(dst, r.ResolveBytes(data), info.Mode().Perm())
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = srcFile.Close() }()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() { _ = dstFile.Close() }()

	_, err = io.Copy(dstFile, srcFile)
	return err
}
