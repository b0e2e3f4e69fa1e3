package hook

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/barysiuk/bmadkit/internal/core/placeholder"
)

func init() {
	Register("bmm", Func(createOutputFolders))
}

// createOutputFolders makes every configured *_folder directory of the
// module that lives inside the project.
func createOutputFolders(ctx Context) (bool, error) {
	var keys []string
	for k := range ctx.Config {
		if strings.HasSuffix(k, "_folder") && k != "bmad_folder" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	r := placeholder.New(ctx.ProjectRoot, ctx.FolderName)
	ok := true
	for _, key := range keys {
		raw, _ := ctx.String(key)
		if strings.TrimSpace(raw) == "" {
			continue
		}
		dir := filepath.FromSlash(r.Resolve(raw))
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(ctx.ProjectRoot, dir)
		}
		if !inside(ctx.ProjectRoot, dir) {
			ctx.Logger.Warn(fmt.Sprintf("%s %q is outside the project, not creating it", key, raw))
			ok = false
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("creating %s: %w", key, err)
		}
		ctx.Logger.Info(fmt.Sprintf("Created %s", dir))
	}
	return ok, nil
}

func inside(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
