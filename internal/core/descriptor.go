package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// installerDir holds installer-only files of a module; never installed.
const installerDir = "_module-installer"

// descriptorCandidates lists descriptor locations in resolution order.
var descriptorCandidates = []string{
	"module.yaml",
	filepath.Join(installerDir, "module.yaml"),
	filepath.Join(installerDir, "custom.yaml"),
	"custom.yaml",
}

// customValueFiles are the files whose plain key/values override the
// resolved module configuration.
var customValueFiles = []string{
	"custom.yaml",
	filepath.Join(installerDir, "custom.yaml"),
}

// descriptorMetaKeys are descriptor keys that are not configuration.
var descriptorMetaKeys = map[string]bool{
	"code":             true,
	"name":             true,
	"description":      true,
	"version":          true,
	"default_selected": true,
	"dependencies":     true,
	"header":           true,
	"subheader":        true,
	"author":           true,
}

// findDescriptor returns the descriptor file for dir, or "" when dir is not
// a module.
func findDescriptor(dir string) string {
	for _, c := range descriptorCandidates {
		p := filepath.Join(dir, c)
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// parseDescriptor reads the module descriptor at path for the module rooted
// at root. An invalid version is kept verbatim and returned as a warning.
func parseDescriptor(path, root string, kind SourceKind) (*ModuleDescriptor, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading descriptor: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "", fmt.Errorf("parsing descriptor %s: %w", path, err)
	}

	m := &ModuleDescriptor{
		ID:             filepath.Base(root),
		Kind:           kind,
		Path:           root,
		DescriptorPath: path,
	}
	if len(doc.Content) == 0 {
		return m, "", nil
	}
	mapping := doc.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, "", fmt.Errorf("parsing descriptor %s: top level is not a mapping", path)
	}

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, val := mapping.Content[i].Value, mapping.Content[i+1]
		switch key {
		case "code":
			if v := strings.TrimSpace(val.Value); v != "" {
				m.ID = v
			}
		case "name":
			m.Name = val.Value
		case "description":
			m.Description = val.Value
		case "version":
			m.Version = val.Value
		case "default_selected":
			_ = val.Decode(&m.DefaultSelected)
		case "dependencies":
			if err := val.Decode(&m.Dependencies); err != nil {
				return nil, "", fmt.Errorf("parsing descriptor %s: dependencies: %w", path, err)
			}
		default:
			if p, ok := promptFromNode(key, val); ok {
				m.Prompts = append(m.Prompts, p)
			}
		}
	}
	if m.Name == "" {
		m.Name = m.ID
	}

	var warning string
	if m.Version != "" && !semver.IsValid(canonicalVersion(m.Version)) {
		warning = fmt.Sprintf("module %s: version %q is not a valid semantic version", m.ID, m.Version)
	}
	return m, warning, nil
}

func promptFromNode(key string, val *yaml.Node) (ConfigPrompt, bool) {
	if val.Kind != yaml.MappingNode {
		return ConfigPrompt{}, false
	}
	var raw struct {
		Prompt  any    `yaml:"prompt"`
		Default any    `yaml:"default"`
		Result  string `yaml:"result"`
	}
	if err := val.Decode(&raw); err != nil {
		return ConfigPrompt{}, false
	}
	if raw.Prompt == nil && raw.Result == "" && raw.Default == nil {
		return ConfigPrompt{}, false
	}
	p := ConfigPrompt{Key: key, Default: raw.Default, Result: raw.Result}
	switch v := raw.Prompt.(type) {
	case string:
		p.Prompt = v
	case []any:
		parts := make([]string, 0, len(v))
		for _, s := range v {
			parts = append(parts, fmt.Sprint(s))
		}
		p.Prompt = strings.Join(parts, " ")
	}
	return p, true
}

// canonicalVersion adds the "v" prefix semver expects.
func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// CompareVersions compares two module versions as semantic versions.
// Invalid versions sort before valid ones.
func CompareVersions(a, b string) int {
	return semver.Compare(canonicalVersion(a), canonicalVersion(b))
}

// readCustomValues returns the plain key/values of a module's custom
// descriptor, in file order. Prompt mappings and descriptor metadata are
// skipped.
func readCustomValues(root string) (ModuleConfig, string, error) {
	var cfg ModuleConfig
	for _, name := range customValueFiles {
		path := filepath.Join(root, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return cfg, "", fmt.Errorf("reading custom values: %w", err)
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return cfg, "", fmt.Errorf("parsing %s: %w", path, err)
		}
		if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
			return cfg, path, nil
		}
		mapping := doc.Content[0]
		for i := 0; i+1 < len(mapping.Content); i += 2 {
			key, val := mapping.Content[i].Value, mapping.Content[i+1]
			if descriptorMetaKeys[key] || val.Kind == yaml.MappingNode {
				continue
			}
			var v any
			if err := val.Decode(&v); err != nil {
				return cfg, "", fmt.Errorf("parsing %s: %s: %w", path, key, err)
			}
			cfg.Set(key, v)
		}
		return cfg, path, nil
	}
	return cfg, "", nil
}
