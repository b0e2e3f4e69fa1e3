package core

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/barysiuk/bmadkit/internal/core/placeholder"
)

// ConfigEntry is one key/value of a module configuration.
type ConfigEntry struct {
	Key   string
	Value any
}

// ModuleConfig is an ordered set of configuration values. The zero value is
// an empty configuration ready to use.
type ModuleConfig struct {
	entries []ConfigEntry
}

// NewModuleConfig builds a configuration from entries, later keys winning.
func NewModuleConfig(entries ...ConfigEntry) ModuleConfig {
	var c ModuleConfig
	for _, e := range entries {
		c.Set(e.Key, e.Value)
	}
	return c
}

// Set adds key or replaces its value in place.
func (c *ModuleConfig) Set(key string, value any) {
	for i := range c.entries {
		if c.entries[i].Key == key {
			c.entries[i].Value = value
			return
		}
	}
	c.entries = append(c.entries, ConfigEntry{Key: key, Value: value})
}

// Get returns the value for key.
func (c ModuleConfig) Get(key string) (any, bool) {
	for _, e := range c.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// String returns the value for key formatted as a string, or "".
func (c ModuleConfig) String(key string) string {
	v, ok := c.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Bool returns the value for key as a boolean, or def when unset or not a
// recognizable boolean.
func (c ModuleConfig) Bool(key string, def bool) bool {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "y":
			return true
		case "false", "no", "n":
			return false
		}
	}
	return def
}

// Len returns the number of entries.
func (c ModuleConfig) Len() int { return len(c.entries) }

// Entries returns a copy of the entries in order.
func (c ModuleConfig) Entries() []ConfigEntry {
	return append([]ConfigEntry(nil), c.entries...)
}

// Map returns the entries as a map.
func (c ModuleConfig) Map() map[string]any {
	m := make(map[string]any, len(c.entries))
	for _, e := range c.entries {
		m[e.Key] = e.Value
	}
	return m
}

// Clone returns an independent copy.
func (c ModuleConfig) Clone() ModuleConfig {
	return ModuleConfig{entries: c.Entries()}
}

// MergeConfig returns base with overlay applied on top. When allow is
// non-nil only the listed overlay keys are applied. The second return value
// lists base keys whose value the overlay replaced.
func MergeConfig(base, overlay ModuleConfig, allow []string) (ModuleConfig, []string) {
	var allowed map[string]bool
	if allow != nil {
		allowed = make(map[string]bool, len(allow))
		for _, k := range allow {
			allowed[k] = true
		}
	}

	merged := base.Clone()
	var overridden []string
	for _, e := range overlay.entries {
		if allowed != nil && !allowed[e.Key] {
			continue
		}
		if _, ok := merged.Get(e.Key); ok {
			overridden = append(overridden, e.Key)
		}
		merged.Set(e.Key, e.Value)
	}
	return merged, overridden
}

var configRef = regexp.MustCompile(`\{([a-z_][a-z0-9_]*)\}`)

// ResolvePrompts computes the configuration a module's prompts produce.
// Answers win over defaults. {value} in a result template is the answer;
// other {key} references resolve against values computed so far and then
// against core; path placeholders are handled by r.
func ResolvePrompts(prompts []ConfigPrompt, answers map[string]any, core ModuleConfig, r *placeholder.Resolver) ModuleConfig {
	var cfg ModuleConfig
	lookup := func(key string) (string, bool) {
		if v, ok := cfg.Get(key); ok {
			return fmt.Sprint(v), true
		}
		if v, ok := core.Get(key); ok {
			return fmt.Sprint(v), true
		}
		return "", false
	}
	expand := func(s string) string {
		s = configRef.ReplaceAllStringFunc(s, func(m string) string {
			key := m[1 : len(m)-1]
			if key == "value" || key == "bmad_folder" {
				return m
			}
			if v, ok := lookup(key); ok {
				return v
			}
			return m
		})
		return r.Resolve(s)
	}

	for _, p := range prompts {
		value := p.Default
		if a, ok := answers[p.Key]; ok {
			value = a
		}

		tmpl := strings.TrimSpace(p.Result)
		if tmpl == "" || tmpl == "{value}" {
			if s, ok := value.(string); ok {
				cfg.Set(p.Key, expand(s))
			} else {
				cfg.Set(p.Key, value)
			}
			continue
		}
		s := ""
		if value != nil {
			s = fmt.Sprint(value)
		}
		cfg.Set(p.Key, expand(strings.ReplaceAll(tmpl, "{value}", s)))
	}
	return cfg
}

// WriteModuleConfig writes a module's config.yaml. Core values the module
// does not define are appended after the module's own values.
func WriteModuleConfig(path, moduleID string, cfg, core ModuleConfig) error {
	doc := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	doc.HeadComment = fmt.Sprintf("%s module configuration\nGenerated by bmadkit; edits are lost on reinstall.", strings.ToUpper(moduleID))

	add := func(e ConfigEntry, comment string) error {
		var val yaml.Node
		if err := val.Encode(e.Value); err != nil {
			return fmt.Errorf("encoding %s: %w", e.Key, err)
		}
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Key, HeadComment: comment}
		doc.Content = append(doc.Content, key, &val)
		return nil
	}

	for _, e := range cfg.entries {
		if err := add(e, ""); err != nil {
			return err
		}
	}
	first := true
	for _, e := range core.entries {
		if _, ok := cfg.Get(e.Key); ok {
			continue
		}
		comment := ""
		if first && moduleID != CoreModuleID {
			comment = "Core configuration values"
			first = false
		}
		if err := add(e, comment); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return writeFileAtomic(path, buf.Bytes())
}

// ReadModuleConfig reads a config.yaml written by WriteModuleConfig, keeping
// key order. A missing file yields an empty configuration.
func ReadModuleConfig(path string) (ModuleConfig, error) {
	var cfg ModuleConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return cfg, nil
	}
	mapping := doc.Content[0]
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		var v any
		if err := mapping.Content[i+1].Decode(&v); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
		cfg.Set(mapping.Content[i].Value, v)
	}
	return cfg, nil
}
