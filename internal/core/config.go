package core

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/barysiuk/bmadkit/internal/core/placeholder"
)

const (
	configDirName  = ".bmadkit"
	configFileName = "config.toml"
)

// Config holds user settings and install presets. The same schema is used
// for ~/.bmadkit/config.toml and for files passed with --config.
type Config struct {
	Source           string                    `toml:"source,omitempty"` // source tree with src/core and src/modules
	Folder           string                    `toml:"folder,omitempty"`
	IDEs             []string                  `toml:"ides,omitempty"`
	Modules          []string                  `toml:"modules,omitempty"`
	SkipUserDocs     bool                      `toml:"skip_user_docs,omitempty"`
	SkipGamePlanning bool                      `toml:"skip_game_planning,omitempty"`
	Answers          map[string]map[string]any `toml:"answers,omitempty"` // prompt answers by module ID
}

// FolderName returns the configured install folder or the default.
func (c *Config) FolderName() string {
	if c == nil || c.Folder == "" {
		return placeholder.DefaultFolderName
	}
	return c.Folder
}

// Flags returns the feature flags the config selects.
func (c *Config) Flags() FeatureFlags {
	if c == nil {
		return FeatureFlags{}
	}
	return FeatureFlags{SkipUserDocs: c.SkipUserDocs, SkipGamePlanning: c.SkipGamePlanning}
}

// Merge returns c with every value set in over applied on top. Answers are
// merged per module and key.
func (c *Config) Merge(over *Config) *Config {
	out := &Config{}
	if c != nil {
		*out = *c
	}
	out.Answers = mergeAnswers(out.Answers, nil)
	if over == nil {
		return out
	}
	if over.Source != "" {
		out.Source = over.Source
	}
	if over.Folder != "" {
		out.Folder = over.Folder
	}
	if len(over.IDEs) > 0 {
		out.IDEs = over.IDEs
	}
	if len(over.Modules) > 0 {
		out.Modules = over.Modules
	}
	out.SkipUserDocs = out.SkipUserDocs || over.SkipUserDocs
	out.SkipGamePlanning = out.SkipGamePlanning || over.SkipGamePlanning
	out.Answers = mergeAnswers(out.Answers, over.Answers)
	return out
}

func mergeAnswers(base, over map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(base)+len(over))
	for _, src := range []map[string]map[string]any{base, over} {
		for module, answers := range src {
			if out[module] == nil {
				out[module] = make(map[string]any, len(answers))
			}
			for k, v := range answers {
				out[module][k] = v
			}
		}
	}
	return out
}

// LoadConfigFile reads a TOML config or preset file.
func LoadConfigFile(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// ConfigManager handles reading and writing the user settings.
type ConfigManager struct {
	configDir string
	mu        sync.RWMutex
}

// NewConfigManager creates a ConfigManager using the default config path (~/.bmadkit/).
func NewConfigManager() (*ConfigManager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}
	return &ConfigManager{
		configDir: filepath.Join(home, configDirName),
	}, nil
}

// NewConfigManagerWithDir creates a ConfigManager using a custom config directory.
// Useful for testing.
func NewConfigManagerWithDir(dir string) *ConfigManager {
	return &ConfigManager{configDir: dir}
}

// ConfigPath returns the full path to the config file.
func (cm *ConfigManager) ConfigPath() string {
	return filepath.Join(cm.configDir, configFileName)
}

// Load reads the config from disk. Returns an empty config if the file doesn't exist.
func (cm *ConfigManager) Load() (*Config, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	path := cm.ConfigPath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return LoadConfigFile(path)
}

// Save writes the config to disk, creating the directory if needed.
func (cm *ConfigManager) Save(cfg *Config) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := writeFileAtomic(cm.ConfigPath(), buf.Bytes()); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	return nil
}
