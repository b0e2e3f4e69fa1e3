package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/barysiuk/bmadkit/internal/core"
	"github.com/spf13/cobra"
)

// deps holds shared dependencies for CLI commands.
type deps struct {
	config *core.ConfigManager
}

// newDeps creates shared dependencies. Called lazily by commands that need them.
func newDeps() (*deps, error) {
	config, err := core.NewConfigManager()
	if err != nil {
		return nil, fmt.Errorf("initializing config: %w", err)
	}

	return &deps{
		config: config,
	}, nil
}

// settings loads the user settings and layers the --config preset and the
// command line flags over them.
func (d *deps) settings(cmd *cobra.Command) (*core.Config, error) {
	cfg, err := d.config.Load()
	if err != nil {
		return nil, err
	}

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		preset, err := core.LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg = cfg.Merge(preset)
	}

	flags := &core.Config{}
	flags.Source, _ = cmd.Flags().GetString("source")
	flags.Folder, _ = cmd.Flags().GetString("folder")
	if ides, _ := cmd.Flags().GetString("ides"); ides != "" {
		flags.IDEs = splitList(ides)
	}
	flags.SkipUserDocs, _ = cmd.Flags().GetBool("skip-docs")
	flags.SkipGamePlanning, _ = cmd.Flags().GetBool("skip-game")
	cfg = cfg.Merge(flags)

	if cfg.Source != "" {
		if cfg.Source, err = filepath.Abs(expandHome(cfg.Source)); err != nil {
			return nil, fmt.Errorf("resolving source: %w", err)
		}
	}
	return cfg, nil
}
