package cmd

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/barysiuk/bmadkit/internal/core"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage user settings",
	Long: `Show and change the settings in ~/.bmadkit/config.toml.

Keys: source, folder, ides, modules, skip_user_docs, skip_game_planning and
answers.<module>.<key> for prompt answers.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the user settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		cfg, err := d.config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, mutedStyle.Render("# "+d.config.ConfigPath()))
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		if buf.Len() == 0 {
			fmt.Fprintln(out, "No settings. Use 'bmadkit config set <key> <value>' to add one.")
			return nil
		}
		_, err = out.Write(buf.Bytes())
		return err
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editSettings(cmd, func(cfg *core.Config) error {
			return setSetting(cfg, args[0], args[1])
		}, fmt.Sprintf("Set %s", args[0]))
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editSettings(cmd, func(cfg *core.Config) error {
			return unsetSetting(cfg, args[0])
		}, fmt.Sprintf("Unset %s", args[0]))
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

func editSettings(cmd *cobra.Command, edit func(*core.Config) error, done string) error {
	d, err := newDeps()
	if err != nil {
		return err
	}
	cfg, err := d.config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := edit(cfg); err != nil {
		return err
	}
	if err := d.config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓ "+done))
	return nil
}

// setSetting stores value under key. Lists are comma-separated and the
// source is made absolute.
func setSetting(cfg *core.Config, key, value string) error {
	if module, name, ok := answerKey(key); ok {
		if cfg.Answers == nil {
			cfg.Answers = map[string]map[string]any{}
		}
		if cfg.Answers[module] == nil {
			cfg.Answers[module] = map[string]any{}
		}
		cfg.Answers[module][name] = answerValue(value)
		return nil
	}

	switch key {
	case "source":
		abs, err := filepath.Abs(expandHome(value))
		if err != nil {
			return fmt.Errorf("resolving source: %w", err)
		}
		cfg.Source = abs
	case "folder":
		cfg.Folder = value
	case "ides":
		cfg.IDEs = splitList(value)
	case "modules":
		cfg.Modules = splitList(value)
	case "skip_user_docs", "skip_game_planning":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %q is not a boolean", key, value)
		}
		if key == "skip_user_docs" {
			cfg.SkipUserDocs = b
		} else {
			cfg.SkipGamePlanning = b
		}
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

func unsetSetting(cfg *core.Config, key string) error {
	if module, name, ok := answerKey(key); ok {
		delete(cfg.Answers[module], name)
		if len(cfg.Answers[module]) == 0 {
			delete(cfg.Answers, module)
		}
		return nil
	}

	switch key {
	case "source":
		cfg.Source = ""
	case "folder":
		cfg.Folder = ""
	case "ides":
		cfg.IDEs = nil
	case "modules":
		cfg.Modules = nil
	case "skip_user_docs":
		cfg.SkipUserDocs = false
	case "skip_game_planning":
		cfg.SkipGamePlanning = false
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

// answerKey splits "answers.<module>.<key>".
func answerKey(key string) (module, name string, ok bool) {
	parts := strings.SplitN(key, ".", 3)
	if len(parts) != 3 || parts[0] != "answers" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// answerValue keeps booleans and numbers typed so prompt defaults of those
// kinds are answered in kind.
func answerValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
