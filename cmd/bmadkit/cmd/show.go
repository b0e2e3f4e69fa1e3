package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/barysiuk/bmadkit/internal/core"
	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <module>",
	Short: "Show details of a module",
	Long: `Show a module's README rendered for the terminal. Modules without a
README get a summary of their descriptor: version, dependencies and the
configuration questions they ask.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		cfg, err := d.settings(cmd)
		if err != nil {
			return err
		}
		dir, err := resolveTargetDir(cmd)
		if err != nil {
			return err
		}
		log := newLogger(cmd.OutOrStdout(), cmd.ErrOrStderr(), false)

		catalog, err := discover(cfg, dir, log)
		if err != nil {
			return err
		}
		m, ok := catalog.Find(args[0])
		if !ok {
			return &core.ModuleNotFoundError{ID: args[0]}
		}

		doc := moduleMarkdown(m)
		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			fmt.Fprint(cmd.OutOrStdout(), doc)
			return nil
		}

		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(termWidth(80)),
		)
		if err != nil {
			return fmt.Errorf("creating renderer: %w", err)
		}
		out, err := r.Render(doc)
		if err != nil {
			return fmt.Errorf("rendering %s: %w", m.ID, err)
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

// moduleMarkdown returns the module README, or a summary built from the
// descriptor when there is none.
func moduleMarkdown(m *core.ModuleDescriptor) string {
	for _, name := range []string{"README.md", "readme.md"} {
		if data, err := os.ReadFile(filepath.Join(m.Path, name)); err == nil {
			return string(data)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", m.Name)
	if m.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", m.Description)
	}
	fmt.Fprintf(&b, "- **ID:** %s\n", m.ID)
	if m.Version != "" {
		fmt.Fprintf(&b, "- **Version:** %s\n", m.Version)
	}
	fmt.Fprintf(&b, "- **Source:** %s\n", m.Kind)
	if len(m.Dependencies) > 0 {
		fmt.Fprintf(&b, "- **Depends on:** %s\n", strings.Join(m.Dependencies, ", "))
	}

	if len(m.Prompts) > 0 {
		b.WriteString("\n## Configuration\n\n")
		b.WriteString("| Key | Question | Default |\n|---|---|---|\n")
		for _, p := range m.Prompts {
			def := ""
			if p.Default != nil {
				def = fmt.Sprint(p.Default)
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n", p.Key, tableCell(p.Prompt), tableCell(def))
		}
	}
	return b.String()
}

func tableCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

func init() {
	rootCmd.AddCommand(showCmd)
	addProjectFlags(showCmd)
	showCmd.Flags().Bool("raw", false, "Print Markdown without rendering")
}
