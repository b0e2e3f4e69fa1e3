package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/barysiuk/bmadkit/internal/core"
	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"
)

const descriptionWidth = 48

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available modules",
	Long: `List modules available from the source tree, the project and the custom
module cache, with the version installed in the project if any.`,
	Args: cobra.NoArgs,
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
		rec, err := core.ReadRecord(dir, cfg.FolderName())
		if err != nil {
			return err
		}

		rows := listRows(catalog, rec)

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			data, err := json.MarshalIndent(rows, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No modules found. Pass --source or set source in ~/.bmadkit/config.toml.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "Module\tVersion\tSource\tInstalled\tDescription")
		for _, r := range rows {
			installed := "-"
			if r.Installed != "" {
				installed = r.Installed
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.Version, r.Source, installed, ansi.Truncate(r.Description, descriptionWidth, "…"))
		}
		_ = w.Flush()
		return nil
	},
}

// listRow is one module in list output.
type listRow struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Source       string   `json:"source"`
	Installed    string   `json:"installed,omitempty"`
	Default      bool     `json:"default"`
	Dependencies []string `json:"dependencies,omitempty"`
	Description  string   `json:"description,omitempty"`
	Path         string   `json:"path"`
}

func listRows(catalog *core.Catalog, rec *core.Record) []listRow {
	mods := catalog.All()
	rows := make([]listRow, 0, len(mods))
	for _, m := range mods {
		row := listRow{
			ID:           m.ID,
			Name:         m.Name,
			Version:      m.Version,
			Source:       string(m.Kind),
			Default:      m.DefaultSelected,
			Dependencies: m.Dependencies,
			Description:  m.Description,
			Path:         m.Path,
		}
		if mr, ok := rec.Module(m.ID); ok {
			row.Installed = mr.Version
			if row.Installed == "" {
				row.Installed = "yes"
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// termWidth returns the terminal width from $COLUMNS, or fallback.
func termWidth(fallback int) int {
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 0 {
		return n
	}
	return fallback
}

func init() {
	rootCmd.AddCommand(listCmd)
	addProjectFlags(listCmd)
	listCmd.Flags().Bool("json", false, "Output as JSON for scripting")
}
