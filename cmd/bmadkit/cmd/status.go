package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/barysiuk/bmadkit/internal/core"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the installation of the current project",
	Long: `Show the installation record of a project and compare every installed
module with the version available from its source.`,
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

		folder := cfg.FolderName()
		rec, err := core.ReadRecord(dir, folder)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if rec == nil {
			fmt.Fprintf(out, "No installation found in %s.\n", dir)
			fmt.Fprintln(out, "To install, run: bmadkit install --source <path>")
			return nil
		}

		catalog, err := discover(cfg, dir, newLogger(out, cmd.ErrOrStderr(), false))
		if err != nil {
			return err
		}
		rows := statusRows(rec, catalog)

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			data, err := json.MarshalIndent(struct {
				Installation core.RecordInfo `json:"installation"`
				IDEs         []string        `json:"ides"`
				Modules      []statusRow     `json:"modules"`
			}{rec.Installation, rec.IDEs, rows}, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintf(out, "Record: %s\n", core.RecordPath(dir, folder))
		fmt.Fprintf(out, "Installer: %s, last updated %s\n",
			rec.Installation.Version, rec.Installation.LastUpdated.Format(time.DateTime))
		if len(rec.IDEs) > 0 {
			fmt.Fprintf(out, "IDEs: %s\n", systemDisplayNames(rec.IDEs))
		}
		fmt.Fprintln(out)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "Module\tInstalled\tAvailable\tState")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Module, dash(r.Installed), dash(r.Available), r.State)
		}
		_ = w.Flush()
		return nil
	},
}

// statusRow compares one installed module with its source.
type statusRow struct {
	Module    string `json:"module"`
	Installed string `json:"installed,omitempty"`
	Available string `json:"available,omitempty"`
	State     string `json:"state"`
}

// Module states reported by status.
const (
	stateCurrent   = "up to date"
	stateOutdated  = "update available"
	stateAhead     = "newer than source"
	stateNoSource  = "source not found"
	stateUnversion = "unversioned"
)

func statusRows(rec *core.Record, catalog *core.Catalog) []statusRow {
	rows := make([]statusRow, 0, len(rec.Modules))
	for _, mr := range rec.Modules {
		row := statusRow{Module: mr.Name, Installed: mr.Version}
		m, ok := catalog.Find(mr.Name)
		switch {
		case !ok:
			row.State = stateNoSource
		case m.Version == "" || mr.Version == "":
			row.Available = m.Version
			row.State = stateUnversion
		default:
			row.Available = m.Version
			switch c := core.CompareVersions(mr.Version, m.Version); {
			case c < 0:
				row.State = stateOutdated
			case c > 0:
				row.State = stateAhead
			default:
				row.State = stateCurrent
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(statusCmd)
	addProjectFlags(statusCmd)
	statusCmd.Flags().Bool("json", false, "Output as JSON for scripting")
}
