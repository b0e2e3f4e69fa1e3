package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/barysiuk/bmadkit/internal/core"
	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "bmadkit",
	Short: "Install BMAD modules and compile their agents",
	Long: `bmadkit installs BMAD modules into a project folder.

It discovers modules in a source tree, compiles YAML agent definitions into
runtime Markdown, vendors cross-module workflows, keeps agent memories and
generates launchers for the IDEs you use.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bmadkit %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command. An interrupt cancels the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// PrintError writes err for the user. With DEBUG set the whole wrap chain is
// printed with the type of every link.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, errorStyle.Render("Error: "+err.Error()))
	if ce, ok := core.IsCloneError(err); ok {
		fmt.Fprintf(w, "  %s\n", mutedStyle.Render(ce.Command))
		for _, hint := range ce.Hints {
			fmt.Fprintf(w, "  - %s\n", hint)
		}
	}
	if os.Getenv("DEBUG") == "" {
		return
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Fprintf(w, "  %T: %v\n", e, e)
	}
}
