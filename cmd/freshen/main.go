package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/freshen/internal/grammar"
)

func main() {
	app := &app{}
	if err := app.rootCmd().Execute(); err != nil {
		if !app.errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

// app holds the global flags shared by every subcommand.
type app struct {
	format  string
	profile string
	verbose int

	logger *slog.Logger

	// errorHandled is set by outputError so main() doesn't double-print.
	errorHandled bool
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "freshen",
		Short:         "Track which declarations an edit makes stale",
		Long:          "Freshen parses source files with tree-sitter, applies edits to the syntax tree and reports the declarations each edit invalidates, optionally recording them in a SQLite freshness cache.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(a.format); err != nil {
				return err
			}
			a.logger = newLogger(cmd.ErrOrStderr(), a.verbose)
			return nil
		},
		// No Run: prints help by default.
	}

	root.PersistentFlags().StringVar(&a.format, "format", "json", "output format: json|text")
	root.PersistentFlags().StringVar(&a.profile, "profile", "", "grammar profile TOML (default: builtin profile by file extension)")
	root.PersistentFlags().CountVarP(&a.verbose, "verbose", "v", "log to stderr (-v info, -vv debug)")

	root.AddCommand(a.declsCmd())
	root.AddCommand(a.editCmd())
	root.AddCommand(a.statusCmd())
	root.AddCommand(a.forgetCmd())
	return root
}

// newLogger logs nothing by default; each -v lowers the level.
func newLogger(w io.Writer, verbose int) *slog.Logger {
	if verbose == 0 {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	level := slog.LevelInfo
	if verbose > 1 {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// profileFor returns the --profile profile if set, else the builtin profile
// for path's extension.
func (a *app) profileFor(path string) (*grammar.Profile, error) {
	if a.profile != "" {
		return grammar.LoadProfile(a.profile)
	}
	return grammar.ProfileForFile(path)
}
