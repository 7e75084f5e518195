package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// outputResult writes result in the selected format.
func (a *app) outputResult(w io.Writer, result CLIResult) error {
	if a.format == "text" {
		return outputResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func (a *app) outputError(stdout, stderr io.Writer, command string, err error) error {
	a.errorHandled = true
	if a.format == "text" {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIDeclaration:
		formatDeclarationsText(w, v)
	case CLIEdit:
		formatEditText(w, v)
	case CLIStatus:
		formatStatusText(w, v)
	case []string:
		for _, s := range v {
			fmt.Fprintln(w, s)
		}
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// formatDeclarationsText formats CLIDeclaration results as aligned columns,
// indenting nested declarations.
func formatDeclarationsText(w io.Writer, decls []CLIDeclaration) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tFILE\tLINE\tBYTES")
	for _, d := range decls {
		indent := strings.Repeat("  ", max(d.Depth-1, 0))
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%d\t%d-%d\n",
			indent, d.Name, d.Type, d.File, d.Line, d.StartByte, d.EndByte)
	}
	tw.Flush()
}

func formatEditText(w io.Writer, e CLIEdit) {
	fmt.Fprintf(w, "%s %s on %s\n", e.Op, e.Target, e.File)
	if e.Suppressed {
		fmt.Fprintln(w, "edit cannot change meaning; nothing invalidated")
	}
	if len(e.Invalidated) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "INVALIDATED\tTYPE\tBYTES")
		for _, inv := range e.Invalidated {
			fmt.Fprintf(tw, "%s\t%s\t%d-%d\n", inv.Name, inv.Type, inv.StartByte, inv.EndByte)
		}
		tw.Flush()
	}
	if e.Recorded > 0 {
		fmt.Fprintf(w, "recorded %d invalidation(s)\n", e.Recorded)
	}
	if e.HookRuns > 0 {
		fmt.Fprintf(w, "ran hook %d time(s)\n", e.HookRuns)
	}
}

func formatStatusText(w io.Writer, s CLIStatus) {
	if len(s.Dirty) == 0 {
		fmt.Fprintln(w, "all declarations verified")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tTYPE\tFILE\tGEN\tINVALIDATIONS")
		for _, d := range s.Dirty {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d (%d external)\n",
				d.ID, d.Name, d.Type, d.File, d.Generation, d.Invalidations, d.External)
		}
		tw.Flush()
	}
	if s.Cleared > 0 {
		fmt.Fprintf(w, "\nMarked %d declaration(s) verified\n", s.Cleared)
	}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
