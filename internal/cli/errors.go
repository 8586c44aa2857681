package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rentalpipeline/basiccleaning/internal/config"
)

// maxCompactMessage bounds validation messages outside verbose mode.
const maxCompactMessage = 80

// PrintSettingsResult reports the outcome of checking the settings file at
// path. Problems go to stderr, the confirmation to stdout. It returns whether
// the file is usable.
func PrintSettingsResult(stdout, stderr io.Writer, path string, result *config.Result, opts OutputOptions) bool {
	switch {
	case len(result.ParseErrors) > 0:
		fmt.Fprintf(stderr, "✗ %s could not be parsed:\n", path)
		for _, pe := range result.ParseErrors {
			writeParseError(stderr, pe, opts.Verbose)
		}
		return false
	case len(result.ValidationErrors) > 0:
		fmt.Fprintf(stderr, "✗ %s does not match the settings schema:\n", path)
		for _, ve := range result.ValidationErrors {
			writeValidationError(stderr, ve, opts.Verbose)
		}
		if !opts.Quiet && !opts.Verbose {
			fmt.Fprintln(stderr, "\nRe-run with --verbose for the expected values.")
		}
		return false
	}
	if !opts.Quiet {
		fmt.Fprintf(stdout, "✓ Settings file is valid: %s (%s)\n", path, result.Format)
	}
	return true
}

func writeParseError(w io.Writer, pe config.ParseError, verbose bool) {
	if loc := formatErrorLocation(pe.Path, pe.Line, pe.Column); loc != "" {
		fmt.Fprintf(w, "  %s: %s\n", loc, pe.Message)
	} else {
		fmt.Fprintf(w, "  %s\n", pe.Message)
	}
	if verbose && pe.Type != "" {
		fmt.Fprintf(w, "    kind: %s\n", pe.Type)
	}
}

func writeValidationError(w io.Writer, ve config.ValidationError, verbose bool) {
	pointer := ve.Path
	if pointer == "" {
		pointer = "/"
	}
	if !verbose {
		fmt.Fprintf(w, "  %s: %s\n", pointer, truncate(ve.Message, maxCompactMessage))
		return
	}
	fmt.Fprintf(w, "  %s: %s\n", pointer, ve.Message)
	for _, kv := range [][2]string{{"kind", ve.Type}, {"expected", ve.Expected}, {"actual", ve.Actual}} {
		if kv[1] != "" {
			fmt.Fprintf(w, "    %s: %s\n", kv[0], kv[1])
		}
	}
}

// formatErrorLocation renders path[:line[:column]], or "" without a path.
func formatErrorLocation(path string, line, column int) string {
	if path == "" {
		return ""
	}
	parts := []string{path}
	if line > 0 {
		parts = append(parts, strconv.Itoa(line))
		if column > 0 {
			parts = append(parts, strconv.Itoa(column))
		}
	}
	return strings.Join(parts, ":")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
