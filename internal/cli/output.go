// Package cli provides CLI output formatting and display functions.
package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/rentalpipeline/basiccleaning/pkg/stage"
)

// OutputOptions configures CLI output behavior.
type OutputOptions struct {
	Verbose bool
	Quiet   bool
}

// PrintExecutionResult displays the stage execution result. Failures go to
// stderr, the summary to stdout.
func PrintExecutionResult(stdout, stderr io.Writer, result *stage.ExecutionResult, err error, opts OutputOptions) {
	if result == nil {
		fmt.Fprintln(stderr, "✗ No execution result available")
		if err != nil {
			fmt.Fprintf(stderr, "  Error: %v\n", err)
		}
		return
	}

	if err != nil {
		fmt.Fprintln(stderr, "✗ Cleaning run failed")
		if result.Error != nil {
			if result.Error.Module != "" {
				fmt.Fprintf(stderr, "  Module: %s\n", result.Error.Module)
			}
			fmt.Fprintf(stderr, "  Code: %s\n", result.Error.Code)
			fmt.Fprintf(stderr, "  Error: %s\n", result.Error.Message)
			if opts.Verbose {
				printDetails(stderr, result.Error.Details)
			}
		} else {
			fmt.Fprintf(stderr, "  Error: %v\n", err)
		}
		return
	}

	if opts.Quiet {
		return
	}
	fmt.Fprintln(stdout, "✓ Cleaning run completed")
	fmt.Fprintf(stdout, "  Run: %s\n", result.RunID)
	fmt.Fprintf(stdout, "  Records in: %d\n", result.RecordsIn)
	fmt.Fprintf(stdout, "  Records out: %d\n", result.RecordsOut)
	if result.OutputArtifact != "" {
		fmt.Fprintf(stdout, "  Artifact: %s\n", result.OutputArtifact)
	}
	if opts.Verbose {
		for _, f := range result.Filters {
			fmt.Fprintf(stdout, "  Filter %s: %d -> %d (dropped %d)\n", f.Name, f.RecordsIn, f.RecordsOut, f.Dropped())
		}
		fmt.Fprintf(stdout, "  Duration: %v\n", result.CompletedAt.Sub(result.StartedAt))
	}
}

// printDetails prints sorted error details.
func printDetails(w io.Writer, details map[string]interface{}) {
	if len(details) == 0 {
		return
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, "  Details:")
	for _, k := range keys {
		fmt.Fprintf(w, "    %s: %v\n", k, details[k])
	}
}
