// Package stage provides the public types of the basic cleaning stage: its
// parameters and the result of one execution.
package stage

import (
	"fmt"
	"strings"
	"time"

	"github.com/rentalpipeline/basiccleaning/internal/errhandling"
)

// JobType is recorded on every run of this stage.
const JobType = "basic_cleaning"

// Params are the six inputs of the stage.
type Params struct {
	// InputArtifact references the raw dataset, e.g. "sample.csv:latest".
	InputArtifact string `json:"input_artifact"`

	// OutputArtifact is the name the cleaned dataset is published under.
	OutputArtifact string `json:"output_artifact"`

	// OutputType is the artifact type tag.
	OutputType string `json:"output_type"`

	// OutputDescription is the human-readable artifact description.
	OutputDescription string `json:"output_description"`

	// MinPrice and MaxPrice bound the accepted nightly price, inclusive.
	MinPrice float64 `json:"min_price"`
	MaxPrice float64 `json:"max_price"`
}

// Validate rejects empty or whitespace-only string parameters.
func (p Params) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"input_artifact", p.InputArtifact},
		{"output_artifact", p.OutputArtifact},
		{"output_type", p.OutputType},
		{"output_description", p.OutputDescription},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return errhandling.NewArgumentError(fmt.Sprintf("%s must not be empty", f.name), nil)
		}
	}
	return nil
}

// Map returns the parameters as recorded in the run's configuration.
func (p Params) Map() map[string]any {
	return map[string]any{
		"input_artifact":     p.InputArtifact,
		"output_artifact":    p.OutputArtifact,
		"output_type":        p.OutputType,
		"output_description": p.OutputDescription,
		"min_price":          p.MinPrice,
		"max_price":          p.MaxPrice,
	}
}

// ExecutionResult represents the result of one stage execution.
type ExecutionResult struct {
	// RunID identifies the run in the artifact registry.
	RunID string `json:"runId"`

	// Status is "success" or "error".
	Status string `json:"status"`

	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`

	// RecordsIn is the number of rows read from the input artifact.
	RecordsIn int `json:"recordsIn"`

	// RecordsOut is the number of rows published.
	RecordsOut int `json:"recordsOut"`

	// Filters reports each filter's effect, in execution order.
	Filters []FilterStat `json:"filters,omitempty"`

	// OutputArtifact is the published reference, e.g. "clean_sample.csv:v3".
	OutputArtifact string `json:"outputArtifact,omitempty"`

	// Error contains error details if execution failed.
	Error *ExecutionError `json:"error,omitempty"`
}

// FilterStat is the row count before and after one filter.
type FilterStat struct {
	Name       string        `json:"name"`
	RecordsIn  int           `json:"recordsIn"`
	RecordsOut int           `json:"recordsOut"`
	Duration   time.Duration `json:"duration"`
}

// Dropped is the number of rows the filter removed.
func (f FilterStat) Dropped() int {
	return f.RecordsIn - f.RecordsOut
}

// ExecutionError describes why an execution failed.
type ExecutionError struct {
	// Code is the error code
	Code string `json:"code"`

	// Category is the failing step: argument, download, parse or upload.
	Category string `json:"category"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Module is the module where the error occurred
	Module string `json:"module,omitempty"`

	// Details contains additional error context
	Details map[string]interface{} `json:"details,omitempty"`
}
