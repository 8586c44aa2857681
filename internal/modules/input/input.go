// Package input provides implementations for input modules.
// Input modules load the dataset the stage cleans.
package input

import (
	"context"

	"github.com/rentalpipeline/basiccleaning/internal/dataset"
)

// Module represents an input module that loads a dataset.
type Module interface {
	// Fetch loads the dataset. The context can be used to cancel long-running operations.
	Fetch(ctx context.Context) (*dataset.Dataset, error)
	// Close releases any resources held by the module.
	Close() error
}
