// Package output provides implementations for output modules.
// Output modules persist the cleaned dataset.
package output

import (
	"context"

	"github.com/rentalpipeline/basiccleaning/internal/dataset"
)

// Module represents an output module that persists a dataset.
type Module interface {
	// Send persists the dataset and returns the number of records written.
	Send(ctx context.Context, ds *dataset.Dataset) (int, error)

	// Close releases any resources held by the module.
	Close() error
}
