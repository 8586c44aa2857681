// Package filter provides the cleaning filters. Each filter takes a dataset
// and returns a new one; rows are never reordered.
package filter

import (
	"context"

	"github.com/rentalpipeline/basiccleaning/internal/dataset"
	"github.com/rentalpipeline/basiccleaning/internal/errhandling"
)

// Column names the cleaning filters operate on.
const (
	ColumnPrice      = "price"
	ColumnLastReview = "last_review"
	ColumnLongitude  = "longitude"
	ColumnLatitude   = "latitude"
)

// cancelCheckInterval is how many rows are processed between context checks.
const cancelCheckInterval = 1000

// Module represents a filter module that transforms a dataset.
type Module interface {
	// Name identifies the filter in logs and results.
	Name() string
	// Process returns the transformed dataset. The input is not modified.
	Process(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error)
}

// DefaultChain returns the cleaning filters in their fixed order:
// price range, then date normalisation, then the geographic bounding box.
func DefaultChain(minPrice, maxPrice float64) []Module {
	return []Module{
		NewPriceRange(minPrice, maxPrice),
		NewDateNormalize(),
		NewGeoBounds(),
	}
}

// Clean applies DefaultChain to ds.
func Clean(ctx context.Context, ds *dataset.Dataset, minPrice, maxPrice float64) (*dataset.Dataset, error) {
	var err error
	for _, m := range DefaultChain(minPrice, maxPrice) {
		ds, err = m.Process(ctx, ds)
		if err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// requireColumns returns the index of each column or a schema error for the
// first one missing.
func requireColumns(ds *dataset.Dataset, names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		idx[i] = ds.ColumnIndex(name)
		if idx[i] < 0 {
			return nil, errhandling.NewSchemaError(name)
		}
	}
	return idx, nil
}

// keepRows filters ds with keep, checking ctx periodically.
func keepRows(ctx context.Context, ds *dataset.Dataset, keep func(dataset.Row) bool) (*dataset.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := 0
	var cancelErr error
	out := ds.Filter(func(row dataset.Row) bool {
		if cancelErr != nil {
			return false
		}
		n++
		if n%cancelCheckInterval == 0 {
			if cancelErr = ctx.Err(); cancelErr != nil {
				return false
			}
		}
		return keep(row)
	})
	if cancelErr != nil {
		return nil, cancelErr
	}
	return out, nil
}
