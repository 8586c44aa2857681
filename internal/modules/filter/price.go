package filter

import (
	"context"

	"github.com/rentalpipeline/basiccleaning/internal/dataset"
	"github.com/rentalpipeline/basiccleaning/internal/logger"
)

// PriceRange keeps rows whose price lies within [Min, Max].
// Missing, non-numeric and NaN prices are excluded rather than treated as errors.
type PriceRange struct {
	Column string
	Min    float64
	Max    float64
}

// NewPriceRange creates a price filter on the "price" column.
func NewPriceRange(minPrice, maxPrice float64) *PriceRange {
	return &PriceRange{Column: ColumnPrice, Min: minPrice, Max: maxPrice}
}

func (m *PriceRange) Name() string { return "price_range" }

// Process implements the filter.Module interface.
func (m *PriceRange) Process(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
	idx, err := requireColumns(ds, m.Column)
	if err != nil {
		return nil, err
	}
	if m.Min > m.Max {
		// Nothing can satisfy an inverted range.
		logger.Warn("price range is empty", "min_price", m.Min, "max_price", m.Max)
	}
	col := idx[0]
	return keepRows(ctx, ds, func(row dataset.Row) bool {
		return row[col].Between(m.Min, m.Max)
	})
}

var _ Module = (*PriceRange)(nil)
