package filter

import (
	"context"

	"github.com/rentalpipeline/basiccleaning/internal/dataset"
)

// NYC bounding box, inclusive on every edge.
const (
	MinLongitude = -74.25
	MaxLongitude = -73.50
	MinLatitude  = 40.5
	MaxLatitude  = 41.2
)

// GeoBounds keeps rows whose coordinates fall inside a rectangle.
// Missing or non-numeric coordinates are excluded.
type GeoBounds struct {
	LonColumn string
	LatColumn string
	MinLon    float64
	MaxLon    float64
	MinLat    float64
	MaxLat    float64
}

// NewGeoBounds creates the New York City bounding box filter.
func NewGeoBounds() *GeoBounds {
	return &GeoBounds{
		LonColumn: ColumnLongitude,
		LatColumn: ColumnLatitude,
		MinLon:    MinLongitude,
		MaxLon:    MaxLongitude,
		MinLat:    MinLatitude,
		MaxLat:    MaxLatitude,
	}
}

func (m *GeoBounds) Name() string { return "geo_bounds" }

// Process implements the filter.Module interface.
func (m *GeoBounds) Process(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
	idx, err := requireColumns(ds, m.LonColumn, m.LatColumn)
	if err != nil {
		return nil, err
	}
	lon, lat := idx[0], idx[1]
	return keepRows(ctx, ds, func(row dataset.Row) bool {
		return row[lon].Between(m.MinLon, m.MaxLon) && row[lat].Between(m.MinLat, m.MaxLat)
	})
}

var _ Module = (*GeoBounds)(nil)
