package filter

import (
	"context"

	"github.com/rentalpipeline/basiccleaning/internal/dataset"
)

// DateNormalize converts a column to dates. Cells that do not parse become
// Missing. No row is ever dropped.
type DateNormalize struct {
	Column string
}

// NewDateNormalize creates a date filter on the "last_review" column.
func NewDateNormalize() *DateNormalize {
	return &DateNormalize{Column: ColumnLastReview}
}

func (m *DateNormalize) Name() string { return "date_normalize" }

// Process implements the filter.Module interface.
func (m *DateNormalize) Process(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
	idx, err := requireColumns(ds, m.Column)
	if err != nil {
		return nil, err
	}
	col := idx[0]

	out := dataset.New(ds.Columns)
	out.Rows = make([]dataset.Row, len(ds.Rows))
	for i, row := range ds.Rows {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		r := make(dataset.Row, len(row))
		copy(r, row)
		r[col] = toDate(row[col])
		out.Rows[i] = r
	}
	return out, nil
}

func toDate(v dataset.Value) dataset.Value {
	switch v.Kind() {
	case dataset.KindDate:
		return v
	case dataset.KindMissing:
		return dataset.Missing()
	}
	if t, ok := dataset.ParseDate(v.Text()); ok {
		return dataset.NewDate(t)
	}
	return dataset.Missing()
}

var _ Module = (*DateNormalize)(nil)
