package dataset

import "fmt"

// Row is one record, positionally aligned with Dataset.Columns.
type Row []Value

// Dataset is an ordered sequence of rows sharing one column set.
type Dataset struct {
	Columns []string
	Rows    []Row
}

// New creates an empty dataset with the given columns.
func New(columns []string) *Dataset {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Dataset{Columns: cols}
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// ColumnIndex returns the position of column name, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Append adds a row after checking its width.
func (d *Dataset) Append(row Row) error {
	if len(row) != len(d.Columns) {
		return fmt.Errorf("row has %d values, dataset has %d columns", len(row), len(d.Columns))
	}
	d.Rows = append(d.Rows, row)
	return nil
}

// Get returns the value of column name in row i.
func (d *Dataset) Get(i int, name string) (Value, bool) {
	idx := d.ColumnIndex(name)
	if idx < 0 || i < 0 || i >= len(d.Rows) {
		return Value{}, false
	}
	return d.Rows[i][idx], true
}

// Filter returns a new dataset holding the rows for which keep returns true,
// in their original order. Rows are shared, not copied.
func (d *Dataset) Filter(keep func(Row) bool) *Dataset {
	out := New(d.Columns)
	out.Rows = make([]Row, 0, len(d.Rows))
	for _, row := range d.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	out := New(d.Columns)
	out.Rows = make([]Row, len(d.Rows))
	for i, row := range d.Rows {
		r := make(Row, len(row))
		copy(r, row)
		out.Rows[i] = r
	}
	return out
}
