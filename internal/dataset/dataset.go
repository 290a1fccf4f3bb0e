// Package dataset holds the applicant table the scoring service reads from.
//
// A Dataset is loaded once at startup and never mutated afterwards. Rows are
// addressed by their zero-based position and expose values aligned with the
// dataset's column names. Missing values are stored as NaN.
package dataset

import (
	"fmt"
	"math"
)

// Dataset is an ordered table of numeric rows over a fixed set of columns.
type Dataset struct {
	columns []string
	rows    [][]float64

	// Categories maps a categorical column to its labels; a cell's value is
	// the position of its label in this slice.
	Categories map[string][]string
}

// Row is one applicant of the dataset.
type Row struct {
	Index   int
	Columns []string
	Values  []float64
}

// New builds a Dataset from column names and rows. Every row must have one
// value per column, every value must be finite or NaN, and column names must
// be unique.
func New(columns []string, rows [][]float64, categories map[string][]string) (*Dataset, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("dataset has no columns")
	}

	index := make(map[string]int, len(columns))
	for i, name := range columns {
		if name == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		index[name] = i
	}

	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(columns))
		}
		for j, v := range row {
			if math.IsInf(v, 0) {
				return nil, fmt.Errorf("row %d column %q holds an infinite value", i, columns[j])
			}
		}
	}

	if categories == nil {
		categories = make(map[string][]string)
	}
	for name := range categories {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("categories given for unknown column %q", name)
		}
	}

	cols := make([]string, len(columns))
	copy(cols, columns)

	return &Dataset{
		columns:    cols,
		rows:       rows,
		Categories: categories,
	}, nil
}

// Columns returns the ordered column names. The slice is shared and must not
// be modified.
func (d *Dataset) Columns() []string {
	return d.columns
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.rows)
}

// ColumnMeans returns the mean of every column over the rows that have a
// value for it. A column with no values has a mean of 0.
func (d *Dataset) ColumnMeans() []float64 {
	sums := make([]float64, len(d.columns))
	counts := make([]int, len(d.columns))
	for _, row := range d.rows {
		for j, v := range row {
			if math.IsNaN(v) {
				continue
			}
			sums[j] += v
			counts[j]++
		}
	}

	means := make([]float64, len(d.columns))
	for j := range means {
		if counts[j] > 0 {
			means[j] = sums[j] / float64(counts[j])
		}
	}
	return means
}

// Category returns the label behind a categorical value.
func (d *Dataset) Category(column string, value float64) (string, bool) {
	labels, ok := d.Categories[column]
	if !ok || math.IsNaN(value) {
		return "", false
	}
	code := int(value)
	if float64(code) != value || code < 0 || code >= len(labels) {
		return "", false
	}
	return labels[code], true
}

// Each calls fn for every row in order and stops at the first error.
func (d *Dataset) Each(fn func(index int, values []float64) error) error {
	for i, row := range d.rows {
		if err := fn(i, row); err != nil {
			return err
		}
	}
	return nil
}

// Missing reports whether the value at position i is absent.
func (r Row) Missing(i int) bool {
	return math.IsNaN(r.Values[i])
}
