package dataset

import (
	"fmt"

	"loanscore/internal/common"
)

// ResolveRow returns the row at index. Indices outside [0, Len) are rejected,
// never clamped or wrapped. The returned values are a copy.
func ResolveRow(ds *Dataset, index int) (Row, error) {
	if index < 0 || index >= ds.Len() {
		return Row{}, fmt.Errorf("%w: index %d, dataset has %d rows", common.ErrOutOfRange, index, ds.Len())
	}

	values := make([]float64, len(ds.columns))
	copy(values, ds.rows[index])

	return Row{
		Index:   index,
		Columns: ds.columns,
		Values:  values,
	}, nil
}
