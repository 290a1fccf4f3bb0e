package dataset

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanscore/internal/common"
)

func newTestDataset(t *testing.T) *Dataset {
	t.Helper()
	ds, err := New(
		[]string{"f1", "f2", "f3"},
		[][]float64{
			{1, 2, 3},
			{4, math.NaN(), 6},
			{7, 8, 9},
		},
		nil,
	)
	require.NoError(t, err)
	return ds
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		rows    [][]float64
		cats    map[string][]string
	}{
		{"no columns", nil, nil, nil},
		{"duplicate column", []string{"a", "a"}, nil, nil},
		{"empty column name", []string{"a", ""}, nil, nil},
		{"ragged row", []string{"a", "b"}, [][]float64{{1}}, nil},
		{"infinite value", []string{"a", "b"}, [][]float64{{1, math.Inf(-1)}}, nil},
		{"unknown categorical column", []string{"a"}, nil, map[string][]string{"b": {"x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.columns, tt.rows, tt.cats)
			assert.Error(t, err)
		})
	}
}

func TestResolveRow_RoundTrip(t *testing.T) {
	ds := newTestDataset(t)

	for i := 0; i < ds.Len(); i++ {
		row, err := ResolveRow(ds, i)
		require.NoError(t, err)
		assert.Equal(t, i, row.Index)
		assert.Equal(t, ds.Columns(), row.Columns)
		require.Len(t, row.Values, len(ds.Columns()))

		for j, v := range ds.rows[i] {
			if math.IsNaN(v) {
				assert.True(t, row.Missing(j))
				continue
			}
			assert.Equal(t, v, row.Values[j])
		}
	}
}

func TestResolveRow_OutOfRange(t *testing.T) {
	ds := newTestDataset(t)

	for _, index := range []int{-1, 3, 100} {
		_, err := ResolveRow(ds, index)
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrOutOfRange), "index %d", index)
	}
}

func TestResolveRow_EmptyDataset(t *testing.T) {
	ds, err := New([]string{"f1"}, nil, nil)
	require.NoError(t, err)

	_, err = ResolveRow(ds, 0)
	assert.ErrorIs(t, err, common.ErrOutOfRange)
}

func TestResolveRow_ReturnsCopy(t *testing.T) {
	ds := newTestDataset(t)

	row, err := ResolveRow(ds, 0)
	require.NoError(t, err)
	row.Values[0] = 100

	again, err := ResolveRow(ds, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.Values[0])
}

func TestReadCSV_RejectsInfinite(t *testing.T) {
	for _, cell := range []string{"inf", "-Inf", "Infinity"} {
		t.Run(cell, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader("a,b\n1,2\n" + cell + ",3\n4,5\n"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "infinite")
		})
	}
}

func TestColumnMeans_IgnoresMissing(t *testing.T) {
	ds := newTestDataset(t)

	means := ds.ColumnMeans()
	assert.InDeltaSlice(t, []float64{4, 5, 6}, means, 1e-12)
}

func TestLoadCSV(t *testing.T) {
	ds, err := LoadCSV(filepath.Join("testdata", "applicants.csv"))
	require.NoError(t, err)

	assert.Equal(t, []string{"AMT_CREDIT", "CODE_GENDER", "EXT_SOURCE_2", "DAYS_BIRTH"}, ds.Columns())
	assert.Equal(t, 4, ds.Len())
	assert.Equal(t, []string{"M", "F"}, ds.Categories["CODE_GENDER"])

	row, err := ResolveRow(ds, 1)
	require.NoError(t, err)
	assert.Equal(t, 1293502.5, row.Values[0])
	assert.Equal(t, 1.0, row.Values[1])
	assert.True(t, row.Missing(2))
	assert.Equal(t, -16765.0, row.Values[3])

	label, ok := ds.Category("CODE_GENDER", row.Values[1])
	assert.True(t, ok)
	assert.Equal(t, "F", label)
}

func TestLoadCSV_MissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrStartupLoad)
}

func TestReadCSV(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		rows    int
	}{
		{"header only", "a,b\n", false, 0},
		{"plain numbers", "a,b\n1,2\n3,4\n", false, 2},
		{"empty input", "", true, 0},
		{"ragged line", "a,b\n1,2,3\n", true, 0},
		{"duplicate header", "a,a\n1,2\n", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := ReadCSV(strings.NewReader(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.rows, ds.Len())
		})
	}
}

func TestEach_StopsOnError(t *testing.T) {
	ds := newTestDataset(t)
	stop := errors.New("stop")

	visited := 0
	err := ds.Each(func(index int, values []float64) error {
		visited++
		if index == 1 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, visited)
}
