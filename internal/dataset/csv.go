package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"loanscore/internal/common"
)

// LoadCSV reads a dataset from a CSV file with a header line.
//
// Empty cells (and NA/NaN markers) are missing values. A column holding any
// non-numeric cell is categorical: its labels are coded in first-seen order.
// A leading column with an empty header is a written-out row index and is
// dropped.
func LoadCSV(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open CSV file: %v", common.ErrStartupLoad, err)
	}
	defer file.Close()

	ds, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrStartupLoad, path, err)
	}

	log.Info().
		Str("path", path).
		Int("rows", ds.Len()).
		Int("columns", len(ds.Columns())).
		Int("categorical", len(ds.Categories)).
		Msg("Dataset loaded from CSV")

	return ds, nil
}

// ReadCSV parses a dataset from r. See LoadCSV for the cell rules.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	// Read header
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("CSV file is empty")
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	offset := 0
	if len(header) > 1 && strings.TrimSpace(header[0]) == "" {
		offset = 1
	}
	columns := make([]string, 0, len(header)-offset)
	for _, name := range header[offset:] {
		columns = append(columns, strings.TrimSpace(name))
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", len(records)+2, err)
		}
		records = append(records, record[offset:])
	}

	categorical := make([]bool, len(columns))
	for _, record := range records {
		for j, cell := range record {
			if isMissing(cell) {
				continue
			}
			if _, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err != nil {
				categorical[j] = true
			}
		}
	}

	codes := make([]map[string]int, len(columns))
	categories := make(map[string][]string)
	rows := make([][]float64, len(records))

	for i, record := range records {
		values := make([]float64, len(columns))
		for j, cell := range record {
			cell = strings.TrimSpace(cell)
			switch {
			case isMissing(cell):
				values[j] = math.NaN()
			case categorical[j]:
				if codes[j] == nil {
					codes[j] = make(map[string]int)
				}
				code, ok := codes[j][cell]
				if !ok {
					code = len(codes[j])
					codes[j][cell] = code
					categories[columns[j]] = append(categories[columns[j]], cell)
				}
				values[j] = float64(code)
			default:
				// Already validated by the categorical scan
				v, _ := strconv.ParseFloat(cell, 64)
				values[j] = v
			}
		}
		rows[i] = values
	}

	return New(columns, rows, categories)
}

func isMissing(cell string) bool {
	switch strings.TrimSpace(cell) {
	case "", "NA", "NaN", "nan", "null":
		return true
	}
	return false
}
