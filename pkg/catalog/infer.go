package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/neurofed/axon/pkg/types"
)

// DefaultSampleRows bounds how many data rows inference reads per file.
const DefaultSampleRows = 200

// delimiterFor maps a tabular file type to its field delimiter.
func delimiterFor(t types.FileType) rune {
	if t == types.FileTSV {
		return '\t'
	}
	return ','
}

// openTabular returns a CSV reader positioned at the header row.
func openTabular(path string, t types.FileType) (*csv.Reader, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	r := csv.NewReader(f)
	r.Comma = delimiterFor(t)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r, f, nil
}

// countRecords returns the number of data rows (excluding the header) in a
// tabular file. Quoted embedded newlines are handled by the CSV reader.
func countRecords(path string, t types.FileType) (int, error) {
	r, f, err := openTabular(path, t)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read header: %w", err)
	}

	count := 0
	for {
		if _, err := r.Read(); err != nil {
			if err == io.EOF {
				break
			}
			return 0, fmt.Errorf("failed to read row %d: %w", count+2, err)
		}
		count++
	}
	return count, nil
}

// inferColumns reads the header and up to sampleRows data rows and
// classifies each column.
func inferColumns(path string, t types.FileType, sampleRows int) ([]*types.Column, error) {
	r, f, err := openTabular(path, t)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	samples := make([][]string, len(header))
	for n := 0; n < sampleRows; n++ {
		row, err := r.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to read sample row %d: %w", n+2, err)
		}
		for i := range header {
			if i < len(row) {
				samples[i] = append(samples[i], row[i])
			}
		}
	}

	columns := make([]*types.Column, len(header))
	for i, name := range header {
		columns[i] = &types.Column{
			Name: strings.TrimSpace(name),
			Type: classifyColumn(samples[i]),
		}
	}
	return columns, nil
}

// classifyColumn applies the inference rules in order over the non-blank
// sample values; the first rule matched by every value wins.
func classifyColumn(values []string) types.ColumnType {
	var nonBlank []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			nonBlank = append(nonBlank, v)
		}
	}
	if len(nonBlank) == 0 {
		return types.ColumnUnknown
	}
	if allOf(nonBlank, isInt) {
		return types.ColumnInt
	}
	if allOf(nonBlank, isFloat) {
		return types.ColumnFloat
	}
	if allOf(nonBlank, isBool) {
		return types.ColumnBool
	}
	if allOf(nonBlank, isDatetime) {
		return types.ColumnDatetime
	}
	return types.ColumnString
}

func allOf(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

func isInt(v string) bool {
	_, err := strconv.ParseInt(v, 10, 64)
	return err == nil
}

func isFloat(v string) bool {
	f, err := strconv.ParseFloat(v, 64)
	return err == nil && !math.IsInf(f, 0) && !math.IsNaN(f)
}

var boolWords = map[string]bool{
	"true": true, "false": true,
	"yes": true, "no": true,
	"0": true, "1": true,
}

func isBool(v string) bool {
	return boolWords[strings.ToLower(v)]
}

// datetimeLayouts covers ISO-8601 date and date-time forms.
var datetimeLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

func isDatetime(v string) bool {
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}
