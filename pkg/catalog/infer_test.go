package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurofed/axon/pkg/types"
)

// TestClassifyColumn tests the column type inference rules
func TestClassifyColumn(t *testing.T) {
	tests := []struct {
		name     string
		values   []string
		expected types.ColumnType
	}{
		{
			name:     "all empty values",
			values:   []string{"", "  ", ""},
			expected: types.ColumnUnknown,
		},
		{
			name:     "integers",
			values:   []string{"1", "42", "-7"},
			expected: types.ColumnInt,
		},
		{
			name:     "floats",
			values:   []string{"1.5", "2", "-0.25"},
			expected: types.ColumnFloat,
		},
		{
			name:     "zero-one is int, not bool",
			values:   []string{"0", "1", "0"},
			expected: types.ColumnInt,
		},
		{
			name:     "booleans",
			values:   []string{"true", "False", "YES", "no"},
			expected: types.ColumnBool,
		},
		{
			name:     "iso dates",
			values:   []string{"2024-01-15", "2023-12-01"},
			expected: types.ColumnDatetime,
		},
		{
			name:     "iso datetimes",
			values:   []string{"2024-01-15T10:30:00", "2023-12-01T00:00:00"},
			expected: types.ColumnDatetime,
		},
		{
			name:     "mixed falls through to string",
			values:   []string{"1", "hello"},
			expected: types.ColumnString,
		},
		{
			name:     "blanks are ignored",
			values:   []string{"", "3", " ", "8"},
			expected: types.ColumnInt,
		},
		{
			name:     "int overflow becomes float",
			values:   []string{"99999999999999999999"},
			expected: types.ColumnFloat,
		},
		{
			name:     "strings",
			values:   []string{"alpha", "beta"},
			expected: types.ColumnString,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifyColumn(tt.values))
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCountRecords(t *testing.T) {
	dir := t.TempDir()

	path := writeFile(t, dir, "subjects.csv", "id,age\n1,40\n2,55\n3,61\n")
	n, err := countRecords(path, types.FileCSV)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Header only
	path = writeFile(t, dir, "empty.csv", "id,age\n")
	n, err = countRecords(path, types.FileCSV)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Quoted embedded newline counts as one record
	path = writeFile(t, dir, "quoted.csv", "id,notes\n1,\"line one\nline two\"\n")
	n, err = countRecords(path, types.FileCSV)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInferColumns(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "subjects.csv",
		"subject_id,age,score,enrolled,visit_date,comment\n"+
			"S001,44,12.5,yes,2022-03-01,first\n"+
			"S002,51,9.75,no,2022-04-15,second\n")

	cols, err := inferColumns(path, types.FileCSV, DefaultSampleRows)
	require.NoError(t, err)
	require.Len(t, cols, 6)

	expected := map[string]types.ColumnType{
		"subject_id": types.ColumnString,
		"age":        types.ColumnInt,
		"score":      types.ColumnFloat,
		"enrolled":   types.ColumnBool,
		"visit_date": types.ColumnDatetime,
		"comment":    types.ColumnString,
	}
	for _, col := range cols {
		assert.Equal(t, expected[col.Name], col.Type, "column %s", col.Name)
	}
}

// TestInferColumnsDeterministic verifies inference is stable for the same
// bytes and sample size
func TestInferColumnsDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "data.tsv", "a\tb\n1\t2.5\n3\tx\n")

	first, err := inferColumns(path, types.FileTSV, 10)
	require.NoError(t, err)
	second, err := inferColumns(path, types.FileTSV, 10)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
