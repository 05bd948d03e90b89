package uploads

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurofed/axon/pkg/catalog"
	"github.com/neurofed/axon/pkg/storage"
	"github.com/neurofed/axon/pkg/types"
)

func newTestStore(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	meta, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	s, err := NewStore(Config{
		BaseDir:      t.TempDir(),
		MaxFileBytes: maxBytes,
		Meta:         meta,
	})
	require.NoError(t, err)
	return s
}

func TestExtension(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"analysis.py", "py"},
		{"Model.R", "r"},
		{"data.CSV", "csv"},
		{"scan.nii.gz", "nii.gz"},
		{"scan.NII.GZ", "nii.gz"},
		{"volume.nii", "nii"},
		{"noext", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, Extension(tt.name), tt.name)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"plain.csv", "plain.csv"},
		{"../../etc/passwd", "passwd"},
		{"dir/inner.csv", "inner.csv"},
		{"bad\x00name\x1f.csv", "badname.csv"},
		{"..", "file"},
		{"", "file"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, SanitizeName(tt.name), "input %q", tt.name)
	}
}

func TestPutScript(t *testing.T) {
	s := newTestStore(t, 0)

	file, err := s.PutScript("analysis.py", strings.NewReader("print('hi')"))
	require.NoError(t, err)
	assert.Equal(t, types.UploadScript, file.Kind)
	assert.Equal(t, "py", file.Extension)
	assert.Equal(t, int64(11), file.SizeBytes)
	assert.True(t, strings.HasPrefix(file.StoredName, file.ID+"_"))

	// Bytes round-trip through Open.
	r, err := s.Open(file.ID)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", string(data))
}

func TestPutScriptRejectsExtension(t *testing.T) {
	s := newTestStore(t, 0)

	_, err := s.PutScript("exploit.sh", strings.NewReader("#!/bin/sh"))
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))

	_, err = s.PutScript("data.csv", strings.NewReader("a,b"))
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
}

func TestPutDataRejectsExtension(t *testing.T) {
	s := newTestStore(t, 0)
	_, err := s.PutData("script.py", strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
}

func TestPutDataSizeLimit(t *testing.T) {
	s := newTestStore(t, 8)

	// Exactly the limit succeeds.
	_, err := s.PutData("ok.csv", strings.NewReader("12345678"))
	require.NoError(t, err)

	// One byte over fails and leaves nothing behind.
	_, err = s.PutData("big.csv", strings.NewReader("123456789"))
	require.Error(t, err)
	assert.Equal(t, types.KindResourceExhausted, types.KindOf(err))

	files, err := s.List(types.UploadData)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestPutDataNotifies(t *testing.T) {
	s := newTestStore(t, 0)

	notified := 0
	s.OnDataStored(func() { notified++ })

	_, err := s.PutData("cohort.csv", strings.NewReader("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, notified)

	_, err = s.PutScript("a.py", strings.NewReader("pass"))
	require.NoError(t, err)
	assert.Equal(t, 1, notified, "script uploads do not mutate the catalog")
}

func TestSyntheticCatalog(t *testing.T) {
	s := newTestStore(t, 0)

	assert.Nil(t, s.Catalog(), "no uploads, no synthetic catalog")

	_, err := s.PutData("cohort.csv", strings.NewReader("a,b\n1,2\n"))
	require.NoError(t, err)
	_, err = s.PutData("scan.nii.gz", strings.NewReader("binary"))
	require.NoError(t, err)

	cat := s.Catalog()
	require.NotNil(t, cat)
	assert.Equal(t, catalog.UploadedCatalogID, cat.ID)
	assert.Equal(t, types.PrivacyHigh, cat.PrivacyLevel)
	require.Len(t, cat.Files, 2)

	byName := map[string]*types.File{}
	for _, f := range cat.Files {
		byName[f.Name] = f
		assert.True(t, f.Exists)
		// Paths point at real stored files.
		_, err := os.Stat(f.Path)
		assert.NoError(t, err)
	}
	assert.Equal(t, types.FileCSV, byName["cohort.csv"].Type)
	assert.Equal(t, types.FileNIIGz, byName["scan.nii.gz"].Type)
}

func TestUploadsNeverCollide(t *testing.T) {
	s := newTestStore(t, 0)

	first, err := s.PutData("same.csv", strings.NewReader("1"))
	require.NoError(t, err)
	second, err := s.PutData("same.csv", strings.NewReader("2"))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.StoredName, second.StoredName)

	// Logical names in the synthetic catalog stay unique and each entry
	// keeps its own backing file.
	cat := s.Catalog()
	require.NotNil(t, cat)
	require.Len(t, cat.Files, 2)
	assert.NotEqual(t, cat.Files[0].Name, cat.Files[1].Name)
	assert.NotEqual(t, cat.Files[0].Path, cat.Files[1].Path)

	names := map[string]bool{}
	for _, f := range cat.Files {
		assert.Contains(t, f.Name, "same.csv")
		names[f.Name] = true
	}
	assert.Len(t, names, 2)
}
