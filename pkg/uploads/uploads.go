package uploads

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/neurofed/axon/pkg/catalog"
	"github.com/neurofed/axon/pkg/log"
	"github.com/neurofed/axon/pkg/metrics"
	"github.com/neurofed/axon/pkg/storage"
	"github.com/neurofed/axon/pkg/types"
)

var (
	scriptExtensions = map[string]bool{
		"py": true,
		"r":  true,
	}
	dataExtensions = map[string]bool{
		"csv": true, "tsv": true, "json": true,
		"npy": true, "npz": true, "mat": true,
		"nii": true, "nii.gz": true,
	}
)

// Store persists user-submitted files under <root>/uploads and registers
// data files into the synthetic user-uploaded-files catalog. Files are
// written once and never mutated or overwritten.
type Store struct {
	scriptsDir string
	dataDir    string
	maxBytes   int64
	meta       storage.Store
	logger     zerolog.Logger

	// onDataStored is called after a data upload so the catalog registry
	// can invalidate its cache.
	onDataStored func()
}

// Config holds upload store configuration
type Config struct {
	BaseDir      string // <root>/uploads
	MaxFileBytes int64
	Meta         storage.Store
}

// NewStore creates the upload store and its directory layout.
func NewStore(cfg Config) (*Store, error) {
	s := &Store{
		scriptsDir: filepath.Join(cfg.BaseDir, "scripts"),
		dataDir:    filepath.Join(cfg.BaseDir, "data"),
		maxBytes:   cfg.MaxFileBytes,
		meta:       cfg.Meta,
		logger:     log.WithComponent("uploads"),
	}
	for _, dir := range []string{s.scriptsDir, s.dataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create upload directory: %w", err)
		}
	}
	return s, nil
}

// OnDataStored registers the registry invalidation hook.
func (s *Store) OnDataStored(fn func()) {
	s.onDataStored = fn
}

// PutScript stores an analysis script (.py or .r).
func (s *Store) PutScript(originalName string, r io.Reader) (*types.UploadedFile, error) {
	return s.put(originalName, r, types.UploadScript)
}

// PutData stores a data file and grows the synthetic catalog.
func (s *Store) PutData(originalName string, r io.Reader) (*types.UploadedFile, error) {
	file, err := s.put(originalName, r, types.UploadData)
	if err != nil {
		return nil, err
	}
	if s.onDataStored != nil {
		s.onDataStored()
	}
	return file, nil
}

func (s *Store) put(originalName string, r io.Reader, kind types.UploadKind) (*types.UploadedFile, error) {
	ext := Extension(originalName)
	if !allowedExtension(ext, kind) {
		return nil, types.NewError(types.KindValidation, "extension %q not allowed for %s uploads", ext, kind)
	}

	id := uuid.New().String()
	safe := SanitizeName(originalName)
	storedName := id + "_" + safe
	path := filepath.Join(s.dir(kind), storedName)

	// O_EXCL: the store never overwrites an existing file.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, types.WrapError(types.KindInternal, err, "failed to create upload file")
	}

	var limited io.Reader = r
	if s.maxBytes > 0 {
		limited = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(f, limited)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, types.WrapError(types.KindInternal, err, "failed to write upload")
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		os.Remove(path)
		return nil, types.NewError(types.KindResourceExhausted, "upload exceeds limit of %d bytes", s.maxBytes)
	}

	file := &types.UploadedFile{
		ID:           id,
		OriginalName: originalName,
		StoredName:   storedName,
		Kind:         kind,
		Extension:    ext,
		SizeBytes:    n,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.meta.CreateUpload(file); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to persist upload record: %w", err)
	}

	metrics.UploadsTotal.WithLabelValues(string(kind)).Inc()
	metrics.UploadBytes.Add(float64(n))
	s.logger.Info().
		Str("upload_id", id).
		Str("kind", string(kind)).
		Int64("bytes", n).
		Msg("Upload stored")
	return file, nil
}

// Get returns the metadata record for an upload id.
func (s *Store) Get(id string) (*types.UploadedFile, error) {
	return s.meta.GetUpload(id)
}

// List returns uploads of one kind; empty kind lists everything.
func (s *Store) List(kind types.UploadKind) ([]*types.UploadedFile, error) {
	return s.meta.ListUploads(kind)
}

// Open returns a reader over the stored bytes.
func (s *Store) Open(id string) (io.ReadCloser, error) {
	file, err := s.meta.GetUpload(id)
	if err != nil {
		return nil, err
	}
	return os.Open(s.Path(file))
}

// Path returns the absolute on-disk path of an upload.
func (s *Store) Path(file *types.UploadedFile) string {
	return filepath.Join(s.dir(file.Kind), file.StoredName)
}

func (s *Store) dir(kind types.UploadKind) string {
	if kind == types.UploadScript {
		return s.scriptsDir
	}
	return s.dataDir
}

// Catalog builds the synthetic user-uploaded-files catalog from the
// stored data files. Returns nil when nothing has been uploaded.
func (s *Store) Catalog() *types.Catalog {
	files, err := s.meta.ListUploads(types.UploadData)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list uploads for synthetic catalog")
		return nil
	}
	if len(files) == 0 {
		return nil
	}

	cat := &types.Catalog{
		ID:            catalog.UploadedCatalogID,
		Name:          "User Uploaded Files",
		Description:   "Data files uploaded by researchers for their own analyses",
		AccessLevel:   types.AccessPrivate,
		PrivacyLevel:  types.PrivacyHigh,
		MinCohortSize: 1,
	}
	// Logical names must be unique within a catalog; two uploads may share
	// an original filename, so collisions get an id-derived prefix.
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		name := f.OriginalName
		if seen[name] {
			name = shortID(f.ID) + "_" + f.OriginalName
		}
		seen[name] = true
		cat.Files = append(cat.Files, &types.File{
			Name:   name,
			Path:   s.Path(f),
			Type:   fileTypeFor(f.Extension),
			Exists: true,
		})
	}
	return cat
}

// shortID returns the id prefix used to disambiguate display names.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func fileTypeFor(ext string) types.FileType {
	switch ext {
	case "nii", "nii.gz":
		return types.FileNIIGz
	default:
		return types.FileType(ext)
	}
}

func allowedExtension(ext string, kind types.UploadKind) bool {
	if kind == types.UploadScript {
		return scriptExtensions[ext]
	}
	return dataExtensions[ext]
}

// Extension returns the lowercase extension of name, treating .nii.gz as
// a single extension.
func Extension(name string) string {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".nii.gz") {
		return "nii.gz"
	}
	ext := filepath.Ext(lower)
	return strings.TrimPrefix(ext, ".")
}

// SanitizeName strips directory separators and control characters from a
// path component so an original filename can never escape the upload dir.
func SanitizeName(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == 0:
			continue
		case r < 0x20 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" || out == "." || out == ".." {
		return "file"
	}
	return out
}
