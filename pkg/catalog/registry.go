package catalog

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/neurofed/axon/pkg/log"
	"github.com/neurofed/axon/pkg/metrics"
	"github.com/neurofed/axon/pkg/types"
)

// UploadedCatalogID is the id of the synthetic catalog that exposes
// user-uploaded data files. The id is reserved; manifests may not use it.
const UploadedCatalogID = "user-uploaded-files"

// SyntheticProvider supplies the uploaded-files catalog on demand.
// Returning nil omits the synthetic catalog from listings.
type SyntheticProvider func() *types.Catalog

// Registry provides the typed, cached view over the manifest. The cache is
// single-writer (invalidations) / multi-reader; it refreshes when the
// manifest mtime changes, when the watcher fires, or when the upload store
// reports a mutation.
type Registry struct {
	manifestPath string
	baseDir      string
	sampleRows   int
	synthetic    SyntheticProvider
	logger       zerolog.Logger

	mu     sync.RWMutex
	cached []*types.Catalog
	mtime  int64
	dirty  bool

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewRegistry creates a registry for the manifest at manifestPath.
// Relative file paths in the manifest resolve against the manifest's
// directory.
func NewRegistry(manifestPath string, sampleRows int) *Registry {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	return &Registry{
		manifestPath: manifestPath,
		baseDir:      filepath.Dir(manifestPath),
		sampleRows:   sampleRows,
		logger:       log.WithComponent("catalog"),
		dirty:        true,
		stopCh:       make(chan struct{}),
	}
}

// SetSyntheticProvider registers the uploaded-files catalog source.
func (r *Registry) SetSyntheticProvider(p SyntheticProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synthetic = p
	r.dirty = true
}

// Invalidate marks the cache stale. Called by the upload store after a
// data upload mutates the synthetic catalog.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirty = true
}

// Watch starts a filesystem watcher on the manifest. Watcher failure
// degrades to mtime polling (which ListCatalogs always performs), so the
// error is logged and swallowed.
func (r *Registry) Watch() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		r.logger.Warn().Err(err).Msg("Manifest watcher unavailable, relying on mtime checks")
		return
	}
	if err := w.Add(r.baseDir); err != nil {
		r.logger.Warn().Err(err).Str("dir", r.baseDir).Msg("Failed to watch manifest directory")
		w.Close()
		return
	}
	r.watcher = w

	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) == filepath.Clean(r.manifestPath) {
					r.logger.Debug().Str("op", ev.Op.String()).Msg("Manifest changed on disk")
					r.Invalidate()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger.Warn().Err(err).Msg("Manifest watcher error")
			case <-r.stopCh:
				return
			}
		}
	}()
}

// Stop stops the watcher goroutine.
func (r *Registry) Stop() {
	close(r.stopCh)
}

// ListCatalogs returns all catalogs enriched with file existence, actual
// record counts, and inferred schemas, plus the synthetic uploaded-files
// catalog when present.
func (r *Registry) ListCatalogs() ([]*types.Catalog, error) {
	mtime, err := manifestMtime(r.manifestPath)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	if !r.dirty && mtime == r.mtime && r.cached != nil {
		cached := r.cached
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	return r.reload(mtime)
}

func (r *Registry) reload(mtime int64) ([]*types.Catalog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Another reader may have reloaded while we waited for the lock.
	if !r.dirty && mtime == r.mtime && r.cached != nil {
		return r.cached, nil
	}

	manifest, err := ReadManifest(r.manifestPath)
	if err != nil {
		return nil, err
	}

	catalogs := make([]*types.Catalog, 0, len(manifest.Catalogs)+1)
	for _, cat := range manifest.Catalogs {
		enriched := *cat
		enriched.Files = make([]*types.File, len(cat.Files))
		for i, f := range cat.Files {
			enriched.Files[i] = r.enrichFile(f)
		}
		catalogs = append(catalogs, &enriched)
	}

	if r.synthetic != nil {
		if syn := r.synthetic(); syn != nil {
			catalogs = append(catalogs, syn)
		}
	}

	r.cached = catalogs
	r.mtime = mtime
	r.dirty = false
	metrics.CatalogReloads.Inc()
	r.logger.Debug().Int("catalogs", len(catalogs)).Msg("Catalog cache reloaded")
	return catalogs, nil
}

// enrichFile derives existence, record counts, and inferred columns.
// A listed-but-absent file yields exists=false, never an error.
func (r *Registry) enrichFile(f *types.File) *types.File {
	out := *f
	abs := r.ResolvePath(f)

	if f.Glob != "" {
		matches, err := filepath.Glob(filepath.Join(abs, f.Glob))
		out.Exists = err == nil && len(matches) > 0
		return &out
	}

	out.Exists = fileExists(abs)
	if !out.Exists || !f.Type.Tabular() {
		return &out
	}

	if n, err := countRecords(abs, f.Type); err == nil {
		out.ActualRecords = n
	} else {
		r.logger.Warn().Err(err).Str("file", f.Name).Msg("Failed to count records")
	}

	if len(f.Columns) == 0 {
		if cols, err := inferColumns(abs, f.Type, r.sampleRows); err == nil {
			out.Columns = cols
		} else {
			r.logger.Warn().Err(err).Str("file", f.Name).Msg("Failed to infer schema")
		}
	}
	return &out
}

// ResolvePath returns the absolute on-disk path for a catalog file.
func (r *Registry) ResolvePath(f *types.File) string {
	if filepath.IsAbs(f.Path) {
		return f.Path
	}
	return filepath.Join(r.baseDir, f.Path)
}

// GetCatalog returns one catalog by id, including the synthetic catalog.
func (r *Registry) GetCatalog(id string) (*types.Catalog, error) {
	catalogs, err := r.ListCatalogs()
	if err != nil {
		return nil, err
	}
	for _, cat := range catalogs {
		if cat.ID == id {
			return cat, nil
		}
	}
	return nil, types.NewError(types.KindValidation, "catalog not found: %s", id)
}

// SchemaOf returns declared columns when the manifest has them, otherwise
// the inferred schema from the file header and a bounded row sample.
func (r *Registry) SchemaOf(catalogID, fileName string) ([]*types.Column, error) {
	cat, err := r.GetCatalog(catalogID)
	if err != nil {
		return nil, err
	}
	for _, f := range cat.Files {
		if f.Name != fileName {
			continue
		}
		if len(f.Columns) > 0 {
			return f.Columns, nil
		}
		if !f.Type.Tabular() {
			return nil, types.NewError(types.KindValidation, "file %s/%s is not tabular", catalogID, fileName)
		}
		if !f.Exists {
			return nil, types.NewError(types.KindValidation, "file %s/%s does not exist", catalogID, fileName)
		}
		cols, err := inferColumns(r.ResolvePath(f), f.Type, r.sampleRows)
		if err != nil {
			return nil, fmt.Errorf("failed to infer schema for %s/%s: %w", catalogID, fileName, err)
		}
		return cols, nil
	}
	return nil, types.NewError(types.KindValidation, "file not found: %s/%s", catalogID, fileName)
}

// timelineWords flags column names that denote a visit or timepoint axis.
var timelineWords = []string{"baseline", "followup", "follow_up", "visit", "timepoint", "session", "month", "week"}

// ScoreTimeline returns the selectable score and timeline options for a
// catalog. Explicit options come from the catalog metadata keys "scores"
// and "timelines"; absent those, numeric columns become score options and
// visit-vocabulary columns become timeline options.
func (r *Registry) ScoreTimeline(catalogID string) ([]*types.Option, error) {
	cat, err := r.GetCatalog(catalogID)
	if err != nil {
		return nil, err
	}

	options := parseMetadataOptions(cat.Metadata, "scores", types.OptionScore)
	options = append(options, parseMetadataOptions(cat.Metadata, "timelines", types.OptionTimeline)...)
	if len(options) > 0 {
		return options, nil
	}

	// Inferred fallback over tabular columns.
	seen := make(map[string]bool)
	for _, f := range cat.Files {
		for _, col := range f.Columns {
			if seen[col.Name] {
				continue
			}
			seen[col.Name] = true

			lower := strings.ToLower(col.Name)
			if matchesTimelineWord(lower) {
				options = append(options, &types.Option{
					Kind:  types.OptionTimeline,
					Name:  col.Name,
					Value: col.Name,
				})
				continue
			}
			if col.Type == types.ColumnInt || col.Type == types.ColumnFloat {
				options = append(options, &types.Option{
					Kind:  types.OptionScore,
					Name:  col.Name,
					Value: col.Name,
				})
			}
		}
	}
	sort.SliceStable(options, func(i, j int) bool {
		if options[i].Kind != options[j].Kind {
			return options[i].Kind == types.OptionScore
		}
		return options[i].Name < options[j].Name
	})
	return options, nil
}

func matchesTimelineWord(name string) bool {
	for _, w := range timelineWords {
		if strings.Contains(name, w) {
			return true
		}
	}
	return false
}

func parseMetadataOptions(meta map[string]any, key string, kind types.OptionKind) []*types.Option {
	raw, ok := meta[key].([]any)
	if !ok {
		return nil
	}
	var options []*types.Option
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			options = append(options, &types.Option{Kind: kind, Name: v, Value: v})
		case map[string]any:
			opt := &types.Option{Kind: kind}
			opt.Name, _ = v["name"].(string)
			opt.Value, _ = v["value"].(string)
			opt.Default, _ = v["default"].(bool)
			if opt.Value == "" {
				opt.Value = opt.Name
			}
			if opt.Name != "" {
				options = append(options, opt)
			}
		}
	}
	return options
}
