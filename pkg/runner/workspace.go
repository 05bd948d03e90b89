package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/neurofed/axon/pkg/loader"
	"github.com/neurofed/axon/pkg/types"
)

// workspace is the per-job directory layout:
//
//	work/<job-id>/
//	  script.<ext>       the analysis entry point
//	  data_loader.py     embedded loader module
//	  job_config.json    loader input
//	  input/             read-only links to exactly the allowed files
//	  output/            the child writes result.json here
//	  tmp/               child scratch space
type workspace struct {
	dir string
}

func newWorkspace(dir string) (*workspace, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace path: %w", err)
	}
	for _, sub := range []string{"", "input", "output", "tmp"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create workspace: %w", err)
		}
	}
	return &workspace{dir: dir}, nil
}

// build materializes the script, the loader module, the input links, and
// job_config.json. Returned script name is workspace-relative.
func (w *workspace) build(jobID string, req *types.AnalysisRequest, cat *types.Catalog,
	resolve func(*types.File) string, uploadPaths []string) (*types.JobConfig, string, error) {

	body, ext, err := scriptFor(req)
	if err != nil {
		return nil, "", err
	}
	scriptName := "script." + ext
	if err := os.WriteFile(filepath.Join(w.dir, scriptName), []byte(body), 0o644); err != nil {
		return nil, "", fmt.Errorf("failed to write script: %w", err)
	}

	if err := loader.WriteTo(w.dir); err != nil {
		return nil, "", err
	}

	cfg := &types.JobConfig{
		JobID:      jobID,
		RequestID:  req.ID,
		CatalogID:  cat.ID,
		Catalog:    cat,
		Files:      make(map[string]string, len(cat.Files)),
		Score:      req.Score,
		Timeline:   req.Timeline,
		OutputFile: w.outputPath(),
	}

	// Input links are independent of each other; materialize them
	// concurrently. The config carries resolved absolute paths so the
	// loader keeps working even if a custom script changes its cwd.
	var g errgroup.Group
	for _, f := range cat.Files {
		if !f.Exists {
			continue
		}
		dst := filepath.Join(w.dir, "input", f.Name)
		cfg.Files[f.Name] = dst
		cfg.FileOrder = append(cfg.FileOrder, f.Name)

		src := resolve(f)
		g.Go(func() error {
			return linkReadOnly(src, dst)
		})
	}
	for _, src := range uploadPaths {
		dst := filepath.Join(w.dir, "input", "uploads", filepath.Base(src))
		cfg.Uploads = append(cfg.Uploads, dst)
		g.Go(func() error {
			return linkReadOnly(src, dst)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", fmt.Errorf("failed to link inputs: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal job config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, "job_config.json"), data, 0o644); err != nil {
		return nil, "", fmt.Errorf("failed to write job config: %w", err)
	}
	return cfg, scriptName, nil
}

// linkReadOnly exposes src inside the workspace as a symlink. The target
// stays owned by the node; the link itself adds no write access, and the
// sandbox policy denies writes outside output/ and tmp/.
func linkReadOnly(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	if err := os.Symlink(abs, dst); err != nil && !os.IsExist(err) {
		return err
	}
	return nil
}

// outputPath returns the canonical artifact path for the workspace.
func (w *workspace) outputPath() string {
	return filepath.Join(w.dir, "output", "result.json")
}
