// Package loader ships the embedded data loader module that analysis
// processes import from their workspace.
//
// The loader is embedded at build time so the node binary is
// self-contained; the runner writes it into every workspace under a stable
// name, and the analysis process imports it without any path manipulation.
package loader

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// ModuleName is the filename the loader takes inside a workspace. Scripts
// import it as "data_loader".
const ModuleName = "data_loader.py"

//go:embed data_loader.py
var embeddedLoader []byte

// Bytes returns the embedded loader module.
func Bytes() []byte {
	return embeddedLoader
}

// Size returns the size of the embedded loader in bytes.
func Size() int {
	return len(embeddedLoader)
}

// Checksum returns the SHA256 checksum of the embedded loader.
func Checksum() string {
	hash := sha256.Sum256(embeddedLoader)
	return hex.EncodeToString(hash[:])
}

// WriteTo places the loader module into a workspace directory.
func WriteTo(workspaceDir string) error {
	if len(embeddedLoader) == 0 {
		return fmt.Errorf("no embedded loader available")
	}
	path := filepath.Join(workspaceDir, ModuleName)
	if err := os.WriteFile(path, embeddedLoader, 0o644); err != nil {
		return fmt.Errorf("failed to write loader module: %w", err)
	}
	return nil
}
