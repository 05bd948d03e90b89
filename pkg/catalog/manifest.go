package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/neurofed/axon/pkg/types"
)

// Known enum values; anything else in the manifest degrades to "unknown"
// rather than failing the load.
var (
	validAccess = map[types.AccessLevel]bool{
		types.AccessPublic:     true,
		types.AccessRestricted: true,
		types.AccessPrivate:    true,
	}
	validPrivacy = map[types.PrivacyLevel]bool{
		types.PrivacyLow:    true,
		types.PrivacyMedium: true,
		types.PrivacyHigh:   true,
	}
	validFileType = map[types.FileType]bool{
		types.FileCSV:   true,
		types.FileTSV:   true,
		types.FileJSON:  true,
		types.FileNIfTI: true,
		types.FileNIIGz: true,
		types.FileNPY:   true,
		types.FileNPZ:   true,
		types.FileMAT:   true,
	}
)

// ReadManifest loads and validates the manifest at path.
func ReadManifest(path string) (*types.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewError(types.KindValidation, "manifest missing: %s", path)
		}
		return nil, types.WrapError(types.KindInternal, err, "failed to read manifest")
	}

	var manifest types.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, types.WrapError(types.KindValidation, err, "manifest invalid")
	}

	if err := validateManifest(&manifest); err != nil {
		return nil, err
	}
	normalizeManifest(&manifest)
	return &manifest, nil
}

func validateManifest(m *types.Manifest) error {
	seen := make(map[string]bool, len(m.Catalogs))
	for _, cat := range m.Catalogs {
		if cat.ID == "" {
			return types.NewError(types.KindValidation, "manifest invalid: catalog without id")
		}
		if seen[cat.ID] {
			return types.NewError(types.KindValidation, "manifest invalid: duplicate catalog id %q", cat.ID)
		}
		if cat.ID == UploadedCatalogID {
			return types.NewError(types.KindValidation, "manifest invalid: catalog id %q is reserved", cat.ID)
		}
		seen[cat.ID] = true

		names := make(map[string]bool, len(cat.Files))
		for _, f := range cat.Files {
			if f.Name == "" || f.Path == "" {
				return types.NewError(types.KindValidation, "manifest invalid: catalog %q has a file without name or path", cat.ID)
			}
			if names[f.Name] {
				return types.NewError(types.KindValidation, "manifest invalid: catalog %q has duplicate file %q", cat.ID, f.Name)
			}
			names[f.Name] = true
		}
	}
	return nil
}

// normalizeManifest fills defaults and folds unknown enum values.
func normalizeManifest(m *types.Manifest) {
	for _, cat := range m.Catalogs {
		if cat.AccessLevel == "" || !validAccess[cat.AccessLevel] {
			if cat.AccessLevel == "" {
				cat.AccessLevel = types.AccessRestricted
			} else {
				cat.AccessLevel = types.AccessUnknown
			}
		}
		if cat.PrivacyLevel == "" || !validPrivacy[cat.PrivacyLevel] {
			if cat.PrivacyLevel == "" {
				cat.PrivacyLevel = types.PrivacyMedium
			} else {
				cat.PrivacyLevel = types.PrivacyUnknown
			}
		}
		if cat.MinCohortSize < 1 {
			cat.MinCohortSize = 1
		}
		for _, f := range cat.Files {
			if !validFileType[f.Type] {
				// Unrecognized declared types pass through as opaque files.
				f.Columns = nil
			}
		}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// manifestMtime returns the manifest's modification time, or an error when
// the file is absent.
func manifestMtime(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, types.NewError(types.KindValidation, "manifest missing: %s", path)
		}
		return 0, fmt.Errorf("failed to stat manifest: %w", err)
	}
	return info.ModTime().UnixNano(), nil
}
