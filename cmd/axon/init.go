package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/neurofed/axon/pkg/types"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a node root directory",
	Long: `Create the node directory layout (data/, state/, uploads/, work/)
and an example manifest to edit. Existing files are left untouched.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	for _, dir := range []string{"data", "state", "uploads/scripts", "uploads/data", "work"} {
		if err := os.MkdirAll(filepath.Join(flagRoot, dir), 0o755); err != nil {
			return err
		}
	}

	manifestPath := filepath.Join(flagRoot, "data", "manifest.json")
	if _, err := os.Stat(manifestPath); err == nil {
		fmt.Printf("Manifest already exists at %s\n", manifestPath)
		return nil
	}

	manifest := &types.Manifest{
		Version: "1.0",
		Catalogs: []*types.Catalog{
			{
				ID:            "example_catalog",
				Name:          "Example Catalog",
				Description:   "Replace with your curated dataset",
				AccessLevel:   types.AccessRestricted,
				PrivacyLevel:  types.PrivacyMedium,
				MinCohortSize: 10,
				Files: []*types.File{
					{
						Name: "subjects",
						Path: "example/subjects.csv",
						Type: types.FileCSV,
					},
				},
			},
		},
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("Node root initialized at %s\n", flagRoot)
	fmt.Printf("Edit %s to describe your catalogs.\n", manifestPath)
	return nil
}
