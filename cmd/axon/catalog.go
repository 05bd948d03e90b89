package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/neurofed/axon/pkg/node"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the node's data catalogs",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalogs with file status",
	RunE:  runCatalogList,
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <catalog-id>",
	Short: "Show one catalog, its files and schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogShow,
}

func init() {
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogShowCmd)
}

// withNode runs fn against a node opened on the configured root.
func withNode(fn func(n *node.Node) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	defer n.Stop()
	return fn(n)
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	return withNode(func(n *node.Node) error {
		catalogs, err := n.ListCatalogs()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tACCESS\tPRIVACY\tMIN COHORT\tFILES")
		for _, cat := range catalogs {
			present := 0
			for _, f := range cat.Files {
				if f.Exists {
					present++
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d/%d\n",
				cat.ID, cat.Name, cat.AccessLevel, cat.PrivacyLevel,
				cat.MinCohortSize, present, len(cat.Files))
		}
		return w.Flush()
	})
}

func runCatalogShow(cmd *cobra.Command, args []string) error {
	return withNode(func(n *node.Node) error {
		cat, err := n.GetCatalog(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Catalog: %s (%s)\n", cat.Name, cat.ID)
		if cat.Description != "" {
			fmt.Printf("  %s\n", cat.Description)
		}
		fmt.Printf("Access: %s  Privacy: %s  Min cohort: %d\n\n",
			cat.AccessLevel, cat.PrivacyLevel, cat.MinCohortSize)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tTYPE\tEXISTS\tRECORDS\tCOLUMNS")
		for _, f := range cat.Files {
			records := "-"
			if f.ActualRecords > 0 {
				records = humanize.Comma(int64(f.ActualRecords))
			}
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%d\n",
				f.Name, f.Type, f.Exists, records, len(f.Columns))
		}
		return w.Flush()
	})
}
