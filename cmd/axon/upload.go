package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/neurofed/axon/pkg/node"
	"github.com/neurofed/axon/pkg/types"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Manage uploaded scripts and data files",
}

var uploadScriptCmd = &cobra.Command{
	Use:   "script <path>",
	Short: "Store an analysis script (.py or .r)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return putUpload(args[0], types.UploadScript)
	},
}

var uploadDataCmd = &cobra.Command{
	Use:   "data <path>",
	Short: "Store a data file and register it in the uploaded-files catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return putUpload(args[0], types.UploadData)
	},
}

var uploadListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored uploads",
	RunE:  runUploadList,
}

func init() {
	uploadCmd.AddCommand(uploadScriptCmd)
	uploadCmd.AddCommand(uploadDataCmd)
	uploadCmd.AddCommand(uploadListCmd)
}

func putUpload(path string, kind types.UploadKind) error {
	return withNode(func(n *node.Node) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		var file *types.UploadedFile
		if kind == types.UploadScript {
			file, err = n.UploadScript(filepath.Base(path), f)
		} else {
			file, err = n.UploadData(filepath.Base(path), f)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Stored %s as %s (%s)\n", file.OriginalName, file.ID, humanize.Bytes(uint64(file.SizeBytes)))
		return nil
	})
}

func runUploadList(cmd *cobra.Command, args []string) error {
	return withNode(func(n *node.Node) error {
		files, err := n.ListUploads("")
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tNAME\tSIZE\tUPLOADED")
		for _, f := range files {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				f.ID, f.Kind, f.OriginalName,
				humanize.Bytes(uint64(f.SizeBytes)), humanize.Time(f.CreatedAt))
		}
		return w.Flush()
	})
}
