package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/neurofed/axon/pkg/node"
	"github.com/neurofed/axon/pkg/types"
)

var (
	flagApprover string
	flagNotes    string
	flagState    string
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Review and decide analysis requests",
}

var requestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List requests",
	RunE:  runRequestList,
}

var requestShowCmd = &cobra.Command{
	Use:   "show <request-id>",
	Short: "Show one request with its audit trail",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestShow,
}

var requestApproveCmd = &cobra.Command{
	Use:   "approve <request-id>",
	Short: "Approve a pending request and queue its job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decide(args[0], "approve")
	},
}

var requestDenyCmd = &cobra.Command{
	Use:   "deny <request-id>",
	Short: "Deny a pending request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decide(args[0], "deny")
	},
}

var requestResultsCmd = &cobra.Command{
	Use:   "results <request-id>",
	Short: "Print the results of a request (blocked rows as placeholders)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestResults,
}

func init() {
	requestListCmd.Flags().StringVar(&flagState, "state", "", "Filter by state")
	requestApproveCmd.Flags().StringVar(&flagApprover, "approver", "", "Approver identity (required)")
	requestApproveCmd.Flags().StringVar(&flagNotes, "notes", "", "Decision notes")
	requestDenyCmd.Flags().StringVar(&flagApprover, "approver", "", "Approver identity (required)")
	requestDenyCmd.Flags().StringVar(&flagNotes, "notes", "", "Decision notes")
	_ = requestApproveCmd.MarkFlagRequired("approver")
	_ = requestDenyCmd.MarkFlagRequired("approver")

	requestCmd.AddCommand(requestListCmd)
	requestCmd.AddCommand(requestShowCmd)
	requestCmd.AddCommand(requestApproveCmd)
	requestCmd.AddCommand(requestDenyCmd)
	requestCmd.AddCommand(requestResultsCmd)
}

func runRequestList(cmd *cobra.Command, args []string) error {
	return withNode(func(n *node.Node) error {
		requests, err := n.ListRequests(types.RequestFilter{State: types.RequestState(flagState)})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tKIND\tCATALOG\tREQUESTER\tCREATED")
		for _, req := range requests {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				req.ID, req.State, req.Kind, req.CatalogID,
				req.Requester.Name, humanize.Time(req.CreatedAt))
		}
		return w.Flush()
	})
}

func runRequestShow(cmd *cobra.Command, args []string) error {
	return withNode(func(n *node.Node) error {
		req, err := n.GetRequest(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Request %s\n", req.ID)
		fmt.Printf("  Title:     %s\n", req.Title)
		fmt.Printf("  Requester: %s <%s> (%s)\n", req.Requester.Name, req.Requester.Email, req.Requester.Institution)
		fmt.Printf("  Catalog:   %s  Kind: %s  Priority: %s\n", req.CatalogID, req.Kind, req.Priority)
		fmt.Printf("  State:     %s  Created: %s\n", req.State, humanize.Time(req.CreatedAt))
		if req.Decision != nil {
			verdict := "denied"
			if req.Decision.Approved {
				verdict = "approved"
			}
			fmt.Printf("  Decision:  %s by %s (%s)\n", verdict, req.Decision.Approver, req.Decision.Notes)
		}
		if req.JobID != "" {
			fmt.Printf("  Job:       %s\n", req.JobID)
			if job, err := n.Job(req.JobID); err == nil {
				fmt.Printf("             status=%s exit=%d\n", job.Status, job.ExitCode)
				if job.Error != nil {
					fmt.Printf("             error: %s: %s\n", job.Error.Reason, job.Error.Message)
				}
			}
		}

		audit, err := n.Audit(req.ID)
		if err != nil {
			return err
		}
		fmt.Println("\nAudit trail:")
		for _, rec := range audit {
			fmt.Printf("  %s  %s -> %s  by %s  %s\n",
				rec.Timestamp.Format("2006-01-02 15:04:05"),
				rec.FromState, rec.ToState, rec.Principal, rec.Notes)
		}
		return nil
	})
}

func decide(id, decision string) error {
	return withNode(func(n *node.Node) error {
		req, err := n.Decide(id, flagApprover, decision, flagNotes)
		if err != nil {
			return err
		}
		fmt.Printf("Request %s is now %s\n", req.ID, req.State)
		return nil
	})
}

func runRequestResults(cmd *cobra.Command, args []string) error {
	return withNode(func(n *node.Node) error {
		results, err := n.Results(args[0])
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No results")
			return nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		for _, res := range results {
			if err := enc.Encode(res.Payload); err != nil {
				return err
			}
		}
		return nil
	})
}
