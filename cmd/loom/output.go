package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/quillworks/loom/internal/model"
	"github.com/quillworks/loom/internal/ui"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printRecordTable(rec *model.ExecutionRecord) {
	fmt.Printf("ID:         %s\n", rec.ID)
	if rec.EngineID != "" {
		fmt.Printf("Engine:     %s\n", rec.EngineID)
	}
	fmt.Printf("Status:     %s\n", ui.RenderStatus(rec.Status.String()))
	if rec.CurrentNodeID != "" {
		fmt.Printf("Current:    %s\n", rec.CurrentNodeID)
	}
	fmt.Printf("Completed:  %d nodes\n", len(rec.CompletedNodeIDs))
	if rec.StopRequested {
		fmt.Printf("Stop:       requested\n")
	}
	if rec.Resumable {
		fmt.Printf("Resumable:  yes\n")
	}
	for _, e := range rec.Errors {
		fmt.Printf("Error:      %s %s\n", e.Message, ui.RenderMuted("("+e.NodeID+")"))
	}
	fmt.Printf("Created:    %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:    %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func printRecordListTable(records []*model.ExecutionRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENGINE\tSTATUS\tNODES\tUPDATED")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			rec.ID,
			rec.EngineID,
			rec.Status,
			len(rec.CompletedNodeIDs),
			rec.UpdatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()
	fmt.Printf("\n%d runs\n", len(records))
}

func printResultTable(result *model.RunResult) {
	fmt.Printf("Run:        %s\n", result.ExecutionID)
	fmt.Printf("Status:     %s\n", ui.RenderStatus(result.Status.String()))
	if result.FailedNodeID != "" {
		fmt.Printf("Failed at:  %s (%s)\n", result.FailedNodeName, result.FailedNodeID)
	}
	if result.Resumable {
		fmt.Printf("Resumable:  yes\n")
	}
	fmt.Printf("Tokens:     %d\n", result.TokenUsage.TotalTokens)
	fmt.Printf("Cost:       $%.4f\n", result.TokenUsage.TotalCost)
	fmt.Printf("Words:      %d\n", result.TokenUsage.TotalWords)
	if doc := result.Document; doc != nil {
		fmt.Printf("Document:   %d chapters, %d words\n", len(doc.Chapters), doc.TotalWords)
	}
	for _, d := range result.Deliverable {
		loc := d.Location
		if loc == "" {
			loc = "(inline)"
		}
		fmt.Printf("Export:     %s %s\n", d.Format, ui.RenderMuted(loc))
	}
	if len(result.TokenLedger) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NODE\tTOKENS\tCOST")
		for _, e := range result.TokenLedger {
			name := e.NodeName
			if name == "" {
				name = e.NodeID
			}
			fmt.Fprintf(w, "%s\t%d\t$%.4f\n", name, e.Tokens, e.Cost)
		}
		w.Flush()
	}
}

func printEngineTable(eng *model.Engine) {
	fmt.Printf("ID:          %s\n", eng.ID)
	fmt.Printf("Name:        %s\n", eng.Name)
	fmt.Printf("Status:      %s\n", eng.Status)
	if eng.Description != "" {
		fmt.Printf("Description: %s\n", eng.Description)
	}
	fmt.Printf("Nodes:       %d\n", len(eng.Nodes))
	fmt.Printf("Edges:       %d\n", len(eng.Edges))
	if eng.CreatedBy != "" {
		fmt.Printf("Created By:  %s\n", eng.CreatedBy)
	}
	fmt.Printf("Created At:  %s\n", eng.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated At:  %s\n", eng.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func printEngineListTable(engines []*model.Engine) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tNODES\tNAME")
	for _, e := range engines {
		name := e.Name
		if len(name) > 50 {
			name = name[:47] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", e.ID, e.Status, len(e.Nodes), name)
	}
	w.Flush()
	fmt.Printf("\n%d engines\n", len(engines))
}
