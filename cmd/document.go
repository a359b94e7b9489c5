package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/veridoc/veridoc/internal/models"
)

// documentCmd represents the document command group
var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Inspect stored documents",
	Long: `Inspect documents in managed storage.

Available subcommands:
  show - Show one document's stages and lineage
  list - List all documents`,
}

var documentShowCmd = &cobra.Command{
	Use:   "show <document-id>",
	Short: "Show one document's stages and lineage",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentShow,
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

func init() {
	rootCmd.AddCommand(documentCmd)
	documentCmd.AddCommand(documentShowCmd)
	documentCmd.AddCommand(documentListCmd)
}

func runDocumentShow(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}

	doc, err := app.Docs.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Document:  %s\n", doc.DocumentID)
	fmt.Printf("File:      %s (%d bytes)\n", doc.OriginalFilename, doc.SizeBytes)
	fmt.Printf("Stored:    %s\n", doc.StoredPath)
	fmt.Printf("Hash:      %s\n", doc.ContentHash)
	fmt.Printf("Status:    %s\n", doc.DeriveStatus())
	fmt.Printf("Created:   %s\n", doc.CreatedAt.Format(time.RFC3339))

	if doc.IsChild() {
		fmt.Printf("Page:      %d of %d (parent %s)\n", doc.PageNumber, doc.TotalPages, doc.ParentDocumentID)
	}
	if doc.IsSplitParent() {
		fmt.Printf("Pages:     %d children", len(doc.ChildDocumentIDs))
		if doc.SkippedPages > 0 {
			fmt.Printf(", %d pages beyond the ceiling not rendered", doc.SkippedPages)
		}
		fmt.Println()
		for _, childID := range doc.ChildDocumentIDs {
			fmt.Printf("    %s\n", childID)
		}
	}
	if len(doc.CaseLinks) > 0 {
		fmt.Printf("Cases:     %v\n", doc.CaseLinks)
	}
	if doc.RequiresReview {
		fmt.Printf("Review:    %s\n", doc.ReviewReason)
	}

	fmt.Println("\nStages:")
	for _, stage := range models.StageOrder() {
		block := doc.Stage(stage)
		fmt.Printf("  %-16s %s %-8s", stage, stageStatusSymbol(block.Status), block.Status)
		if block.RetryCount > 0 {
			fmt.Printf("  retries: %d", block.RetryCount)
		}
		fmt.Println()
		if block.Message != "" {
			fmt.Printf("      %s\n", block.Message)
		}
		if block.Error != "" {
			fmt.Printf("      error: %s\n", block.Error)
		}
	}
	return nil
}

func stageStatusSymbol(status models.StageStatus) string {
	switch status {
	case models.StageStatusSuccess:
		return "✓"
	case models.StageStatusRunning:
		return "→"
	case models.StageStatusFail:
		return "✗"
	case models.StageStatusPending:
		return "○"
	case models.StageStatusSkipped:
		return "⊘"
	default:
		return " "
	}
}

func runDocumentList(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}

	docs, err := app.Docs.List()
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No documents found")
		return nil
	}

	fmt.Printf("%-28s %-16s %-10s %s\n", "DOCUMENT ID", "STATUS", "PAGES", "FILENAME")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, doc := range docs {
		pages := "-"
		if doc.IsSplitParent() {
			pages = fmt.Sprintf("%d", len(doc.ChildDocumentIDs))
		} else if doc.IsChild() {
			pages = fmt.Sprintf("%d/%d", doc.PageNumber, doc.TotalPages)
		}
		fmt.Printf("%-28s %-16s %-10s %s\n",
			doc.DocumentID, doc.DeriveStatus(), pages, doc.OriginalFilename)
	}
	fmt.Printf("\nTotal: %d documents\n", len(docs))
	return nil
}
