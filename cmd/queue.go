package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/veridoc/veridoc/internal/models"
)

var (
	queueAddPriority int
	queueClearAll    bool
	queueRetryStale  time.Duration
)

// queueCmd represents the queue command group
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the document work queue",
	Long: `Manage the persistent document work queue.

Available subcommands:
  add     - Enqueue a single file
  add-dir - Enqueue every supported file in a directory
  status  - Show queue counters
  list    - List active and processed entries
  retry   - Reset failed entries to pending
  clear   - Remove entries`,
}

var queueAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Enqueue a single file for processing",
	Long: `Enqueue a single file for processing.

The file must exist and stays in place; processing copies it into managed
storage. Lower priority values are served first.

Example:
  veridoc queue add passport.jpg
  veridoc queue add statement.pdf --priority 1`,
	Args: cobra.ExactArgs(1),
	RunE: runQueueAdd,
}

var queueAddDirCmd = &cobra.Command{
	Use:   "add-dir <directory>",
	Short: "Enqueue every supported file in a directory",
	Long: `Enqueue every file in a directory whose extension is allowed for
intake. Subdirectories are not scanned.

Example:
  veridoc queue add-dir ./uploads`,
	Args: cobra.ExactArgs(1),
	RunE: runQueueAddDir,
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue counters",
	Args:  cobra.NoArgs,
	RunE:  runQueueStatus,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active and processed queue entries",
	Args:  cobra.NoArgs,
	RunE:  runQueueList,
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry [queue-id]",
	Short: "Reset failed entries to pending",
	Long: `Reset failed entries to pending so the next processing run picks
them up again. Without an argument every failed entry is reset.

With --stale, processing entries older than the given age are also reset.
This recovers entries stranded by a crashed run.

Example:
  veridoc queue retry
  veridoc queue retry QUEUE_00003
  veridoc queue retry --stale 30m`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQueueRetry,
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove queue entries",
	Long: `Remove processed queue entries. With --all, active entries are
removed too; this cannot be undone.

Example:
  veridoc queue clear
  veridoc queue clear --all`,
	Args: cobra.NoArgs,
	RunE: runQueueClear,
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueAddDirCmd)
	queueCmd.AddCommand(queueStatusCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueRetryCmd)
	queueCmd.AddCommand(queueClearCmd)

	queueAddCmd.Flags().IntVar(&queueAddPriority, "priority", 5, "queue priority (lower is served first)")
	queueAddDirCmd.Flags().IntVar(&queueAddPriority, "priority", 5, "queue priority (lower is served first)")
	queueRetryCmd.Flags().DurationVar(&queueRetryStale, "stale", 0, "also reset processing entries older than this age")
	queueClearCmd.Flags().BoolVar(&queueClearAll, "all", false, "remove active entries too")
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}

	entry, err := app.Queue.AddFile(args[0], queueAddPriority, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Enqueued %s as %s (priority %d)\n", args[0], entry.ID, entry.Priority)
	return nil
}

func runQueueAddDir(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}

	entries, err := app.Queue.AddDirectory(args[0], queueAddPriority)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No supported files found")
		return nil
	}
	for _, entry := range entries {
		fmt.Printf("  %s  %s\n", entry.ID, entry.SourcePath)
	}
	fmt.Printf("Enqueued %d files\n", len(entries))
	return nil
}

func runQueueStatus(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}

	stats, err := app.Queue.Status()
	if err != nil {
		return err
	}

	fmt.Printf("Pending:    %d\n", stats.Pending)
	fmt.Printf("Processing: %d\n", stats.Processing)
	fmt.Printf("Failed:     %d\n", stats.Failed)
	fmt.Printf("Active:     %d\n", stats.TotalActive)
	fmt.Printf("Processed:  %d\n", stats.TotalProcessed)
	return nil
}

func runQueueList(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}

	active, processed, err := app.Queue.Entries()
	if err != nil {
		return err
	}

	if len(active) == 0 && len(processed) == 0 {
		fmt.Println("Queue is empty")
		return nil
	}

	fmt.Printf("%-12s %-12s %-10s %-26s %s\n", "QUEUE ID", "STATUS", "PRIORITY", "DOCUMENT", "SOURCE")
	fmt.Println("--------------------------------------------------------------------------------------------")
	for _, entry := range active {
		printQueueEntry(entry)
	}
	for _, entry := range processed {
		printQueueEntry(entry)
	}
	fmt.Printf("\nTotal: %d active, %d processed\n", len(active), len(processed))
	return nil
}

func printQueueEntry(entry models.QueueEntry) {
	document := entry.DocumentID
	if document == "" {
		document = "-"
	}
	fmt.Printf("%-12s %s %-10s %-10d %-26s %s\n",
		entry.ID,
		queueStatusSymbol(entry.Status),
		entry.Status,
		entry.Priority,
		document,
		entry.SourcePath,
	)
}

func queueStatusSymbol(status models.QueueEntryStatus) string {
	switch status {
	case models.QueueStatusCompleted:
		return "✓"
	case models.QueueStatusProcessing:
		return "→"
	case models.QueueStatusFailed:
		return "✗"
	case models.QueueStatusPending:
		return "○"
	case models.QueueStatusSkipped:
		return "⊘"
	default:
		return " "
	}
}

func runQueueRetry(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}

	if queueRetryStale > 0 {
		count, err := app.Queue.RetryStale(queueRetryStale)
		if err != nil {
			return err
		}
		fmt.Printf("Reset %d stale processing entries\n", count)
	}

	queueID := ""
	if len(args) == 1 {
		queueID = args[0]
	}
	if queueID == "" && queueRetryStale > 0 {
		return nil
	}

	count, err := app.Queue.RetryFailed(queueID)
	if err != nil {
		return err
	}
	fmt.Printf("Reset %d failed entries to pending\n", count)
	return nil
}

func runQueueClear(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}

	if queueClearAll {
		if err := app.Queue.Clear(true); err != nil {
			return err
		}
		fmt.Println("Cleared all queue entries")
		return nil
	}

	count, err := app.Queue.ClearProcessed()
	if err != nil {
		return err
	}
	fmt.Printf("Cleared %d processed entries\n", count)
	return nil
}
