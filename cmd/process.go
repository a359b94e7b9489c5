package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/veridoc/veridoc/internal/pipeline"
	"github.com/veridoc/veridoc/internal/ui"
)

var (
	processMode  string
	processDrain bool
)

// processCmd represents the process command
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process queued documents through the pipeline",
	Long: `Process queued documents through intake, classification, and
extraction. By default one entry is processed; --drain keeps going until the
queue has no pending work.

Modes:
  process   - resume: stages that already succeeded are skipped (default)
  reprocess - rerun every stage from scratch

PDF uploads fan out into per-page documents during intake; the pages are
enqueued and processed like any other entry.

Example:
  veridoc process
  veridoc process --drain
  veridoc process --drain --mode reprocess`,
	Args: cobra.NoArgs,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVar(&processMode, "mode", string(pipeline.ModeProcess), "processing mode: process or reprocess")
	processCmd.Flags().BoolVar(&processDrain, "drain", false, "process until the queue is empty")
}

func runProcess(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}

	mode, err := pipeline.ParseProcessingMode(processMode)
	if err != nil {
		return err
	}

	runner := app.newRunner()

	if processDrain {
		stats, err := runner.Drain(mode, true)
		if err != nil {
			return err
		}
		fmt.Printf("\nProcessed %d entries in %v: %d completed, %d failed, %d skipped\n",
			stats.Processed, stats.Duration.Round(time.Millisecond),
			stats.Completed, stats.Failed, stats.Skipped)
		if stats.Failed > 0 {
			fmt.Println("Run 'veridoc queue retry' to retry failed entries")
		}
		return nil
	}

	spinner := ui.NewSpinner("Processing next entry")
	spinner.Start()
	result, err := runner.ProcessNext(mode)
	spinner.Stop(err == nil)
	if err != nil {
		return err
	}
	if result == nil {
		fmt.Println("Queue is empty")
		return nil
	}

	fmt.Printf("Entry %s: %s\n", result.Entry.ID, result.Entry.Status)
	if result.Document != nil {
		fmt.Printf("Document %s: %s\n", result.Document.DocumentID, result.Document.DeriveStatus())
		if result.ChildrenAdded > 0 {
			fmt.Printf("Fanned out %d pages; run again or use --drain to process them\n", result.ChildrenAdded)
		}
	}
	if result.Entry.Error != "" {
		fmt.Printf("Error: %s\n", result.Entry.Error)
	}
	return nil
}
