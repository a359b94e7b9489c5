package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/veridoc/veridoc/internal/lib"
	"github.com/veridoc/veridoc/internal/models"
	"github.com/veridoc/veridoc/internal/services"
	"github.com/veridoc/veridoc/internal/ui"
)

// ProcessingMode decides how previously completed stages are treated
type ProcessingMode string

const (
	// ModeProcess resumes: stages that already succeeded are skipped
	ModeProcess ProcessingMode = "process"
	// ModeReprocess reruns every stage from scratch
	ModeReprocess ProcessingMode = "reprocess"
)

// ParseProcessingMode validates a mode string from the CLI
func ParseProcessingMode(s string) (ProcessingMode, error) {
	switch ProcessingMode(s) {
	case ModeProcess:
		return ModeProcess, nil
	case ModeReprocess:
		return ModeReprocess, nil
	default:
		return "", fmt.Errorf("unknown processing mode %q (use process or reprocess)", s)
	}
}

// ShouldSkipStage is the resume rule: a stage is skipped only when resuming
// over a prior success. Failed and pending stages always run; reprocess mode
// runs everything.
func ShouldSkipStage(mode ProcessingMode, previous models.StageStatus) bool {
	return mode == ModeProcess && previous == models.StageStatusSuccess
}

// Runner drives queue entries through the document pipeline.
type Runner struct {
	Docs       services.DocumentRepository
	Queue      *services.DocumentQueue
	Classifier services.Classifier
	Extractor  services.Extractor
	Intake     *Intake
	Config     models.ProjectConfig
	Logger     *lib.Logger
}

// NewRunner wires a runner and its intake from a loaded configuration
func NewRunner(config models.ProjectConfig, docs services.DocumentRepository, queue *services.DocumentQueue, renderer services.PageRenderer, classifier services.Classifier, extractor services.Extractor, logger *lib.Logger) *Runner {
	fanOut := &FanOut{
		Docs:     docs,
		Queue:    queue,
		Renderer: renderer,
		MaxPages: config.FanOut.MaxPages,
		Logger:   logger,
	}
	return &Runner{
		Docs:       docs,
		Queue:      queue,
		Classifier: classifier,
		Extractor:  extractor,
		Intake: &Intake{
			Docs:   docs,
			FanOut: fanOut,
			Config: config.Intake,
			Logger: logger,
		},
		Config: config,
		Logger: logger,
	}
}

// ProcessResult reports what happened to one queue entry
type ProcessResult struct {
	Entry    *models.QueueEntry
	Document *models.DocumentRecord
	// ChildrenAdded counts fan-out pages enqueued while processing this entry
	ChildrenAdded int
	Skipped       bool
}

// ProcessNext claims and processes the next pending entry. Returns (nil, nil)
// when the queue is empty. A document whose stages fail does not error the
// call; the failure lives in the entry and the stage blocks. The returned
// error means the pipeline itself could not proceed.
func (r *Runner) ProcessNext(mode ProcessingMode) (*ProcessResult, error) {
	next, err := r.Queue.GetNext()
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, nil
	}

	entry, err := r.Queue.MarkProcessing(next.ID)
	if err != nil {
		return nil, err
	}

	result, procErr := r.processEntry(entry, mode)
	if procErr != nil {
		failed, markErr := r.Queue.MarkFailed(entry.ID, procErr.Error())
		if markErr != nil {
			return nil, markErr
		}
		result.Entry = failed
		return result, nil
	}
	return result, nil
}

// processEntry runs intake and the remaining stages for one claimed entry,
// then settles the entry. A returned error leaves the entry for the caller
// to mark failed.
func (r *Runner) processEntry(entry *models.QueueEntry, mode ProcessingMode) (*ProcessResult, error) {
	result := &ProcessResult{Entry: entry}

	outcome, err := r.Intake.Run(entry)
	if err != nil {
		if outcome != nil {
			result.Document = outcome.Document
		}
		return result, err
	}
	doc := outcome.Document
	result.Document = doc

	if doc.IsSplitParent() {
		result.ChildrenAdded = len(doc.ChildDocumentIDs)
	}

	// An identical file already fully processed needs no work when resuming
	if outcome.Duplicate && mode == ModeProcess {
		status := doc.DeriveStatus()
		if status == models.DocumentStatusCompleted || status == models.DocumentStatusRequiresReview {
			skipped, err := r.Queue.MarkSkipped(entry.ID)
			if err != nil {
				return result, err
			}
			result.Entry = skipped
			result.Skipped = true
			return result, nil
		}
	}

	doc, stageErr := r.runStages(doc, mode)
	result.Document = doc

	if stageErr != nil {
		failed, err := r.Queue.MarkFailed(entry.ID, stageErr.Error())
		if err != nil {
			return result, err
		}
		result.Entry = failed
		return result, nil
	}

	completed, err := r.Queue.MarkCompleted(entry.ID, doc.DocumentID)
	if err != nil {
		return result, err
	}
	result.Entry = completed
	return result, nil
}

// runStages executes classification and extraction in order, honoring the
// resume rule. The first stage failure ends the run: a later stage cannot
// build on a missing result. Returns the stage error without wrapping so the
// entry records the root cause.
func (r *Runner) runStages(doc *models.DocumentRecord, mode ProcessingMode) (*models.DocumentRecord, error) {
	if intake := doc.Stage(models.StageIntake); intake.Status != models.StageStatusSuccess {
		if intake.Error != "" {
			return doc, fmt.Errorf("intake failed for %s: %s", doc.DocumentID, intake.Error)
		}
		return doc, fmt.Errorf("intake has not succeeded for %s", doc.DocumentID)
	}

	// A split parent's results live on its pages
	if doc.IsSplitParent() {
		return doc, nil
	}

	for _, stage := range []models.StageName{models.StageClassification, models.StageExtraction} {
		block := doc.Stage(stage)

		if ShouldSkipStage(mode, block.Status) {
			lib.LogStageSkipped(r.Logger, string(stage), doc.DocumentID)
			continue
		}
		if block.Status == models.StageStatusSkipped && mode == ModeProcess {
			lib.LogStageSkipped(r.Logger, string(stage), doc.DocumentID)
			continue
		}
		if block.Status == models.StageStatusFail &&
			!lib.StageRetryEligible(block.Status, block.RetryCount, r.Config.Retry.MaxStageRetries) {
			r.Logger.Warn("Stage exhausted its retries",
				"stage", stage, "document_id", doc.DocumentID, "retry_count", block.RetryCount)
			return doc, fmt.Errorf("stage %s exhausted %d retries: %s", stage, block.RetryCount, block.Error)
		}

		updated, err := r.runStage(doc, stage)
		doc = updated
		if err != nil {
			return doc, err
		}
	}
	return doc, nil
}

// runStage executes one capability-backed stage and records the outcome
func (r *Runner) runStage(doc *models.DocumentRecord, stage models.StageName) (*models.DocumentRecord, error) {
	lib.LogStageStart(r.Logger, string(stage), doc.DocumentID)
	start := time.Now()

	doc, err := r.Docs.UpdateStage(doc.DocumentID, stage, services.StageUpdate{
		Status: models.StageStatusRunning,
	})
	if err != nil {
		return doc, err
	}

	var message string
	var data map[string]any
	var stageErr error

	switch stage {
	case models.StageClassification:
		message, data, stageErr = r.classify(doc)
	case models.StageExtraction:
		message, data, stageErr = r.extract(doc)
	default:
		stageErr = fmt.Errorf("stage %s has no executor", stage)
	}

	if stageErr != nil {
		failed, recordErr := r.Docs.UpdateStage(doc.DocumentID, stage, services.StageUpdate{
			Status: models.StageStatusFail,
			Error:  stageErr.Error(),
			Trace:  errorTrace(stageErr),
		})
		if recordErr != nil {
			return doc, recordErr
		}
		lib.LogStageFailed(r.Logger, string(stage), doc.DocumentID, stageErr, failed.Stage(stage).RetryCount)
		return failed, stageErr
	}

	doc, err = r.Docs.UpdateStage(doc.DocumentID, stage, services.StageUpdate{
		Status:  models.StageStatusSuccess,
		Message: message,
		Data:    data,
	})
	if err != nil {
		return doc, err
	}
	lib.LogStageComplete(r.Logger, string(stage), doc.DocumentID, time.Since(start))
	return doc, nil
}

// classify calls the classification capability and flags low-confidence
// results for review
func (r *Runner) classify(doc *models.DocumentRecord) (string, map[string]any, error) {
	result, err := r.Classifier.Classify(doc.StoredPath)
	if err != nil {
		return "", nil, err
	}

	if result.Confidence < r.Config.Review.MinClassificationConfidence {
		reason := fmt.Sprintf("classification confidence %.2f below threshold %.2f",
			result.Confidence, r.Config.Review.MinClassificationConfidence)
		if _, err := r.Docs.FlagForReview(doc.DocumentID, reason); err != nil {
			return "", nil, err
		}
		r.Logger.Warn("Low classification confidence, flagged for review",
			"document_id", doc.DocumentID, "confidence", result.Confidence)
	}

	data := map[string]any{
		"document_type": result.DocumentType,
		"confidence":    result.Confidence,
	}
	if len(result.Categories) > 0 {
		data["categories"] = result.Categories
	}
	return fmt.Sprintf("classified as %s", result.DocumentType), data, nil
}

// extract calls the extraction capability with the classified document type
func (r *Runner) extract(doc *models.DocumentRecord) (string, map[string]any, error) {
	docType, _ := doc.Stage(models.StageClassification).Data["document_type"].(string)

	result, err := r.Extractor.Extract(doc.StoredPath, docType)
	if err != nil {
		return "", nil, err
	}

	data := map[string]any{
		"extracted_fields": result.Fields,
		"confidence":       result.Confidence,
	}
	return fmt.Sprintf("extracted %d fields", len(result.Fields)), data, nil
}

// DrainStats summarizes one drain run
type DrainStats struct {
	Processed int
	Completed int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

// Drain processes entries until the queue has no pending work, showing
// progress. Fan-out grows the bar mid-run. Per-entry failures are counted,
// not fatal; the drain keeps going so one bad file never blocks the rest.
func (r *Runner) Drain(mode ProcessingMode, showProgress bool) (*DrainStats, error) {
	stats := &DrainStats{}
	start := time.Now()

	queueStats, err := r.Queue.Status()
	if err != nil {
		return nil, err
	}
	var bar *ui.DrainBar
	if showProgress {
		bar = ui.NewDrainBar(int64(queueStats.Pending))
		defer func() { _ = bar.Finish() }()
	}

	for {
		result, err := r.ProcessNext(mode)
		if err != nil {
			return stats, err
		}
		if result == nil {
			break
		}

		stats.Processed++
		switch result.Entry.Status {
		case models.QueueStatusCompleted:
			stats.Completed++
		case models.QueueStatusFailed:
			stats.Failed++
		case models.QueueStatusSkipped:
			stats.Skipped++
		}

		if bar != nil {
			if result.ChildrenAdded > 0 {
				bar.GrowTotal(int64(result.ChildrenAdded))
			}
			_ = bar.Advance()
		}
	}

	stats.Duration = time.Since(start)
	r.Logger.Info("Queue drained",
		"processed", stats.Processed,
		"completed", stats.Completed,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"duration", stats.Duration.Round(time.Millisecond))
	return stats, nil
}

// errorTrace extracts guidance detail from pipeline errors for the stage
// trace field
func errorTrace(err error) string {
	var perr *lib.PipelineError
	if errors.As(err, &perr) {
		return perr.UserMessage()
	}
	return ""
}
