package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/internal/models"
)

// TestParseProcessingMode validates the CLI mode strings
func TestParseProcessingMode(t *testing.T) {
	mode, err := ParseProcessingMode("process")
	require.NoError(t, err)
	assert.Equal(t, ModeProcess, mode)

	mode, err = ParseProcessingMode("reprocess")
	require.NoError(t, err)
	assert.Equal(t, ModeReprocess, mode)

	_, err = ParseProcessingMode("redo")
	require.Error(t, err)
}

// TestShouldSkipStage encodes the resume rule
func TestShouldSkipStage(t *testing.T) {
	tests := []struct {
		mode     ProcessingMode
		previous models.StageStatus
		skip     bool
	}{
		{ModeProcess, models.StageStatusSuccess, true},
		{ModeProcess, models.StageStatusFail, false},
		{ModeProcess, models.StageStatusPending, false},
		{ModeReprocess, models.StageStatusSuccess, false},
		{ModeReprocess, models.StageStatusFail, false},
	}
	for _, tt := range tests {
		got := ShouldSkipStage(tt.mode, tt.previous)
		assert.Equal(t, tt.skip, got, "mode=%s previous=%s", tt.mode, tt.previous)
	}
}

// TestRunner_EmptyQueue verifies an empty queue is not an error
func TestRunner_EmptyQueue(t *testing.T) {
	p := newTestPipeline(t)

	result, err := p.runner.ProcessNext(ModeProcess)
	require.NoError(t, err)
	assert.Nil(t, result)
}

// TestRunner_ImageHappyPath drives one flat file through every stage
func TestRunner_ImageHappyPath(t *testing.T) {
	p := newTestPipeline(t)
	tempDir := t.TempDir()
	path := writeSourceFile(t, tempDir, "passport.jpg", "jpeg bytes")
	p.enqueue(t, path)

	result, err := p.runner.ProcessNext(ModeProcess)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, models.QueueStatusCompleted, result.Entry.Status)
	assert.Equal(t, result.Document.DocumentID, result.Entry.DocumentID)

	doc := result.Document
	assert.Equal(t, models.StageStatusSuccess, doc.Stage(models.StageIntake).Status)
	assert.Equal(t, models.StageStatusSuccess, doc.Stage(models.StageClassification).Status)
	assert.Equal(t, models.StageStatusSuccess, doc.Stage(models.StageExtraction).Status)
	assert.Equal(t, models.DocumentStatusCompleted, doc.DeriveStatus())

	assert.Equal(t, "passport", doc.Stage(models.StageClassification).Data["document_type"])
	fields, ok := doc.Stage(models.StageExtraction).Data["extracted_fields"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "Jane Doe", fields["full_name"])
	assert.False(t, doc.RequiresReview)
}

// TestRunner_LowConfidenceFlagsReview verifies the review threshold. The
// document still completes; review is a flag, not a failure.
func TestRunner_LowConfidenceFlagsReview(t *testing.T) {
	p := newTestPipeline(t)
	p.classifier.result.Confidence = 0.4
	tempDir := t.TempDir()
	p.enqueue(t, writeSourceFile(t, tempDir, "blurry.jpg", "jpeg bytes"))

	result, err := p.runner.ProcessNext(ModeProcess)
	require.NoError(t, err)

	assert.Equal(t, models.QueueStatusCompleted, result.Entry.Status)
	doc, err := p.docs.Get(result.Document.DocumentID)
	require.NoError(t, err)
	assert.True(t, doc.RequiresReview)
	assert.Contains(t, doc.ReviewReason, "confidence")
	assert.Equal(t, models.DocumentStatusRequiresReview, doc.DeriveStatus())
}

// TestRunner_RejectedThenResubmittedUnderAllowedName verifies a rejection
// record does not wedge the same bytes when they come back under an accepted
// extension
func TestRunner_RejectedThenResubmittedUnderAllowedName(t *testing.T) {
	p := newTestPipeline(t)
	tempDir := t.TempDir()

	p.enqueue(t, writeSourceFile(t, tempDir, "scan.bmp", "bitmap bytes"))
	result, err := p.runner.ProcessNext(ModeProcess)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, models.QueueStatusFailed, result.Entry.Status)
	rejectedID := result.Document.DocumentID

	// Same bytes under an allowed extension, the natural remediation
	p.enqueue(t, writeSourceFile(t, tempDir, "scan.jpg", "bitmap bytes"))
	result, err = p.runner.ProcessNext(ModeProcess)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, models.QueueStatusCompleted, result.Entry.Status)
	assert.Equal(t, rejectedID, result.Document.DocumentID,
		"the rejection record is re-admitted, not duplicated")

	doc, err := p.docs.Get(rejectedID)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusSuccess, doc.Stage(models.StageIntake).Status)
	assert.Equal(t, models.DocumentStatusCompleted, doc.DeriveStatus())
}

// TestRunner_ClassifierFailure verifies a stage failure lands on the entry
// and the stage block, not as a pipeline error
func TestRunner_ClassifierFailure(t *testing.T) {
	p := newTestPipeline(t)
	p.classifier.err = errors.New("capability returned 503")
	tempDir := t.TempDir()
	p.enqueue(t, writeSourceFile(t, tempDir, "id.jpg", "jpeg bytes"))

	result, err := p.runner.ProcessNext(ModeProcess)
	require.NoError(t, err, "a document failure is not a pipeline failure")
	require.NotNil(t, result)

	assert.Equal(t, models.QueueStatusFailed, result.Entry.Status)
	assert.Contains(t, result.Entry.Error, "503")

	doc, err := p.docs.Get(result.Document.DocumentID)
	require.NoError(t, err)
	block := doc.Stage(models.StageClassification)
	assert.Equal(t, models.StageStatusFail, block.Status)
	assert.Equal(t, 1, block.RetryCount)
	assert.Equal(t, models.StageStatusPending, doc.Stage(models.StageExtraction).Status,
		"extraction never ran without a classification")
	assert.Equal(t, 0, p.extractor.calls)
}

// TestRunner_ResumeSkipsSucceededStages verifies the retry path reruns only
// what failed
func TestRunner_ResumeSkipsSucceededStages(t *testing.T) {
	p := newTestPipeline(t)
	p.extractor.err = errors.New("extraction service unavailable")
	tempDir := t.TempDir()
	p.enqueue(t, writeSourceFile(t, tempDir, "id.jpg", "jpeg bytes"))

	result, err := p.runner.ProcessNext(ModeProcess)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, result.Entry.Status)
	assert.Equal(t, 1, p.classifier.calls)

	// Service recovers, operator retries
	p.extractor.err = nil
	count, err := p.queue.RetryFailed("")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	result, err = p.runner.ProcessNext(ModeProcess)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusCompleted, result.Entry.Status)
	assert.Equal(t, 1, p.classifier.calls, "the succeeded classification is not rerun")
	assert.Equal(t, 2, p.extractor.calls)

	doc, err := p.docs.Get(result.Document.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusSuccess, doc.Stage(models.StageExtraction).Status)
}

// TestRunner_RetryExhaustion verifies a stage stops rerunning once its retry
// ceiling is reached
func TestRunner_RetryExhaustion(t *testing.T) {
	p := newTestPipeline(t)
	p.extractor.err = errors.New("permanent failure")
	tempDir := t.TempDir()
	p.enqueue(t, writeSourceFile(t, tempDir, "id.jpg", "jpeg bytes"))

	maxRetries := p.runner.Config.Retry.MaxStageRetries
	for i := 0; i < maxRetries; i++ {
		result, err := p.runner.ProcessNext(ModeProcess)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, models.QueueStatusFailed, result.Entry.Status)
		_, err = p.queue.RetryFailed("")
		require.NoError(t, err)
	}
	assert.Equal(t, maxRetries, p.extractor.calls)

	// The next attempt refuses to run the exhausted stage
	result, err := p.runner.ProcessNext(ModeProcess)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, result.Entry.Status)
	assert.Contains(t, result.Entry.Error, "exhausted")
	assert.Equal(t, maxRetries, p.extractor.calls, "the exhausted stage must not run again")
}

// TestRunner_ReprocessRerunsEverything verifies reprocess mode ignores prior
// successes
func TestRunner_ReprocessRerunsEverything(t *testing.T) {
	p := newTestPipeline(t)
	tempDir := t.TempDir()
	path := writeSourceFile(t, tempDir, "id.jpg", "jpeg bytes")
	p.enqueue(t, path)

	result, err := p.runner.ProcessNext(ModeProcess)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusCompleted, result.Entry.Status)

	// Re-enqueue the same file; dedup finds the completed document
	p.enqueue(t, path)
	result, err = p.runner.ProcessNext(ModeReprocess)
	require.NoError(t, err)

	assert.Equal(t, models.QueueStatusCompleted, result.Entry.Status)
	assert.Equal(t, 2, p.classifier.calls)
	assert.Equal(t, 2, p.extractor.calls)
}

// TestRunner_DuplicateSkippedWhenResuming verifies a fully processed
// duplicate is skipped, not reprocessed
func TestRunner_DuplicateSkippedWhenResuming(t *testing.T) {
	p := newTestPipeline(t)
	tempDir := t.TempDir()
	path := writeSourceFile(t, tempDir, "id.jpg", "jpeg bytes")
	p.enqueue(t, path)

	_, err := p.runner.ProcessNext(ModeProcess)
	require.NoError(t, err)

	p.enqueue(t, path)
	result, err := p.runner.ProcessNext(ModeProcess)
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.Equal(t, models.QueueStatusSkipped, result.Entry.Status)
	assert.Equal(t, 1, p.classifier.calls)
}

// TestRunner_DrainPDF drives a two-page PDF end to end: the parent fans out
// during its own processing and the drain picks the pages up in the same run
func TestRunner_DrainPDF(t *testing.T) {
	p := newTestPipeline(t)
	p.renderer.pages = 2
	tempDir := t.TempDir()
	p.enqueue(t, writeSourceFile(t, tempDir, "contract.pdf", "%PDF-1.4 two pages"))

	stats, err := p.runner.Drain(ModeProcess, false)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Processed, "parent plus two pages")
	assert.Equal(t, 3, stats.Completed)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 2, p.classifier.calls, "only pages classify")
	assert.Equal(t, 2, p.extractor.calls)

	docs, err := p.docs.List()
	require.NoError(t, err)
	require.Len(t, docs, 3)

	var parent *models.DocumentRecord
	children := 0
	for i := range docs {
		if docs[i].IsSplitParent() {
			parent = &docs[i]
		}
		if docs[i].IsChild() {
			children++
			assert.Equal(t, models.DocumentStatusCompleted, docs[i].DeriveStatus())
		}
	}
	require.NotNil(t, parent)
	assert.Equal(t, 2, children)
	assert.Equal(t, models.StageStatusSkipped, parent.Stage(models.StageClassification).Status)

	_, processed, err := p.queue.Entries()
	require.NoError(t, err)
	assert.Len(t, processed, 3, "every entry settled")
}

// TestRunner_DrainCountsFailures verifies one bad document never stops the
// drain
func TestRunner_DrainCountsFailures(t *testing.T) {
	p := newTestPipeline(t)
	tempDir := t.TempDir()
	p.enqueue(t, writeSourceFile(t, tempDir, "good.jpg", "good bytes"))
	p.enqueue(t, writeSourceFile(t, tempDir, "bad.txt", "not a document"))
	p.enqueue(t, writeSourceFile(t, tempDir, "also_good.jpg", "more bytes"))

	stats, err := p.runner.Drain(ModeProcess, false)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
}
