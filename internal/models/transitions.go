package models

import "time"

// Pure transition helpers. Each returns a new value instead of mutating its
// input, following the same discipline as the rest of the model layer: the
// caller decides when to persist.

// StartStage marks a stage block running and stamps started_at
func StartStage(block StageBlock) StageBlock {
	now := time.Now()
	block.Status = StageStatusRunning
	block.StartedAt = &now
	block.Timestamp = &now
	block.Error = ""
	block.Trace = ""
	return block
}

// CompleteStage marks a stage block successful and merges result data
// key-by-key; new keys win, prior keys survive.
func CompleteStage(block StageBlock, message string, data map[string]any) StageBlock {
	now := time.Now()
	block.Status = StageStatusSuccess
	block.Message = message
	block.Error = ""
	block.Trace = ""
	block.CompletedAt = &now
	block.Timestamp = &now
	block.Data = MergeStageData(block.Data, data)
	return block
}

// FailStage marks a stage block failed, records the error and trace, and
// increments the retry counter
func FailStage(block StageBlock, errMsg string, trace string) StageBlock {
	now := time.Now()
	block.Status = StageStatusFail
	block.Error = errMsg
	block.Trace = trace
	block.CompletedAt = &now
	block.Timestamp = &now
	block.RetryCount++
	return block
}

// SkipStage marks a stage block skipped with an explanatory message
func SkipStage(block StageBlock, message string) StageBlock {
	now := time.Now()
	block.Status = StageStatusSkipped
	block.Message = message
	block.CompletedAt = &now
	block.Timestamp = &now
	return block
}

// ResetStageForRetry resets a failed stage to pending while preserving the
// retry counter; eligibility is the caller's decision
func ResetStageForRetry(block StageBlock) StageBlock {
	now := time.Now()
	block.Status = StageStatusPending
	block.Error = ""
	block.Trace = ""
	block.Timestamp = &now
	return block
}

// MergeStageData merges src into dst key-by-key without dropping prior keys.
// Returns a new map; neither input is mutated.
func MergeStageData(dst, src map[string]any) map[string]any {
	if len(dst) == 0 && len(src) == 0 {
		return dst
	}
	merged := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		merged[k] = v
	}
	for k, v := range src {
		merged[k] = v
	}
	return merged
}

// WithStage returns a new document with one stage block replaced, the
// updated_at stamp bumped, and current_stage advanced when the block reached
// success
func WithStage(doc DocumentRecord, name StageName, block StageBlock) DocumentRecord {
	blocks := make(map[StageName]StageBlock, len(doc.StageBlocks))
	for k, v := range doc.StageBlocks {
		blocks[k] = v
	}
	blocks[name] = block
	doc.StageBlocks = blocks
	doc.UpdatedAt = time.Now()
	if block.Error != "" {
		doc.LastError = block.Error
	}
	if block.Status == StageStatusSuccess {
		doc.CurrentStage = highestSuccess(doc)
	}
	return doc
}

// highestSuccess finds the latest stage in pipeline order whose block
// succeeded
func highestSuccess(doc DocumentRecord) StageName {
	var highest StageName
	for _, name := range StageOrder() {
		if doc.Stage(name).Status == StageStatusSuccess {
			highest = name
		}
	}
	return highest
}

// WithCaseLink returns a new document with the case ID added to case_links;
// re-linking is a no-op
func WithCaseLink(doc DocumentRecord, caseID string) DocumentRecord {
	if doc.LinkedToCase(caseID) {
		return doc
	}
	links := make([]string, len(doc.CaseLinks), len(doc.CaseLinks)+1)
	copy(links, doc.CaseLinks)
	doc.CaseLinks = append(links, caseID)
	doc.UpdatedAt = time.Now()
	return doc
}

// WithReviewFlag returns a new document flagged for manual review
func WithReviewFlag(doc DocumentRecord, reason string) DocumentRecord {
	doc.RequiresReview = true
	doc.ReviewReason = reason
	doc.UpdatedAt = time.Now()
	return doc
}

// MarkEntryProcessing transitions a queue entry to processing
func MarkEntryProcessing(entry QueueEntry) QueueEntry {
	now := time.Now()
	entry.Status = QueueStatusProcessing
	entry.ProcessingStartedAt = &now
	return entry
}

// MarkEntryCompleted transitions a queue entry to completed with the document
// it produced
func MarkEntryCompleted(entry QueueEntry, documentID string) QueueEntry {
	now := time.Now()
	entry.Status = QueueStatusCompleted
	entry.DocumentID = documentID
	entry.CompletedAt = &now
	return entry
}

// MarkEntryFailed transitions a queue entry to failed; the entry stays in the
// active queue, eligible for retry
func MarkEntryFailed(entry QueueEntry, errMsg string) QueueEntry {
	now := time.Now()
	entry.Status = QueueStatusFailed
	entry.Error = errMsg
	entry.FailedAt = &now
	return entry
}

// MarkEntrySkipped transitions a queue entry to skipped
func MarkEntrySkipped(entry QueueEntry) QueueEntry {
	now := time.Now()
	entry.Status = QueueStatusSkipped
	entry.SkippedAt = &now
	return entry
}

// ResetEntryForRetry returns a failed entry to pending, clearing the error
func ResetEntryForRetry(entry QueueEntry) QueueEntry {
	now := time.Now()
	entry.Status = QueueStatusPending
	entry.Error = ""
	entry.FailedAt = nil
	entry.ProcessingStartedAt = nil
	entry.RetriedAt = &now
	return entry
}
