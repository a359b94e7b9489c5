package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentRecord is the durable record for one physical file, either an
// original upload or a page derived from a PDF parent.
type DocumentRecord struct {
	DocumentID       string    `json:"document_id"`
	OriginalFilename string    `json:"original_filename"`
	StoredPath       string    `json:"stored_path"`
	Extension        string    `json:"extension"`
	SizeBytes        int64     `json:"size_bytes"`
	ContentHash      string    `json:"content_hash"`
	ParentDocumentID string    `json:"parent_document_id,omitempty"` // set only on PDF-derived pages
	ChildDocumentIDs []string  `json:"child_document_ids,omitempty"` // set only on PDF parents, page order
	PageNumber       int       `json:"page_number,omitempty"`
	TotalPages       int       `json:"total_pages,omitempty"`
	SkippedPages     int       `json:"skipped_pages,omitempty"` // pages dropped by the fan-out page ceiling
	StageBlocks      map[StageName]StageBlock `json:"stage_blocks"`
	CurrentStage     StageName `json:"current_stage,omitempty"` // highest stage that reached success
	CaseLinks        []string  `json:"case_links,omitempty"`
	RequiresReview   bool      `json:"requires_review,omitempty"`
	ReviewReason     string    `json:"review_reason,omitempty"`
	LastError        string    `json:"last_error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// StageName identifies one phase of the document pipeline
type StageName string

const (
	StageIntake         StageName = "intake"
	StageClassification StageName = "classification"
	StageExtraction     StageName = "extraction"
)

// StageOrder returns the pipeline stages in execution order
func StageOrder() []StageName {
	return []StageName{StageIntake, StageClassification, StageExtraction}
}

// Prerequisite returns the stage that must complete before the given stage,
// or empty for the first stage
func Prerequisite(stage StageName) StageName {
	switch stage {
	case StageClassification:
		return StageIntake
	case StageExtraction:
		return StageClassification
	default:
		return ""
	}
}

// IsValidStageName checks if the stage name is recognized
func IsValidStageName(name StageName) bool {
	switch name {
	case StageIntake, StageClassification, StageExtraction:
		return true
	default:
		return false
	}
}

// StageStatus defines the execution state of one stage block
type StageStatus string

const (
	StageStatusPending StageStatus = "pending"
	StageStatusRunning StageStatus = "running"
	StageStatusSuccess StageStatus = "success"
	StageStatusFail    StageStatus = "fail"
	StageStatusSkipped StageStatus = "skipped"
)

// IsValidStageStatus checks if the stage status is recognized
func IsValidStageStatus(s StageStatus) bool {
	switch s {
	case StageStatusPending, StageStatusRunning, StageStatusSuccess, StageStatusFail, StageStatusSkipped:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status ends a stage attempt
func (s StageStatus) IsTerminal() bool {
	return s == StageStatusSuccess || s == StageStatusFail || s == StageStatusSkipped
}

// CanTransitionTo checks if a stage status transition is valid
// Valid transitions:
//
//	pending -> running | skipped
//	running -> success | fail
//	fail    -> running | pending (retry reset)
//	success -> running (reprocess mode)
//	skipped -> running (reprocess mode)
func (s StageStatus) CanTransitionTo(next StageStatus) bool {
	switch s {
	case StageStatusPending:
		return next == StageStatusRunning || next == StageStatusSkipped
	case StageStatusRunning:
		return next == StageStatusSuccess || next == StageStatusFail
	case StageStatusFail:
		return next == StageStatusRunning || next == StageStatusPending
	case StageStatusSuccess, StageStatusSkipped:
		return next == StageStatusRunning
	default:
		return false
	}
}

// StageBlock records the outcome of one pipeline stage for one document
type StageBlock struct {
	Status      StageStatus    `json:"status"`
	Message     string         `json:"message,omitempty"`
	Error       string         `json:"error,omitempty"`
	Trace       string         `json:"trace,omitempty"`
	Timestamp   *time.Time     `json:"timestamp,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	RetryCount  int            `json:"retry_count"`
	Data        map[string]any `json:"data,omitempty"`
}

// NewDocumentID generates a globally unique, time-ordered document ID.
// Format: DOC_YYYYMMDD_HHMMSS_XXXXX (e.g. DOC_20260830_143022_A3F8B)
func NewDocumentID() string {
	timestamp := time.Now().Format("20060102_150405")
	suffix := strings.ToUpper(uuid.New().String()[:5])
	return fmt.Sprintf("DOC_%s_%s", timestamp, suffix)
}

// NewStageBlocks returns the initial stage map with every stage pending
func NewStageBlocks() map[StageName]StageBlock {
	blocks := make(map[StageName]StageBlock, len(StageOrder()))
	for _, name := range StageOrder() {
		blocks[name] = StageBlock{Status: StageStatusPending}
	}
	return blocks
}

// Stage returns the block for a stage, defaulting to a pending block when the
// record predates the stage
func (d *DocumentRecord) Stage(name StageName) StageBlock {
	if block, ok := d.StageBlocks[name]; ok {
		return block
	}
	return StageBlock{Status: StageStatusPending}
}

// IsPDF reports whether the stored file is a PDF container
func (d *DocumentRecord) IsPDF() bool {
	return strings.EqualFold(d.Extension, ".pdf")
}

// IsChild reports whether the document was derived from a PDF parent
func (d *DocumentRecord) IsChild() bool {
	return d.ParentDocumentID != ""
}

// IsSplitParent reports whether the document has been fanned out into pages
func (d *DocumentRecord) IsSplitParent() bool {
	return len(d.ChildDocumentIDs) > 0
}

// LinkedToCase reports whether the document is already linked to the case
func (d *DocumentRecord) LinkedToCase(caseID string) bool {
	for _, id := range d.CaseLinks {
		if id == caseID {
			return true
		}
	}
	return false
}

// DocumentStatus is the derived overall status of a document. It is computed
// for reporting and never persisted as a single field.
type DocumentStatus string

const (
	DocumentStatusCompleted      DocumentStatus = "completed"
	DocumentStatusFailed         DocumentStatus = "failed"
	DocumentStatusPartial        DocumentStatus = "partial"
	DocumentStatusRequiresReview DocumentStatus = "requires_review"
)

// DeriveStatus computes the overall document status from the stage blocks:
// completed iff all three stages succeeded, failed iff every attempted stage
// failed, otherwise partial. A review flag elevates completed to
// requires_review.
func (d *DocumentRecord) DeriveStatus() DocumentStatus {
	successes, fails, attempted := 0, 0, 0
	for _, name := range StageOrder() {
		block := d.Stage(name)
		switch block.Status {
		case StageStatusSuccess:
			successes++
			attempted++
		case StageStatusFail:
			fails++
			attempted++
		case StageStatusRunning:
			attempted++
		}
	}

	if successes == len(StageOrder()) {
		if d.RequiresReview {
			return DocumentStatusRequiresReview
		}
		return DocumentStatusCompleted
	}
	if attempted > 0 && fails == attempted {
		return DocumentStatusFailed
	}
	return DocumentStatusPartial
}
