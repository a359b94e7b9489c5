package models

import (
	"fmt"
	"strings"
)

// Validate checks a DocumentRecord for structural integrity before it is
// persisted or after it is loaded from disk
func (d *DocumentRecord) Validate() error {
	if d.DocumentID == "" {
		return fmt.Errorf("document_id is required")
	}
	if !strings.HasPrefix(d.DocumentID, "DOC_") {
		return fmt.Errorf("document_id %q must carry the DOC_ prefix", d.DocumentID)
	}
	if d.StoredPath == "" {
		return fmt.Errorf("stored_path is required")
	}
	if d.ContentHash == "" {
		return fmt.Errorf("content_hash is required")
	}
	if d.StageBlocks == nil {
		return fmt.Errorf("stage_blocks are required")
	}
	for name, block := range d.StageBlocks {
		if !IsValidStageName(name) {
			return fmt.Errorf("unknown stage name: %s", name)
		}
		if !IsValidStageStatus(block.Status) {
			return fmt.Errorf("stage %s has invalid status: %s", name, block.Status)
		}
		if block.RetryCount < 0 {
			return fmt.Errorf("stage %s has negative retry_count", name)
		}
	}
	if d.CurrentStage != "" && !IsValidStageName(d.CurrentStage) {
		return fmt.Errorf("invalid current_stage: %s", d.CurrentStage)
	}

	// Lineage constraints: pages point at a parent and carry a page number;
	// parents never do.
	if d.ParentDocumentID != "" {
		if d.PageNumber <= 0 {
			return fmt.Errorf("child document %s must have page_number >= 1", d.DocumentID)
		}
		if d.TotalPages < d.PageNumber {
			return fmt.Errorf("child document %s has page_number %d beyond total_pages %d",
				d.DocumentID, d.PageNumber, d.TotalPages)
		}
		if len(d.ChildDocumentIDs) > 0 {
			return fmt.Errorf("child document %s cannot itself have children", d.DocumentID)
		}
	}

	// A fanned-out parent never carries real classification or extraction
	// results; both blocks stay skipped for good.
	if len(d.ChildDocumentIDs) > 0 {
		for _, stage := range []StageName{StageClassification, StageExtraction} {
			if status := d.Stage(stage).Status; status != StageStatusSkipped {
				return fmt.Errorf("split parent %s must keep %s skipped, got %s", d.DocumentID, stage, status)
			}
		}
	}
	return nil
}

// Validate checks a QueueEntry for structural integrity
func (e *QueueEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("queue entry id is required")
	}
	if !strings.HasPrefix(e.ID, queueIDPrefix) {
		return fmt.Errorf("queue entry id %q must carry the %s prefix", e.ID, queueIDPrefix)
	}
	if e.SourcePath == "" && e.DocumentID == "" {
		return fmt.Errorf("queue entry %s needs a source_path or document_id", e.ID)
	}
	if !IsValidSourceType(e.SourceType) {
		return fmt.Errorf("queue entry %s has invalid source_type: %s", e.ID, e.SourceType)
	}
	if !IsValidQueueEntryStatus(e.Status) {
		return fmt.Errorf("queue entry %s has invalid status: %s", e.ID, e.Status)
	}
	if e.CreatedAt.IsZero() {
		return fmt.Errorf("queue entry %s is missing created_at", e.ID)
	}
	return nil
}

// Validate checks a CaseRecord for structural integrity
func (c *CaseRecord) Validate() error {
	if c.CaseID == "" {
		return fmt.Errorf("case_id is required")
	}
	if c.Status != CaseStatusActive && c.Status != CaseStatusClosed {
		return fmt.Errorf("case %s has invalid status: %s", c.CaseID, c.Status)
	}
	seen := make(map[string]bool, len(c.Documents))
	for _, id := range c.Documents {
		if seen[id] {
			return fmt.Errorf("case %s links document %s more than once", c.CaseID, id)
		}
		seen[id] = true
	}
	return nil
}
