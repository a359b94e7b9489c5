package models

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewDocumentID_Format verifies the DOC_YYYYMMDD_HHMMSS_XXXXX shape and
// uniqueness within a burst
func TestNewDocumentID_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^DOC_\d{8}_\d{6}_[0-9A-F]{5}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewDocumentID()
		assert.Regexp(t, pattern, id)
		assert.False(t, seen[id], "IDs generated in the same second must not collide")
		seen[id] = true
	}
}

// TestStageStatus_CanTransitionTo covers the full status graph
func TestStageStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    StageStatus
		to      StageStatus
		allowed bool
	}{
		{StageStatusPending, StageStatusRunning, true},
		{StageStatusPending, StageStatusSkipped, true},
		{StageStatusPending, StageStatusSuccess, false},
		{StageStatusRunning, StageStatusSuccess, true},
		{StageStatusRunning, StageStatusFail, true},
		{StageStatusRunning, StageStatusSkipped, false},
		{StageStatusFail, StageStatusRunning, true},
		{StageStatusFail, StageStatusPending, true},
		{StageStatusFail, StageStatusSuccess, false},
		{StageStatusSuccess, StageStatusRunning, true},
		{StageStatusSkipped, StageStatusRunning, true},
		{StageStatusSuccess, StageStatusPending, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

// TestDeriveStatus covers the overall status rules
func TestDeriveStatus(t *testing.T) {
	build := func(intake, classification, extraction StageStatus) DocumentRecord {
		return DocumentRecord{
			StageBlocks: map[StageName]StageBlock{
				StageIntake:         {Status: intake},
				StageClassification: {Status: classification},
				StageExtraction:     {Status: extraction},
			},
		}
	}

	t.Run("all success is completed", func(t *testing.T) {
		doc := build(StageStatusSuccess, StageStatusSuccess, StageStatusSuccess)
		assert.Equal(t, DocumentStatusCompleted, doc.DeriveStatus())
	})

	t.Run("review flag elevates completed", func(t *testing.T) {
		doc := build(StageStatusSuccess, StageStatusSuccess, StageStatusSuccess)
		doc.RequiresReview = true
		assert.Equal(t, DocumentStatusRequiresReview, doc.DeriveStatus())
	})

	t.Run("every attempted stage failed is failed", func(t *testing.T) {
		doc := build(StageStatusFail, StageStatusPending, StageStatusPending)
		assert.Equal(t, DocumentStatusFailed, doc.DeriveStatus())
	})

	t.Run("mixed success and failure is partial", func(t *testing.T) {
		doc := build(StageStatusSuccess, StageStatusFail, StageStatusPending)
		assert.Equal(t, DocumentStatusPartial, doc.DeriveStatus())
	})

	t.Run("nothing attempted is partial", func(t *testing.T) {
		doc := build(StageStatusPending, StageStatusPending, StageStatusPending)
		assert.Equal(t, DocumentStatusPartial, doc.DeriveStatus())
	})

	t.Run("split parent stays partial", func(t *testing.T) {
		doc := build(StageStatusSuccess, StageStatusSkipped, StageStatusSkipped)
		assert.Equal(t, DocumentStatusPartial, doc.DeriveStatus())
	})
}

// TestDocumentRecord_Validate_Lineage covers the parent/child constraints
func TestDocumentRecord_Validate_Lineage(t *testing.T) {
	base := DocumentRecord{
		DocumentID:  NewDocumentID(),
		StoredPath:  "/tmp/doc.pdf",
		ContentHash: "abc",
		StageBlocks: NewStageBlocks(),
	}

	t.Run("valid top-level document", func(t *testing.T) {
		doc := base
		require.NoError(t, doc.Validate())
	})

	t.Run("child needs a page number", func(t *testing.T) {
		doc := base
		doc.ParentDocumentID = NewDocumentID()
		assert.Error(t, doc.Validate())

		doc.PageNumber = 2
		doc.TotalPages = 3
		assert.NoError(t, doc.Validate())
	})

	t.Run("page number beyond total pages", func(t *testing.T) {
		doc := base
		doc.ParentDocumentID = NewDocumentID()
		doc.PageNumber = 4
		doc.TotalPages = 3
		assert.Error(t, doc.Validate())
	})

	t.Run("no grandchildren", func(t *testing.T) {
		doc := base
		doc.ParentDocumentID = NewDocumentID()
		doc.PageNumber = 1
		doc.TotalPages = 1
		doc.ChildDocumentIDs = []string{NewDocumentID()}
		assert.Error(t, doc.Validate())
	})

	t.Run("split parent must keep later stages skipped", func(t *testing.T) {
		doc := base
		doc.ChildDocumentIDs = []string{NewDocumentID()}
		assert.Error(t, doc.Validate(), "pending classification on a split parent is invalid")

		doc.StageBlocks = map[StageName]StageBlock{
			StageIntake:         {Status: StageStatusSuccess},
			StageClassification: {Status: StageStatusSkipped},
			StageExtraction:     {Status: StageStatusSkipped},
		}
		assert.NoError(t, doc.Validate())
	})
}
