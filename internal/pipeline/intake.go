package pipeline

import (
	"errors"
	"fmt"

	"github.com/veridoc/veridoc/internal/lib"
	"github.com/veridoc/veridoc/internal/models"
	"github.com/veridoc/veridoc/internal/services"
)

// Intake admits files into managed storage: validation, dedup by content
// hash, and PDF fan-out.
type Intake struct {
	Docs   services.DocumentRepository
	FanOut *FanOut
	Config models.IntakeConfig
	Logger *lib.Logger
}

// IntakeOutcome reports what intake did with an entry
type IntakeOutcome struct {
	Document  *models.DocumentRecord
	Duplicate bool // an identical file was already stored; Document is the existing record
}

// Run performs intake for one queue entry. Entries born from a fan-out
// already carry a document whose intake succeeded, so they pass straight
// through.
//
// Validation failures past the existence check still leave a document record
// behind, with intake failed, so the rejection is inspectable later.
func (in *Intake) Run(entry *models.QueueEntry) (*IntakeOutcome, error) {
	if entry.SourceType == models.SourceChildCreation && entry.DocumentID != "" {
		doc, err := in.Docs.Get(entry.DocumentID)
		if err != nil {
			return nil, err
		}
		return &IntakeOutcome{Document: doc}, nil
	}

	if err := lib.ValidateIntakeFile(entry.SourcePath, in.Config); err != nil {
		var perr *lib.PipelineError
		if errors.As(err, &perr) && perr.Category == lib.CategoryNotFound {
			// Nothing to record a failure on
			return nil, err
		}
		doc, recordErr := in.recordRejection(entry, err)
		if recordErr != nil {
			return nil, recordErr
		}
		return &IntakeOutcome{Document: doc}, err
	}

	hash, err := services.HashFile(entry.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to hash file: %w", err)
	}
	if existing, err := in.Docs.FindByHash(hash); err != nil {
		return nil, err
	} else if existing != nil {
		if existing.Stage(models.StageIntake).Status == models.StageStatusSuccess {
			in.Logger.Info("Duplicate file detected, reusing document",
				"document_id", existing.DocumentID, "path", entry.SourcePath)
			return &IntakeOutcome{Document: existing, Duplicate: true}, nil
		}
		// Same bytes as a record whose intake never succeeded, typically a
		// rejected submission resubmitted under an allowed name. Admit that
		// record instead of leaving it wedged on the old failure.
		in.Logger.Info("Re-admitting previously rejected document",
			"document_id", existing.DocumentID, "path", entry.SourcePath)
		outcome, err := in.admit(existing)
		if outcome != nil {
			outcome.Duplicate = true
		}
		return outcome, err
	}

	doc, err := in.Docs.Create(entry.SourcePath, services.CreateOptions{})
	if err != nil {
		return nil, err
	}
	return in.admit(doc)
}

// admit runs the intake stage on a stored record, fanning PDFs out into
// pages
func (in *Intake) admit(doc *models.DocumentRecord) (*IntakeOutcome, error) {
	if doc.Stage(models.StageIntake).Status != models.StageStatusRunning {
		updated, err := in.Docs.UpdateStage(doc.DocumentID, models.StageIntake, services.StageUpdate{
			Status: models.StageStatusRunning,
		})
		if err != nil {
			return nil, err
		}
		doc = updated
	}

	if doc.IsPDF() {
		return in.admitPDF(doc)
	}

	doc, err := in.Docs.UpdateStage(doc.DocumentID, models.StageIntake, services.StageUpdate{
		Status:  models.StageStatusSuccess,
		Message: "file stored",
		Data: map[string]any{
			"original_filename": doc.OriginalFilename,
			"size_bytes":        doc.SizeBytes,
			"content_hash":      doc.ContentHash,
		},
	})
	if err != nil {
		return nil, err
	}
	return &IntakeOutcome{Document: doc}, nil
}

// admitPDF fans the container out into pages before closing intake. A failed
// fan-out fails intake: a PDF whose pages cannot be produced was never
// admitted.
func (in *Intake) admitPDF(doc *models.DocumentRecord) (*IntakeOutcome, error) {
	children, err := in.FanOut.Split(doc)
	if err != nil {
		failed, recordErr := in.Docs.UpdateStage(doc.DocumentID, models.StageIntake, services.StageUpdate{
			Status: models.StageStatusFail,
			Error:  err.Error(),
		})
		if recordErr != nil {
			return nil, recordErr
		}
		return &IntakeOutcome{Document: failed}, err
	}

	doc, err = in.Docs.UpdateStage(doc.DocumentID, models.StageIntake, services.StageUpdate{
		Status:  models.StageStatusSuccess,
		Message: fmt.Sprintf("PDF stored and fanned out into %d pages", len(children)),
		Data: map[string]any{
			"original_filename": doc.OriginalFilename,
			"size_bytes":        doc.SizeBytes,
			"content_hash":      doc.ContentHash,
			"total_pages":       doc.TotalPages,
			"child_documents":   doc.ChildDocumentIDs,
		},
	})
	if err != nil {
		return nil, err
	}
	return &IntakeOutcome{Document: doc}, nil
}

// recordRejection persists a document record for a file that exists but
// failed validation. Identical bytes already on record reuse that record
// rather than minting a new one per rejected submission.
func (in *Intake) recordRejection(entry *models.QueueEntry, cause error) (*models.DocumentRecord, error) {
	hash, err := services.HashFile(entry.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to hash file: %w", err)
	}
	existing, err := in.Docs.FindByHash(hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	doc, err := in.Docs.Create(entry.SourcePath, services.CreateOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := in.Docs.UpdateStage(doc.DocumentID, models.StageIntake, services.StageUpdate{
		Status: models.StageStatusRunning,
	}); err != nil {
		return nil, err
	}
	return in.Docs.UpdateStage(doc.DocumentID, models.StageIntake, services.StageUpdate{
		Status: models.StageStatusFail,
		Error:  cause.Error(),
	})
}
