package pipeline

import (
	"fmt"
	"os"

	"github.com/veridoc/veridoc/internal/lib"
	"github.com/veridoc/veridoc/internal/models"
	"github.com/veridoc/veridoc/internal/services"
)

// FanOut splits a PDF parent into per-page child documents and enqueues them.
type FanOut struct {
	Docs     services.DocumentRepository
	Queue    *services.DocumentQueue
	Renderer services.PageRenderer
	MaxPages int
	Logger   *lib.Logger
}

// Split fans a PDF parent out into one child document per page, up to the
// page ceiling. Children are created with intake already succeeded, since
// their bytes come from a parent that passed intake, and are enqueued at
// child priority. The parent keeps classification and extraction skipped for
// good; its pages carry the real results.
//
// Calling Split on an already-split parent returns the existing children
// without creating anything.
func (f *FanOut) Split(parent *models.DocumentRecord) ([]models.DocumentRecord, error) {
	if !parent.IsPDF() {
		return nil, lib.WrapError(lib.CategoryConversion,
			fmt.Sprintf("document %s is not a PDF container", parent.DocumentID), nil)
	}
	if parent.IsChild() {
		return nil, lib.WrapError(lib.CategoryConversion,
			fmt.Sprintf("document %s is a page, pages are never split again", parent.DocumentID), nil)
	}

	if parent.IsSplitParent() {
		return f.existingChildren(parent)
	}

	totalPages, err := f.Renderer.PageCount(parent.StoredPath)
	if err != nil {
		return nil, lib.ErrConversionFailed(parent.DocumentID, err)
	}

	pageDir, err := os.MkdirTemp("", "veridoc-pages-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create page dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(pageDir) }()

	rendered, err := f.Renderer.RenderPages(parent.StoredPath, pageDir, f.MaxPages)
	if err != nil {
		return nil, lib.ErrConversionFailed(parent.DocumentID, err)
	}

	children := make([]models.DocumentRecord, 0, len(rendered))
	for _, page := range rendered {
		child, err := f.createChild(parent, page, totalPages)
		if err != nil {
			return nil, err
		}
		children = append(children, *child)
	}

	if err := f.updateParent(parent, children, totalPages); err != nil {
		return nil, err
	}

	if _, err := f.Queue.AddChildDocuments(parent.DocumentID, children); err != nil {
		return nil, fmt.Errorf("pages created but enqueue failed: %w", err)
	}

	skipped := totalPages - len(rendered)
	f.Logger.Info("Fanned out PDF into pages",
		"document_id", parent.DocumentID,
		"total_pages", totalPages,
		"created", len(children),
		"skipped_pages", skipped)
	return children, nil
}

// createChild stores one page as a document with intake pre-succeeded
func (f *FanOut) createChild(parent *models.DocumentRecord, page services.RenderedPage, totalPages int) (*models.DocumentRecord, error) {
	child, err := f.Docs.Create(page.Path, services.CreateOptions{
		OriginalFilename: fmt.Sprintf("%s_page_%d.pdf", parent.DocumentID, page.PageNumber),
		ParentDocumentID: parent.DocumentID,
		PageNumber:       page.PageNumber,
		TotalPages:       totalPages,
	})
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page.PageNumber, err)
	}

	if _, err := f.Docs.UpdateStage(child.DocumentID, models.StageIntake, services.StageUpdate{
		Status: models.StageStatusRunning,
	}); err != nil {
		return nil, err
	}
	return f.Docs.UpdateStage(child.DocumentID, models.StageIntake, services.StageUpdate{
		Status:  models.StageStatusSuccess,
		Message: fmt.Sprintf("page %d of %d from %s", page.PageNumber, totalPages, parent.DocumentID),
		Data: map[string]any{
			"parent_document_id": parent.DocumentID,
			"page_number":        page.PageNumber,
			"total_pages":        totalPages,
		},
	})
}

// updateParent records the lineage and retires the parent's remaining stages
// in a single save
func (f *FanOut) updateParent(parent *models.DocumentRecord, children []models.DocumentRecord, totalPages int) error {
	current, err := f.Docs.Get(parent.DocumentID)
	if err != nil {
		return err
	}

	updated := *current
	updated.TotalPages = totalPages
	updated.SkippedPages = totalPages - len(children)
	updated.ChildDocumentIDs = make([]string, 0, len(children))
	for _, child := range children {
		updated.ChildDocumentIDs = append(updated.ChildDocumentIDs, child.DocumentID)
	}
	for _, stage := range []models.StageName{models.StageClassification, models.StageExtraction} {
		updated = models.WithStage(updated, stage,
			models.SkipStage(updated.Stage(stage), "handled by page documents"))
	}

	if err := f.Docs.Save(&updated); err != nil {
		return err
	}
	*parent = updated
	return nil
}

// existingChildren loads the children of an already-split parent
func (f *FanOut) existingChildren(parent *models.DocumentRecord) ([]models.DocumentRecord, error) {
	children := make([]models.DocumentRecord, 0, len(parent.ChildDocumentIDs))
	for _, id := range parent.ChildDocumentIDs {
		child, err := f.Docs.Get(id)
		if err != nil {
			return nil, err
		}
		children = append(children, *child)
	}
	f.Logger.Debug("Parent already split, reusing pages",
		"document_id", parent.DocumentID, "pages", len(children))
	return children, nil
}
