package services

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/veridoc/veridoc/internal/lib"
)

// RenderedPage is one page produced by splitting a PDF container
type RenderedPage struct {
	PageNumber int
	Path       string
}

// PageRenderer turns a multi-page PDF into per-page files.
type PageRenderer interface {
	PageCount(path string) (int, error)
	// RenderPages writes one single-page file per page into destDir, up to
	// maxPages, in page order. Pages past the ceiling are not rendered.
	RenderPages(path string, destDir string, maxPages int) ([]RenderedPage, error)
}

// PDFCPUSplitter splits PDFs with pdfcpu. The source is optimized first;
// optimization doubles as validation, rejecting corrupt containers before
// any page work starts.
type PDFCPUSplitter struct {
	logger *lib.Logger
}

// NewPDFCPUSplitter creates a pdfcpu-backed page renderer
func NewPDFCPUSplitter(logger *lib.Logger) *PDFCPUSplitter {
	return &PDFCPUSplitter{logger: logger}
}

// PageCount returns the number of pages in the PDF
func (p *PDFCPUSplitter) PageCount(path string) (int, error) {
	count, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read page count: %w", err)
	}
	return count, nil
}

// RenderPages splits the PDF into single-page PDFs named page_<n>.pdf inside
// destDir
func (p *PDFCPUSplitter) RenderPages(path string, destDir string, maxPages int) ([]RenderedPage, error) {
	workDir, err := os.MkdirTemp("", "veridoc-split-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	optimized := filepath.Join(workDir, "optimized.pdf")
	if err := optimizePDF(path, optimized); err != nil {
		return nil, fmt.Errorf("failed to validate PDF: %w", err)
	}

	pageCount, err := api.PageCountFile(optimized)
	if err != nil {
		return nil, fmt.Errorf("failed to read page count: %w", err)
	}
	if err := api.SplitFile(optimized, workDir, 1, nil); err != nil {
		return nil, fmt.Errorf("failed to split PDF: %w", err)
	}

	renderCount := pageCount
	if maxPages > 0 && renderCount > maxPages {
		renderCount = maxPages
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination dir: %w", err)
	}

	pages := make([]RenderedPage, 0, renderCount)
	for i := 1; i <= renderCount; i++ {
		// pdfcpu names split products <base>_<n>.pdf
		splitPath := filepath.Join(workDir, fmt.Sprintf("optimized_%d.pdf", i))
		destPath := filepath.Join(destDir, fmt.Sprintf("page_%d.pdf", i))
		if err := copyFile(splitPath, destPath); err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, RenderedPage{PageNumber: i, Path: destPath})
	}

	p.logger.Debug("Split PDF into pages", "source", path, "pages", pageCount, "rendered", renderCount)
	return pages, nil
}

// optimizePDF rewrites the PDF through pdfcpu's optimizer in relaxed
// validation mode, which tolerates the slightly malformed files scanners
// produce
func optimizePDF(inPath, outPath string) error {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.OptimizeFile(inPath, outPath, cfg)
}
