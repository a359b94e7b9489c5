package pipeline

// Shared test doubles. The renderer writes real page files so document
// creation can hash them; the capability stubs never touch the filesystem.

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/internal/lib"
	"github.com/veridoc/veridoc/internal/models"
	"github.com/veridoc/veridoc/internal/services"
)

type fakeRenderer struct {
	pages     int
	countErr  error
	renderErr error
}

func (f *fakeRenderer) PageCount(path string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.pages, nil
}

func (f *fakeRenderer) RenderPages(path string, destDir string, maxPages int) ([]services.RenderedPage, error) {
	if f.renderErr != nil {
		return nil, f.renderErr
	}
	count := f.pages
	if count > maxPages {
		count = maxPages
	}
	rendered := make([]services.RenderedPage, 0, count)
	for i := 1; i <= count; i++ {
		pagePath := filepath.Join(destDir, fmt.Sprintf("page_%d.pdf", i))
		content := fmt.Sprintf("%%PDF-1.4 page %d of %s", i, filepath.Base(path))
		if err := os.WriteFile(pagePath, []byte(content), 0644); err != nil {
			return nil, err
		}
		rendered = append(rendered, services.RenderedPage{PageNumber: i, Path: pagePath})
	}
	return rendered, nil
}

type stubClassifier struct {
	result services.ClassificationResult
	err    error
	calls  int
}

func (s *stubClassifier) Classify(filePath string) (*services.ClassificationResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	result := s.result
	return &result, nil
}

type stubExtractor struct {
	result services.ExtractionResult
	err    error
	calls  int
}

func (s *stubExtractor) Extract(filePath string, documentType string) (*services.ExtractionResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	result := s.result
	return &result, nil
}

func passportClassifier() *stubClassifier {
	return &stubClassifier{result: services.ClassificationResult{
		DocumentType: "passport",
		Confidence:   0.95,
		Categories:   []string{"identity_proof"},
	}}
}

func passportExtractor() *stubExtractor {
	return &stubExtractor{result: services.ExtractionResult{
		Fields: map[string]string{
			"full_name":       "Jane Doe",
			"passport_number": "X1234567",
		},
		Confidence: 0.9,
	}}
}

func writeSourceFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

type testPipeline struct {
	runner     *Runner
	docs       *services.MemoryDocumentStore
	queue      *services.DocumentQueue
	classifier *stubClassifier
	extractor  *stubExtractor
	renderer   *fakeRenderer
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()
	config := models.DefaultConfig()
	docs := services.NewMemoryDocumentStore(lib.DefaultLogger)
	queue := services.NewMemoryQueue(config.Intake, lib.DefaultLogger)
	renderer := &fakeRenderer{pages: 1}
	classifier := passportClassifier()
	extractor := passportExtractor()
	runner := NewRunner(config, docs, queue, renderer, classifier, extractor, lib.DefaultLogger)
	return &testPipeline{
		runner:     runner,
		docs:       docs,
		queue:      queue,
		classifier: classifier,
		extractor:  extractor,
		renderer:   renderer,
	}
}

func (p *testPipeline) enqueue(t *testing.T, path string) *models.QueueEntry {
	t.Helper()
	entry, err := p.queue.AddFile(path, 5, nil)
	require.NoError(t, err)
	return entry
}
