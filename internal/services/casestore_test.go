package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/internal/lib"
	"github.com/veridoc/veridoc/internal/models"
)

func newTestCaseStore(t *testing.T) (*FileCaseStore, *MemoryDocumentStore, string) {
	t.Helper()
	tempDir := t.TempDir()
	docs := NewMemoryDocumentStore(lib.DefaultLogger)
	return NewFileCaseStore(tempDir, docs, lib.DefaultLogger), docs, tempDir
}

func createTestDocument(t *testing.T, docs DocumentRepository, dir, name string) *models.DocumentRecord {
	t.Helper()
	path := writeTestFile(t, dir, name, name+" content")
	doc, err := docs.Create(path, CreateOptions{})
	require.NoError(t, err)
	return doc
}

// TestCaseStore_Link verifies case creation on first link and the
// document-side mirror
func TestCaseStore_Link(t *testing.T) {
	cases, docs, tempDir := newTestCaseStore(t)
	doc := createTestDocument(t, docs, tempDir, "passport.jpg")

	record, err := cases.Link("CASE-2026-001", doc.DocumentID, "KYC onboarding")
	require.NoError(t, err)

	assert.Equal(t, "CASE-2026-001", record.CaseID)
	assert.Equal(t, models.CaseStatusActive, record.Status)
	assert.Equal(t, "KYC onboarding", record.Description)
	assert.Equal(t, []string{doc.DocumentID}, record.Documents)

	// The document carries the reverse link
	mirrored, err := docs.Get(doc.DocumentID)
	require.NoError(t, err)
	assert.Contains(t, mirrored.CaseLinks, "CASE-2026-001")
}

// TestCaseStore_Link_Idempotent verifies re-linking does not duplicate
func TestCaseStore_Link_Idempotent(t *testing.T) {
	cases, docs, tempDir := newTestCaseStore(t)
	doc := createTestDocument(t, docs, tempDir, "passport.jpg")

	_, err := cases.Link("CASE-001", doc.DocumentID, "first")
	require.NoError(t, err)
	record, err := cases.Link("CASE-001", doc.DocumentID, "second")
	require.NoError(t, err)

	assert.Len(t, record.Documents, 1)
	assert.Equal(t, "first", record.Description, "the description is set once")
}

// TestCaseStore_Link_UnknownDocument verifies the document must exist before
// the case is touched
func TestCaseStore_Link_UnknownDocument(t *testing.T) {
	cases, _, _ := newTestCaseStore(t)

	_, err := cases.Link("CASE-001", "DOC_20260830_000000_AAAAA", "")
	require.Error(t, err)
	assert.True(t, lib.IsCategory(err, lib.CategoryNotFound))

	_, err = cases.Get("CASE-001")
	require.Error(t, err, "a failed link must not create the case")
}

// TestCaseStore_DocumentInMultipleCases verifies cases are labels, not
// containers
func TestCaseStore_DocumentInMultipleCases(t *testing.T) {
	cases, docs, tempDir := newTestCaseStore(t)
	doc := createTestDocument(t, docs, tempDir, "bill.pdf")

	_, err := cases.Link("CASE-A", doc.DocumentID, "")
	require.NoError(t, err)
	_, err = cases.Link("CASE-B", doc.DocumentID, "")
	require.NoError(t, err)

	mirrored, err := docs.Get(doc.DocumentID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"CASE-A", "CASE-B"}, mirrored.CaseLinks)
}

// TestCaseStore_GetRoundTrip verifies a case survives a store reopen
func TestCaseStore_GetRoundTrip(t *testing.T) {
	cases, docs, tempDir := newTestCaseStore(t)
	doc := createTestDocument(t, docs, tempDir, "statement.pdf")

	_, err := cases.Link("CASE-001", doc.DocumentID, "quarterly review")
	require.NoError(t, err)

	reopened := NewFileCaseStore(tempDir, docs, lib.DefaultLogger)
	record, err := reopened.Get("CASE-001")
	require.NoError(t, err)
	assert.Equal(t, "quarterly review", record.Description)
	assert.Equal(t, []string{doc.DocumentID}, record.Documents)
}

// TestCaseStore_List verifies listing across case directories
func TestCaseStore_List(t *testing.T) {
	cases, docs, tempDir := newTestCaseStore(t)
	doc := createTestDocument(t, docs, tempDir, "id.jpg")

	for _, caseID := range []string{"CASE-003", "CASE-001", "CASE-002"} {
		_, err := cases.Link(caseID, doc.DocumentID, "")
		require.NoError(t, err)
	}

	records, err := cases.List()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "CASE-001", records[0].CaseID, "listing is sorted by case ID")
	assert.Equal(t, "CASE-002", records[1].CaseID)
	assert.Equal(t, "CASE-003", records[2].CaseID)
}

// TestCaseStore_SaveSummary verifies the cached summary round-trips
func TestCaseStore_SaveSummary(t *testing.T) {
	cases, docs, tempDir := newTestCaseStore(t)
	doc := createTestDocument(t, docs, tempDir, "id.jpg")

	_, err := cases.Link("CASE-001", doc.DocumentID, "")
	require.NoError(t, err)

	summary := &models.CaseSummary{
		VerificationStatus: models.VerificationPartial,
		GeneratedAt:        time.Now().UTC(),
	}
	summary.IDProof.Verified = true
	summary.IDProof.Documents = []string{doc.DocumentID}

	record, err := cases.SaveSummary("CASE-001", summary)
	require.NoError(t, err)
	require.NotNil(t, record.CaseSummary)

	loaded, err := cases.Get("CASE-001")
	require.NoError(t, err)
	require.NotNil(t, loaded.CaseSummary)
	assert.Equal(t, models.VerificationPartial, loaded.CaseSummary.VerificationStatus)
	assert.True(t, loaded.CaseSummary.IDProof.Verified)
}

// TestCaseStore_SaveSummary_UnknownCase verifies summaries need an existing case
func TestCaseStore_SaveSummary_UnknownCase(t *testing.T) {
	cases, _, _ := newTestCaseStore(t)

	_, err := cases.SaveSummary("CASE-MISSING", &models.CaseSummary{})
	require.Error(t, err)
	assert.True(t, lib.IsCategory(err, lib.CategoryNotFound))
}

// TestMemoryCaseStore_Link runs the linking contract against the in-memory
// variant used by pipeline tests
func TestMemoryCaseStore_Link(t *testing.T) {
	tempDir := t.TempDir()
	docs := NewMemoryDocumentStore(lib.DefaultLogger)
	cases := NewMemoryCaseStore(docs, lib.DefaultLogger)
	doc := createTestDocument(t, docs, tempDir, "id.jpg")

	record, err := cases.Link("CASE-001", doc.DocumentID, "memory")
	require.NoError(t, err)
	assert.Equal(t, []string{doc.DocumentID}, record.Documents)

	mirrored, err := docs.Get(doc.DocumentID)
	require.NoError(t, err)
	assert.Contains(t, mirrored.CaseLinks, "CASE-001")
}
