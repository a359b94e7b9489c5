package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/veridoc/veridoc/internal/lib"
	"github.com/veridoc/veridoc/internal/models"
)

const (
	// CasesDirName is the subdirectory of the documents dir holding one
	// directory per case.
	CasesDirName = "cases"

	caseFileName = "case_metadata.json"
)

// CaseRepository is the durable store for case records.
type CaseRepository interface {
	// Link attaches a document to a case, creating the case on first use.
	// Linking an already-linked document is a no-op. The document side of
	// the link is mirrored into the document record.
	Link(caseID string, documentID string, description string) (*models.CaseRecord, error)
	Get(caseID string) (*models.CaseRecord, error)
	List() ([]models.CaseRecord, error)
	// SaveSummary caches a generated summary on the case record
	SaveSummary(caseID string, summary *models.CaseSummary) (*models.CaseRecord, error)
}

// FileCaseStore keeps each case at <documentsDir>/cases/<caseID>/case_metadata.json.
// Case files are guarded by per-case advisory locks so two processes can link
// into different cases concurrently.
type FileCaseStore struct {
	documentsDir string
	docs         DocumentRepository
	logger       *lib.Logger
}

// NewFileCaseStore creates a case store rooted at documentsDir. The document
// repository is needed to mirror links onto document records.
func NewFileCaseStore(documentsDir string, docs DocumentRepository, logger *lib.Logger) *FileCaseStore {
	return &FileCaseStore{documentsDir: documentsDir, docs: docs, logger: logger}
}

func (s *FileCaseStore) casesDir() string {
	return filepath.Join(s.documentsDir, CasesDirName)
}

func (s *FileCaseStore) casePath(caseID string) string {
	return filepath.Join(s.casesDir(), caseID, caseFileName)
}

// Link attaches a document to a case under the case's file lock
func (s *FileCaseStore) Link(caseID string, documentID string, description string) (*models.CaseRecord, error) {
	if caseID == "" {
		return nil, lib.WrapError(lib.CategoryValidation, "case ID must not be empty", nil)
	}

	// Verify the document exists before touching case state
	if _, err := s.docs.Get(documentID); err != nil {
		return nil, err
	}

	var record *models.CaseRecord
	lockPath := s.casePath(caseID) + ".lock"
	err := WithStoreLock(lockPath, "case "+caseID, s.logger, func() error {
		existing, err := s.loadOrNil(caseID)
		if err != nil {
			return err
		}
		if existing == nil {
			existing = &models.CaseRecord{
				CaseID:      caseID,
				Description: description,
				Status:      models.CaseStatusActive,
				Documents:   []string{},
				CreatedAt:   nowUTC(),
				LastUpdated: nowUTC(),
			}
			s.logger.Info("Created case", "case_id", caseID)
		}

		if !existing.HasDocument(documentID) {
			existing.Documents = append(existing.Documents, documentID)
			existing.LastUpdated = nowUTC()
		}
		if description != "" && existing.Description == "" {
			existing.Description = description
		}

		record = existing
		return s.persist(existing)
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.docs.AddCaseLink(documentID, caseID); err != nil {
		return nil, fmt.Errorf("case saved but document link failed: %w", err)
	}

	s.logger.Info("Linked document to case", "case_id", caseID, "document_id", documentID)
	return record, nil
}

// Get reads one case record
func (s *FileCaseStore) Get(caseID string) (*models.CaseRecord, error) {
	record, err := s.loadOrNil(caseID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, lib.ErrCaseNotFound(caseID)
	}
	return record, nil
}

// List reads every case record, sorted by case ID
func (s *FileCaseStore) List() ([]models.CaseRecord, error) {
	entries, err := os.ReadDir(s.casesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []models.CaseRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read cases directory: %w", err)
	}

	cases := make([]models.CaseRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		record, err := s.loadOrNil(entry.Name())
		if err != nil {
			return nil, err
		}
		if record != nil {
			cases = append(cases, *record)
		}
	}

	sort.Slice(cases, func(i, j int) bool {
		return cases[i].CaseID < cases[j].CaseID
	})
	return cases, nil
}

// SaveSummary caches a generated summary on the case record
func (s *FileCaseStore) SaveSummary(caseID string, summary *models.CaseSummary) (*models.CaseRecord, error) {
	var record *models.CaseRecord
	lockPath := s.casePath(caseID) + ".lock"
	err := WithStoreLock(lockPath, "case "+caseID, s.logger, func() error {
		existing, err := s.loadOrNil(caseID)
		if err != nil {
			return err
		}
		if existing == nil {
			return lib.ErrCaseNotFound(caseID)
		}
		existing.CaseSummary = summary
		existing.LastUpdated = nowUTC()
		record = existing
		return s.persist(existing)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *FileCaseStore) loadOrNil(caseID string) (*models.CaseRecord, error) {
	path := s.casePath(caseID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read case record: %w", err)
	}

	var record models.CaseRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, lib.ErrCorruptedState(path, err)
	}
	if err := record.Validate(); err != nil {
		return nil, lib.ErrCorruptedState(path, err)
	}
	return &record, nil
}

// persist writes the case record atomically via temp file + rename
func (s *FileCaseStore) persist(record *models.CaseRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid case record: %w", err)
	}

	caseDir := filepath.Dir(s.casePath(record.CaseID))
	if err := os.MkdirAll(caseDir, 0755); err != nil {
		return fmt.Errorf("failed to create case directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal case record: %w", err)
	}

	tempFile := filepath.Join(caseDir, fmt.Sprintf(".case.tmp.%s", uuid.New().String()))
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp case file: %w", err)
	}
	if err := os.Rename(tempFile, s.casePath(record.CaseID)); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to save case record: %w", err)
	}
	return nil
}

// MemoryCaseStore is an in-memory CaseRepository for tests
type MemoryCaseStore struct {
	mu     sync.Mutex
	cases  map[string]models.CaseRecord
	docs   DocumentRepository
	logger *lib.Logger
}

// NewMemoryCaseStore creates an empty in-memory case store
func NewMemoryCaseStore(docs DocumentRepository, logger *lib.Logger) *MemoryCaseStore {
	return &MemoryCaseStore{
		cases:  make(map[string]models.CaseRecord),
		docs:   docs,
		logger: logger,
	}
}

func (s *MemoryCaseStore) Link(caseID string, documentID string, description string) (*models.CaseRecord, error) {
	if caseID == "" {
		return nil, lib.WrapError(lib.CategoryValidation, "case ID must not be empty", nil)
	}
	if _, err := s.docs.Get(documentID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	record, ok := s.cases[caseID]
	if !ok {
		record = models.CaseRecord{
			CaseID:      caseID,
			Description: description,
			Status:      models.CaseStatusActive,
			Documents:   []string{},
			CreatedAt:   nowUTC(),
			LastUpdated: nowUTC(),
		}
	}
	if !record.HasDocument(documentID) {
		record.Documents = append(record.Documents, documentID)
		record.LastUpdated = nowUTC()
	}
	s.cases[caseID] = record
	s.mu.Unlock()

	if _, err := s.docs.AddCaseLink(documentID, caseID); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *MemoryCaseStore) Get(caseID string) (*models.CaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.cases[caseID]
	if !ok {
		return nil, lib.ErrCaseNotFound(caseID)
	}
	return &record, nil
}

func (s *MemoryCaseStore) List() ([]models.CaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cases := make([]models.CaseRecord, 0, len(s.cases))
	for _, record := range s.cases {
		cases = append(cases, record)
	}
	sort.Slice(cases, func(i, j int) bool {
		return cases[i].CaseID < cases[j].CaseID
	})
	return cases, nil
}

func (s *MemoryCaseStore) SaveSummary(caseID string, summary *models.CaseSummary) (*models.CaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.cases[caseID]
	if !ok {
		return nil, lib.ErrCaseNotFound(caseID)
	}
	record.CaseSummary = summary
	record.LastUpdated = nowUTC()
	s.cases[caseID] = record
	return &record, nil
}
