package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/veridoc/internal/lib"
	"github.com/veridoc/veridoc/internal/models"
)

const (
	// IntakeDirName is the subdirectory of the documents dir holding stored
	// files and their metadata records.
	IntakeDirName = "intake"

	metadataSuffix = ".metadata.json"
)

// CreateOptions carries the lineage fields for documents born from a PDF
// fan-out. Zero value means an ordinary top-level intake.
type CreateOptions struct {
	OriginalFilename string
	ParentDocumentID string
	PageNumber       int
	TotalPages       int
}

// StageUpdate describes one stage outcome to record on a document.
type StageUpdate struct {
	Status  models.StageStatus
	Message string
	Error   string
	Trace   string
	Data    map[string]any
}

// DocumentRepository is the durable store for document records and their
// underlying files.
type DocumentRepository interface {
	// Create copies the file into managed storage and persists a fresh record
	// with every stage pending.
	Create(filePath string, opts CreateOptions) (*models.DocumentRecord, error)
	Get(documentID string) (*models.DocumentRecord, error)
	Save(doc *models.DocumentRecord) error
	// UpdateStage applies one stage transition and persists the result.
	UpdateStage(documentID string, stage models.StageName, update StageUpdate) (*models.DocumentRecord, error)
	// FindByHash returns the record with the given content hash, or nil when
	// no document matches.
	FindByHash(contentHash string) (*models.DocumentRecord, error)
	List() ([]models.DocumentRecord, error)
	FlagForReview(documentID string, reason string) (*models.DocumentRecord, error)
	AddCaseLink(documentID string, caseID string) (*models.DocumentRecord, error)
}

// FileDocumentStore keeps each document as a file pair under
// <documentsDir>/intake/: the stored bytes at <id><ext> and the record at
// <id>.metadata.json.
type FileDocumentStore struct {
	documentsDir string
	logger       *lib.Logger
	mu           sync.Mutex
}

// NewFileDocumentStore creates a document store rooted at documentsDir
func NewFileDocumentStore(documentsDir string, logger *lib.Logger) *FileDocumentStore {
	return &FileDocumentStore{documentsDir: documentsDir, logger: logger}
}

func (s *FileDocumentStore) intakeDir() string {
	return filepath.Join(s.documentsDir, IntakeDirName)
}

func (s *FileDocumentStore) metadataPath(documentID string) string {
	return filepath.Join(s.intakeDir(), documentID+metadataSuffix)
}

// Create copies the source file into the intake directory and writes the
// initial record. The record survives even when later stages never run.
func (s *FileDocumentStore) Create(filePath string, opts CreateOptions) (*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lib.ErrFileNotFound(filePath)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	hash, err := HashFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to hash file: %w", err)
	}

	originalName := opts.OriginalFilename
	if originalName == "" {
		originalName = filepath.Base(filePath)
	}
	ext := strings.ToLower(filepath.Ext(originalName))

	if err := os.MkdirAll(s.intakeDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create intake directory: %w", err)
	}

	doc := models.DocumentRecord{
		DocumentID:       models.NewDocumentID(),
		OriginalFilename: originalName,
		Extension:        ext,
		SizeBytes:        info.Size(),
		ContentHash:      hash,
		ParentDocumentID: opts.ParentDocumentID,
		PageNumber:       opts.PageNumber,
		TotalPages:       opts.TotalPages,
		StageBlocks:      models.NewStageBlocks(),
		CreatedAt:        nowUTC(),
		UpdatedAt:        nowUTC(),
	}
	doc.StoredPath = filepath.Join(s.intakeDir(), doc.DocumentID+ext)

	if err := copyFile(filePath, doc.StoredPath); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	if err := s.persist(&doc); err != nil {
		_ = os.Remove(doc.StoredPath)
		return nil, err
	}

	lib.LogDocumentCreated(s.logger, doc.DocumentID, doc.OriginalFilename)
	return &doc, nil
}

// Get reads one record from disk
func (s *FileDocumentStore) Get(documentID string) (*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(documentID)
}

// Save validates and persists a record
func (s *FileDocumentStore) Save(doc *models.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(doc)
}

// UpdateStage loads the record, applies the transition, and persists the
// result. The stage status graph is enforced here so a crashed or buggy
// caller can never persist an illegal jump.
func (s *FileDocumentStore) UpdateStage(documentID string, stage models.StageName, update StageUpdate) (*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(documentID)
	if err != nil {
		return nil, err
	}

	updated, err := applyStageUpdate(*doc, stage, update)
	if err != nil {
		return nil, err
	}

	if err := s.persist(&updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// FindByHash scans all records for a matching content hash. Used by intake
// dedup; the scan is linear but the store is a per-case working set, not an
// archive.
func (s *FileDocumentStore) FindByHash(contentHash string) (*models.DocumentRecord, error) {
	docs, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].ContentHash == contentHash {
			return &docs[i], nil
		}
	}
	return nil, nil
}

// List reads every record in the intake directory, sorted by document ID.
// Document IDs are time-prefixed, so this is also creation order.
func (s *FileDocumentStore) List() ([]models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.intakeDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []models.DocumentRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read intake directory: %w", err)
	}

	docs := make([]models.DocumentRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), metadataSuffix) {
			continue
		}
		doc, err := s.load(strings.TrimSuffix(entry.Name(), metadataSuffix))
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].DocumentID < docs[j].DocumentID
	})
	return docs, nil
}

// FlagForReview marks a document for manual review
func (s *FileDocumentStore) FlagForReview(documentID string, reason string) (*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(documentID)
	if err != nil {
		return nil, err
	}
	updated := models.WithReviewFlag(*doc, reason)
	if err := s.persist(&updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// AddCaseLink records a case membership on the document side
func (s *FileDocumentStore) AddCaseLink(documentID string, caseID string) (*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(documentID)
	if err != nil {
		return nil, err
	}
	updated := models.WithCaseLink(*doc, caseID)
	if err := s.persist(&updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *FileDocumentStore) load(documentID string) (*models.DocumentRecord, error) {
	path := s.metadataPath(documentID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lib.ErrDocumentNotFound(documentID)
		}
		return nil, fmt.Errorf("failed to read document record: %w", err)
	}

	var doc models.DocumentRecord
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, lib.ErrCorruptedState(path, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, lib.ErrCorruptedState(path, err)
	}
	return &doc, nil
}

// persist writes the record atomically via temp file + rename
func (s *FileDocumentStore) persist(doc *models.DocumentRecord) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid document record: %w", err)
	}

	if err := os.MkdirAll(s.intakeDir(), 0755); err != nil {
		return fmt.Errorf("failed to create intake directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document record: %w", err)
	}

	tempFile := filepath.Join(s.intakeDir(), fmt.Sprintf(".metadata.tmp.%s", uuid.New().String()))
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp metadata file: %w", err)
	}

	if err := os.Rename(tempFile, s.metadataPath(doc.DocumentID)); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to save document record: %w", err)
	}
	return nil
}

// applyStageUpdate maps a StageUpdate onto the transition helpers, guarding
// the status graph.
func applyStageUpdate(doc models.DocumentRecord, stage models.StageName, update StageUpdate) (models.DocumentRecord, error) {
	if !models.IsValidStageName(stage) {
		return doc, fmt.Errorf("unknown stage: %s", stage)
	}
	block := doc.Stage(stage)
	if !block.Status.CanTransitionTo(update.Status) {
		return doc, lib.WrapError(lib.CategoryState,
			fmt.Sprintf("invalid stage transition for %s: %s -> %s on %s",
				stage, block.Status, update.Status, doc.DocumentID), nil)
	}

	switch update.Status {
	case models.StageStatusRunning:
		block = models.StartStage(block)
	case models.StageStatusSuccess:
		block = models.CompleteStage(block, update.Message, update.Data)
	case models.StageStatusFail:
		block = models.FailStage(block, update.Error, update.Trace)
	case models.StageStatusSkipped:
		block = models.SkipStage(block, update.Message)
	case models.StageStatusPending:
		block = models.ResetStageForRetry(block)
	default:
		return doc, fmt.Errorf("unknown stage status: %s", update.Status)
	}

	return models.WithStage(doc, stage, block), nil
}

// MemoryDocumentStore is an in-memory DocumentRepository for tests and dry
// runs. Files are still read for hashing but never copied.
type MemoryDocumentStore struct {
	mu     sync.Mutex
	docs   map[string]models.DocumentRecord
	logger *lib.Logger
}

// NewMemoryDocumentStore creates an empty in-memory store
func NewMemoryDocumentStore(logger *lib.Logger) *MemoryDocumentStore {
	return &MemoryDocumentStore{
		docs:   make(map[string]models.DocumentRecord),
		logger: logger,
	}
}

func (s *MemoryDocumentStore) Create(filePath string, opts CreateOptions) (*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lib.ErrFileNotFound(filePath)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	hash, err := HashFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to hash file: %w", err)
	}

	originalName := opts.OriginalFilename
	if originalName == "" {
		originalName = filepath.Base(filePath)
	}

	doc := models.DocumentRecord{
		DocumentID:       models.NewDocumentID(),
		OriginalFilename: originalName,
		StoredPath:       filePath,
		Extension:        strings.ToLower(filepath.Ext(originalName)),
		SizeBytes:        info.Size(),
		ContentHash:      hash,
		ParentDocumentID: opts.ParentDocumentID,
		PageNumber:       opts.PageNumber,
		TotalPages:       opts.TotalPages,
		StageBlocks:      models.NewStageBlocks(),
		CreatedAt:        nowUTC(),
		UpdatedAt:        nowUTC(),
	}
	s.docs[doc.DocumentID] = doc
	lib.LogDocumentCreated(s.logger, doc.DocumentID, doc.OriginalFilename)
	return &doc, nil
}

func (s *MemoryDocumentStore) Get(documentID string) (*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return nil, lib.ErrDocumentNotFound(documentID)
	}
	return &doc, nil
}

func (s *MemoryDocumentStore) Save(doc *models.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid document record: %w", err)
	}
	s.docs[doc.DocumentID] = *doc
	return nil
}

func (s *MemoryDocumentStore) UpdateStage(documentID string, stage models.StageName, update StageUpdate) (*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[documentID]
	if !ok {
		return nil, lib.ErrDocumentNotFound(documentID)
	}
	updated, err := applyStageUpdate(doc, stage, update)
	if err != nil {
		return nil, err
	}
	s.docs[documentID] = updated
	return &updated, nil
}

func (s *MemoryDocumentStore) FindByHash(contentHash string) (*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if doc := s.docs[id]; doc.ContentHash == contentHash {
			return &doc, nil
		}
	}
	return nil, nil
}

func (s *MemoryDocumentStore) List() ([]models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]models.DocumentRecord, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].DocumentID < docs[j].DocumentID
	})
	return docs, nil
}

func (s *MemoryDocumentStore) FlagForReview(documentID string, reason string) (*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return nil, lib.ErrDocumentNotFound(documentID)
	}
	updated := models.WithReviewFlag(doc, reason)
	s.docs[documentID] = updated
	return &updated, nil
}

func (s *MemoryDocumentStore) AddCaseLink(documentID string, caseID string) (*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return nil, lib.ErrDocumentNotFound(documentID)
	}
	updated := models.WithCaseLink(doc, caseID)
	s.docs[documentID] = updated
	return &updated, nil
}

// nowUTC keeps persisted timestamps comparable across machines
func nowUTC() time.Time {
	return time.Now().UTC()
}

// HashFile computes the SHA-256 hex digest of a file's contents
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// copyFile copies src to dst, failing if dst's directory does not exist
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
