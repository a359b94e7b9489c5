package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/veridoc/internal/lib"
	"github.com/veridoc/veridoc/internal/models"
)

const (
	// QueueDirName is the subdirectory of the documents dir holding the
	// queue file and its lock.
	QueueDirName  = "queue"
	QueueFileName = "document_queue.json"
)

// queueState is the persisted wire shape of the queue file. Active entries
// and the processed archive live in one file so a single atomic rename
// captures every transition.
type queueState struct {
	Queue     []models.QueueEntry `json:"queue"`
	Processed []models.QueueEntry `json:"processed"`
}

func (st *queueState) allIDs() []string {
	ids := make([]string, 0, len(st.Queue)+len(st.Processed))
	for _, e := range st.Queue {
		ids = append(ids, e.ID)
	}
	for _, e := range st.Processed {
		ids = append(ids, e.ID)
	}
	return ids
}

func (st *queueState) findActive(queueID string) (int, bool) {
	for i := range st.Queue {
		if st.Queue[i].ID == queueID {
			return i, true
		}
	}
	return 0, false
}

// queueStorage abstracts where queue state lives. The file implementation
// adds cross-process locking; the memory implementation backs tests.
type queueStorage interface {
	load() (*queueState, error)
	save(state *queueState) error
	// withLock holds exclusive access for a load-mutate-save sequence
	withLock(fn func() error) error
}

// fileQueueStorage persists the queue as a single JSON file guarded by an
// advisory file lock.
type fileQueueStorage struct {
	queuePath string
	logger    *lib.Logger
}

func newFileQueueStorage(documentsDir string, logger *lib.Logger) *fileQueueStorage {
	return &fileQueueStorage{
		queuePath: filepath.Join(documentsDir, QueueDirName, QueueFileName),
		logger:    logger,
	}
}

func (f *fileQueueStorage) load() (*queueState, error) {
	data, err := os.ReadFile(f.queuePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &queueState{Queue: []models.QueueEntry{}, Processed: []models.QueueEntry{}}, nil
		}
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}

	var state queueState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, lib.ErrCorruptedState(f.queuePath, err)
	}
	if state.Queue == nil {
		state.Queue = []models.QueueEntry{}
	}
	if state.Processed == nil {
		state.Processed = []models.QueueEntry{}
	}
	return &state, nil
}

func (f *fileQueueStorage) save(state *queueState) error {
	dir := filepath.Dir(f.queuePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal queue state: %w", err)
	}

	tempFile := filepath.Join(dir, fmt.Sprintf(".queue.tmp.%s", uuid.New().String()))
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp queue file: %w", err)
	}
	if err := os.Rename(tempFile, f.queuePath); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to save queue state: %w", err)
	}
	return nil
}

func (f *fileQueueStorage) withLock(fn func() error) error {
	return WithStoreLock(f.queuePath+".lock", "queue", f.logger, fn)
}

// memoryQueueStorage keeps queue state in process memory
type memoryQueueStorage struct {
	mu    sync.Mutex
	state queueState
}

func newMemoryQueueStorage() *memoryQueueStorage {
	return &memoryQueueStorage{
		state: queueState{Queue: []models.QueueEntry{}, Processed: []models.QueueEntry{}},
	}
}

func (m *memoryQueueStorage) load() (*queueState, error) {
	snapshot := queueState{
		Queue:     append([]models.QueueEntry{}, m.state.Queue...),
		Processed: append([]models.QueueEntry{}, m.state.Processed...),
	}
	return &snapshot, nil
}

func (m *memoryQueueStorage) save(state *queueState) error {
	m.state = queueState{
		Queue:     append([]models.QueueEntry{}, state.Queue...),
		Processed: append([]models.QueueEntry{}, state.Processed...),
	}
	return nil
}

func (m *memoryQueueStorage) withLock(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn()
}

// DocumentQueue is the persistent work queue feeding the pipeline. All
// mutations run under the storage lock as a load-mutate-save sequence, so
// concurrent CLI invocations interleave at entry granularity.
type DocumentQueue struct {
	storage queueStorage
	intake  models.IntakeConfig
	logger  *lib.Logger
}

// NewDocumentQueue creates a queue persisted under the documents dir
func NewDocumentQueue(documentsDir string, intake models.IntakeConfig, logger *lib.Logger) *DocumentQueue {
	return &DocumentQueue{
		storage: newFileQueueStorage(documentsDir, logger),
		intake:  intake,
		logger:  logger,
	}
}

// NewMemoryQueue creates an in-memory queue for tests and dry runs
func NewMemoryQueue(intake models.IntakeConfig, logger *lib.Logger) *DocumentQueue {
	return &DocumentQueue{
		storage: newMemoryQueueStorage(),
		intake:  intake,
		logger:  logger,
	}
}

// AddFile enqueues a single file for processing. The file must exist now;
// intake re-validates at processing time.
func (q *DocumentQueue) AddFile(path string, priority int, metadata map[string]any) (*models.QueueEntry, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return nil, lib.ErrFileNotFound(path)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	var entry models.QueueEntry
	err = q.storage.withLock(func() error {
		state, err := q.storage.load()
		if err != nil {
			return err
		}
		entry = models.QueueEntry{
			ID:         models.NextQueueID(state.allIDs()),
			SourcePath: absPath,
			SourceType: models.SourceManual,
			Status:     models.QueueStatusPending,
			Priority:   priority,
			Metadata:   metadata,
			CreatedAt:  time.Now().UTC(),
		}
		state.Queue = append(state.Queue, entry)
		return q.storage.save(state)
	})
	if err != nil {
		return nil, err
	}

	lib.LogQueueEvent(q.logger, "enqueued", entry.ID, "path", absPath, "priority", priority)
	return &entry, nil
}

// AddDirectory enqueues every file in a directory whose extension is allowed
// for intake. Non-recursive; subdirectories are ignored. Returns the entries
// added.
func (q *DocumentQueue) AddDirectory(dir string, priority int) ([]models.QueueEntry, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	dirEntries, err := os.ReadDir(absDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lib.ErrFileNotFound(dir)
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var added []models.QueueEntry
	err = q.storage.withLock(func() error {
		state, err := q.storage.load()
		if err != nil {
			return err
		}
		for _, dirEntry := range dirEntries {
			if dirEntry.IsDir() {
				continue
			}
			if !q.intake.AllowsExtension(filepath.Ext(dirEntry.Name())) {
				continue
			}
			entry := models.QueueEntry{
				ID:         models.NextQueueID(state.allIDs()),
				SourcePath: filepath.Join(absDir, dirEntry.Name()),
				SourceType: models.SourceDirectoryScan,
				Status:     models.QueueStatusPending,
				Priority:   priority,
				CreatedAt:  time.Now().UTC(),
			}
			state.Queue = append(state.Queue, entry)
			added = append(added, entry)
		}
		return q.storage.save(state)
	})
	if err != nil {
		return nil, err
	}

	lib.LogQueueEvent(q.logger, "directory scanned", "", "dir", absDir, "added", len(added))
	return added, nil
}

// ChildPriority is the queue priority assigned to fan-out page entries.
// Lower than the manual default so pages are served before fresh uploads.
const ChildPriority = 2

// AddChildDocuments enqueues the pages produced by a PDF fan-out. Children
// already exist as documents, so each entry carries a document ID and skips
// intake when processed.
func (q *DocumentQueue) AddChildDocuments(parentDocumentID string, children []models.DocumentRecord) ([]models.QueueEntry, error) {
	var added []models.QueueEntry
	err := q.storage.withLock(func() error {
		state, err := q.storage.load()
		if err != nil {
			return err
		}
		for _, child := range children {
			entry := models.QueueEntry{
				ID:         models.NextQueueID(state.allIDs()),
				DocumentID: child.DocumentID,
				SourcePath: child.StoredPath,
				SourceType: models.SourceChildCreation,
				Status:     models.QueueStatusPending,
				Priority:   ChildPriority,
				ParentID:   parentDocumentID,
				Metadata: map[string]any{
					"page_number": child.PageNumber,
					"total_pages": child.TotalPages,
				},
				CreatedAt: time.Now().UTC(),
			}
			state.Queue = append(state.Queue, entry)
			added = append(added, entry)
		}
		return q.storage.save(state)
	})
	if err != nil {
		return nil, err
	}

	lib.LogQueueEvent(q.logger, "children enqueued", "", "parent", parentDocumentID, "count", len(added))
	return added, nil
}

// GetNext returns the highest-priority pending entry without mutating it, or
// (nil, nil) when nothing is pending. Claiming is a separate MarkProcessing
// call so a crashed reader never strands an entry.
func (q *DocumentQueue) GetNext() (*models.QueueEntry, error) {
	state, err := q.storage.load()
	if err != nil {
		return nil, err
	}
	models.SortQueueEntries(state.Queue)
	for i := range state.Queue {
		if state.Queue[i].Status == models.QueueStatusPending {
			entry := state.Queue[i]
			return &entry, nil
		}
	}
	return nil, nil
}

// MarkProcessing claims a pending entry
func (q *DocumentQueue) MarkProcessing(queueID string) (*models.QueueEntry, error) {
	return q.transitionActive(queueID, models.QueueStatusProcessing, func(e models.QueueEntry) models.QueueEntry {
		return models.MarkEntryProcessing(e)
	})
}

// MarkCompleted finishes an entry and moves it to the processed archive
func (q *DocumentQueue) MarkCompleted(queueID string, documentID string) (*models.QueueEntry, error) {
	return q.transitionActive(queueID, models.QueueStatusCompleted, func(e models.QueueEntry) models.QueueEntry {
		return models.MarkEntryCompleted(e, documentID)
	})
}

// MarkFailed records a failure; the entry stays in the active queue so it
// remains visible and retryable
func (q *DocumentQueue) MarkFailed(queueID string, errMsg string) (*models.QueueEntry, error) {
	return q.transitionActive(queueID, models.QueueStatusFailed, func(e models.QueueEntry) models.QueueEntry {
		return models.MarkEntryFailed(e, errMsg)
	})
}

// MarkSkipped finishes an entry without work and moves it to the processed
// archive
func (q *DocumentQueue) MarkSkipped(queueID string) (*models.QueueEntry, error) {
	return q.transitionActive(queueID, models.QueueStatusSkipped, func(e models.QueueEntry) models.QueueEntry {
		return models.MarkEntrySkipped(e)
	})
}

// transitionActive applies a guarded status transition to one active entry.
// Entries reaching a terminal status move to the processed list.
func (q *DocumentQueue) transitionActive(queueID string, target models.QueueEntryStatus, apply func(models.QueueEntry) models.QueueEntry) (*models.QueueEntry, error) {
	var result models.QueueEntry
	err := q.storage.withLock(func() error {
		state, err := q.storage.load()
		if err != nil {
			return err
		}
		idx, ok := state.findActive(queueID)
		if !ok {
			return lib.ErrQueueEntryNotFound(queueID)
		}
		entry := state.Queue[idx]
		if !entry.Status.CanTransitionTo(target) {
			return lib.WrapError(lib.CategoryState,
				fmt.Sprintf("invalid queue transition for %s: %s -> %s", queueID, entry.Status, target), nil)
		}

		result = apply(entry)
		if result.Status.IsTerminal() {
			state.Queue = append(state.Queue[:idx], state.Queue[idx+1:]...)
			state.Processed = append(state.Processed, result)
		} else {
			state.Queue[idx] = result
		}
		return q.storage.save(state)
	})
	if err != nil {
		return nil, err
	}

	lib.LogQueueEvent(q.logger, string(result.Status), result.ID)
	return &result, nil
}

// RetryFailed resets failed entries to pending. An empty queueID retries all
// failed entries; otherwise only the named entry, which must be failed.
// Returns the number of entries reset.
func (q *DocumentQueue) RetryFailed(queueID string) (int, error) {
	count := 0
	err := q.storage.withLock(func() error {
		state, err := q.storage.load()
		if err != nil {
			return err
		}
		if queueID != "" {
			idx, ok := state.findActive(queueID)
			if !ok {
				return lib.ErrQueueEntryNotFound(queueID)
			}
			if state.Queue[idx].Status != models.QueueStatusFailed {
				return lib.WrapError(lib.CategoryState,
					fmt.Sprintf("entry %s is %s, only failed entries can be retried", queueID, state.Queue[idx].Status), nil)
			}
			state.Queue[idx] = models.ResetEntryForRetry(state.Queue[idx])
			count = 1
			return q.storage.save(state)
		}
		for i := range state.Queue {
			if state.Queue[i].Status == models.QueueStatusFailed {
				state.Queue[i] = models.ResetEntryForRetry(state.Queue[i])
				count++
			}
		}
		return q.storage.save(state)
	})
	if err != nil {
		return 0, err
	}

	lib.LogQueueEvent(q.logger, "retried", queueID, "count", count)
	return count, nil
}

// RetryStale resets processing entries whose claim is older than the given
// age. Recovers entries stranded by a crash between claim and completion.
func (q *DocumentQueue) RetryStale(olderThan time.Duration) (int, error) {
	count := 0
	cutoff := time.Now().UTC().Add(-olderThan)
	err := q.storage.withLock(func() error {
		state, err := q.storage.load()
		if err != nil {
			return err
		}
		for i := range state.Queue {
			entry := state.Queue[i]
			if entry.Status != models.QueueStatusProcessing {
				continue
			}
			if entry.ProcessingStartedAt != nil && entry.ProcessingStartedAt.After(cutoff) {
				continue
			}
			state.Queue[i] = models.ResetEntryForRetry(entry)
			count++
		}
		return q.storage.save(state)
	})
	if err != nil {
		return 0, err
	}

	if count > 0 {
		lib.LogQueueEvent(q.logger, "stale entries reset", "", "count", count)
	}
	return count, nil
}

// Status summarizes the current queue state
func (q *DocumentQueue) Status() (*models.QueueStats, error) {
	state, err := q.storage.load()
	if err != nil {
		return nil, err
	}
	stats := models.QueueStats{
		TotalActive:    len(state.Queue),
		TotalProcessed: len(state.Processed),
	}
	for _, entry := range state.Queue {
		switch entry.Status {
		case models.QueueStatusPending:
			stats.Pending++
		case models.QueueStatusProcessing:
			stats.Processing++
		case models.QueueStatusFailed:
			stats.Failed++
		}
	}
	return &stats, nil
}

// AllPending returns pending entries in serving order
func (q *DocumentQueue) AllPending() ([]models.QueueEntry, error) {
	return q.filterActive(models.QueueStatusPending)
}

// AllFailed returns failed entries in serving order
func (q *DocumentQueue) AllFailed() ([]models.QueueEntry, error) {
	return q.filterActive(models.QueueStatusFailed)
}

func (q *DocumentQueue) filterActive(status models.QueueEntryStatus) ([]models.QueueEntry, error) {
	state, err := q.storage.load()
	if err != nil {
		return nil, err
	}
	models.SortQueueEntries(state.Queue)
	var out []models.QueueEntry
	for _, entry := range state.Queue {
		if entry.Status == status {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Entries returns the active list in serving order plus the processed archive
func (q *DocumentQueue) Entries() (active []models.QueueEntry, processed []models.QueueEntry, err error) {
	state, err := q.storage.load()
	if err != nil {
		return nil, nil, err
	}
	models.SortQueueEntries(state.Queue)
	return state.Queue, state.Processed, nil
}

// ClearProcessed empties the processed archive and reports how many entries
// were removed. Active entries are untouched.
func (q *DocumentQueue) ClearProcessed() (int, error) {
	count := 0
	err := q.storage.withLock(func() error {
		state, err := q.storage.load()
		if err != nil {
			return err
		}
		count = len(state.Processed)
		state.Processed = []models.QueueEntry{}
		return q.storage.save(state)
	})
	if err != nil {
		return 0, err
	}

	lib.LogQueueEvent(q.logger, "processed cleared", "", "count", count)
	return count, nil
}

// Clear removes every entry, active and processed. Destructive; refuses to
// run unless confirm is set.
func (q *DocumentQueue) Clear(confirm bool) error {
	if !confirm {
		return lib.WrapError(lib.CategoryValidation,
			"refusing to clear the queue without confirmation", nil,
			"Pass --all to remove active entries along with the processed archive")
	}
	err := q.storage.withLock(func() error {
		return q.storage.save(&queueState{
			Queue:     []models.QueueEntry{},
			Processed: []models.QueueEntry{},
		})
	})
	if err != nil {
		return err
	}

	lib.LogQueueEvent(q.logger, "queue cleared", "")
	return nil
}
