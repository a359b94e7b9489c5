package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// QueueEntry is an ephemeral work ticket, distinct from the durable
// DocumentRecord it eventually points to.
type QueueEntry struct {
	ID                  string           `json:"id"`
	DocumentID          string           `json:"document_id,omitempty"` // set after intake
	SourcePath          string           `json:"source_path"`
	SourceType          SourceType       `json:"source_type"`
	Status              QueueEntryStatus `json:"status"`
	Priority            int              `json:"priority"` // lower = served first
	ParentID            string           `json:"parent_id,omitempty"`
	Metadata            map[string]any   `json:"metadata,omitempty"`
	Error               string           `json:"error,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	ProcessingStartedAt *time.Time       `json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time       `json:"completed_at,omitempty"`
	FailedAt            *time.Time       `json:"failed_at,omitempty"`
	SkippedAt           *time.Time       `json:"skipped_at,omitempty"`
	RetriedAt           *time.Time       `json:"retried_at,omitempty"`
}

// SourceType records how an entry reached the queue
type SourceType string

const (
	SourceManual        SourceType = "manual"
	SourceDirectoryScan SourceType = "directory_scan"
	SourceChildCreation SourceType = "child_creation"
)

// IsValidSourceType checks if the source type is recognized
func IsValidSourceType(t SourceType) bool {
	return t == SourceManual || t == SourceDirectoryScan || t == SourceChildCreation
}

// QueueEntryStatus defines the lifecycle state of a queue entry
type QueueEntryStatus string

const (
	QueueStatusPending    QueueEntryStatus = "pending"
	QueueStatusProcessing QueueEntryStatus = "processing"
	QueueStatusCompleted  QueueEntryStatus = "completed"
	QueueStatusFailed     QueueEntryStatus = "failed"
	QueueStatusSkipped    QueueEntryStatus = "skipped"
)

// IsValidQueueEntryStatus checks if the queue status is recognized
func IsValidQueueEntryStatus(s QueueEntryStatus) bool {
	switch s {
	case QueueStatusPending, QueueStatusProcessing, QueueStatusCompleted, QueueStatusFailed, QueueStatusSkipped:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status removes an entry from the active list.
// Failed entries stay active so they remain eligible for retry.
func (s QueueEntryStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusSkipped
}

// CanTransitionTo checks if a queue entry status transition is valid
// Valid transitions:
//
//	pending    -> processing | skipped
//	processing -> completed | failed | skipped
//	failed     -> pending (retry)
func (s QueueEntryStatus) CanTransitionTo(next QueueEntryStatus) bool {
	switch s {
	case QueueStatusPending:
		return next == QueueStatusProcessing || next == QueueStatusSkipped
	case QueueStatusProcessing:
		return next == QueueStatusCompleted || next == QueueStatusFailed || next == QueueStatusSkipped
	case QueueStatusFailed:
		return next == QueueStatusPending
	default:
		return false
	}
}

const queueIDPrefix = "QUEUE_"

// NextQueueID generates a monotonically increasing queue ID by scanning the
// numeric suffix of every existing ID. Both active and processed IDs must be
// passed in; scanning only the active list would reuse IDs after completion.
// Format: QUEUE_00001
func NextQueueID(existingIDs []string) string {
	maxNum := 0
	for _, id := range existingIDs {
		if !strings.HasPrefix(id, queueIDPrefix) {
			continue
		}
		num, err := strconv.Atoi(strings.TrimPrefix(id, queueIDPrefix))
		if err != nil {
			continue
		}
		if num > maxNum {
			maxNum = num
		}
	}
	return fmt.Sprintf("%s%05d", queueIDPrefix, maxNum+1)
}

// SortQueueEntries orders the active list by (priority, created_at) ascending.
// Stable sort preserves submission order for entries created in the same
// instant.
func SortQueueEntries(entries []QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority < entries[j].Priority
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}

// QueueStats summarizes queue state for callers
type QueueStats struct {
	Pending        int `json:"pending"`
	Processing     int `json:"processing"`
	Failed         int `json:"failed"`
	TotalActive    int `json:"total_active"`
	TotalProcessed int `json:"total_processed"`
}
