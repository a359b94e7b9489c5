package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestNextQueueID_ScansActiveAndProcessed verifies IDs never get reused
// after entries complete
func TestNextQueueID_ScansActiveAndProcessed(t *testing.T) {
	assert.Equal(t, "QUEUE_00001", NextQueueID(nil), "empty queue starts at 1")

	ids := []string{"QUEUE_00001", "QUEUE_00004", "QUEUE_00002"}
	assert.Equal(t, "QUEUE_00005", NextQueueID(ids), "next ID is max+1, not len+1")
}

// TestNextQueueID_IgnoresMalformedIDs verifies foreign or corrupt IDs do not
// break the counter
func TestNextQueueID_IgnoresMalformedIDs(t *testing.T) {
	ids := []string{"QUEUE_00003", "JOB_00099", "QUEUE_abc", ""}
	assert.Equal(t, "QUEUE_00004", NextQueueID(ids))
}

// TestSortQueueEntries_PriorityThenAge verifies the serving order
func TestSortQueueEntries_PriorityThenAge(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	entries := []QueueEntry{
		{ID: "QUEUE_00001", Priority: 5, CreatedAt: base},
		{ID: "QUEUE_00002", Priority: 2, CreatedAt: base.Add(time.Minute)},
		{ID: "QUEUE_00003", Priority: 2, CreatedAt: base},
		{ID: "QUEUE_00004", Priority: 8, CreatedAt: base.Add(-time.Minute)},
	}

	SortQueueEntries(entries)

	got := []string{entries[0].ID, entries[1].ID, entries[2].ID, entries[3].ID}
	assert.Equal(t, []string{"QUEUE_00003", "QUEUE_00002", "QUEUE_00001", "QUEUE_00004"}, got,
		"lower priority first, then older entries")
}

// TestQueueEntryStatus_Transitions covers the entry status graph
func TestQueueEntryStatus_Transitions(t *testing.T) {
	assert.True(t, QueueStatusPending.CanTransitionTo(QueueStatusProcessing))
	assert.True(t, QueueStatusPending.CanTransitionTo(QueueStatusSkipped))
	assert.False(t, QueueStatusPending.CanTransitionTo(QueueStatusCompleted))

	assert.True(t, QueueStatusProcessing.CanTransitionTo(QueueStatusCompleted))
	assert.True(t, QueueStatusProcessing.CanTransitionTo(QueueStatusFailed))
	assert.True(t, QueueStatusProcessing.CanTransitionTo(QueueStatusSkipped))

	assert.True(t, QueueStatusFailed.CanTransitionTo(QueueStatusPending))
	assert.False(t, QueueStatusFailed.CanTransitionTo(QueueStatusProcessing))

	assert.False(t, QueueStatusCompleted.CanTransitionTo(QueueStatusPending))
	assert.False(t, QueueStatusSkipped.CanTransitionTo(QueueStatusPending))
}

// TestQueueEntryStatus_IsTerminal verifies failed entries stay active
func TestQueueEntryStatus_IsTerminal(t *testing.T) {
	assert.True(t, QueueStatusCompleted.IsTerminal())
	assert.True(t, QueueStatusSkipped.IsTerminal())
	assert.False(t, QueueStatusFailed.IsTerminal(), "failed entries remain active for retry")
	assert.False(t, QueueStatusPending.IsTerminal())
	assert.False(t, QueueStatusProcessing.IsTerminal())
}
