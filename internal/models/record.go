package models

import (
	"fmt"
	"time"
)

var _ Model = (*TaskRecord)(nil)

// TaskRecord is the persisted form of a task that reached a terminal state.
type TaskRecord struct {
	Snapshot
	sequence  int
	deletedAt *time.Time
}

// NewTaskRecord wraps a snapshot for persistence.
func NewTaskRecord(s Snapshot) *TaskRecord {
	return &TaskRecord{Snapshot: s}
}

func (r *TaskRecord) ID() string           { return r.Task.ID }
func (r *TaskRecord) CreatedAt() time.Time { return r.Task.CreatedAt }
func (r *TaskRecord) UpdatedAt() time.Time { return r.Task.UpdatedAt }

func (r *TaskRecord) Sequence() int             { return r.sequence }
func (r *TaskRecord) SetSequence(seq int)       { r.sequence = seq }
func (r *TaskRecord) DeletedAt() *time.Time     { return r.deletedAt }
func (r *TaskRecord) SetDeletedAt(t *time.Time) { r.deletedAt = t }
func (r *TaskRecord) SetUpdatedAt(t time.Time)  { r.Task.UpdatedAt = t }

// Validate requires an identified, targeted task in a terminal state whose counters fit its items.
func (r *TaskRecord) Validate() error {
	switch {
	case r.Task.ID == "":
		return fmt.Errorf("task id is required")
	case r.Task.Target == "":
		return fmt.Errorf("task target is required")
	case !r.Task.Status.IsTerminal():
		return fmt.Errorf("task status %q is not terminal", r.Task.Status)
	case r.Task.Finished() > r.Task.Total:
		return fmt.Errorf("task counters exceed total (%d > %d)", r.Task.Finished(), r.Task.Total)
	}
	for _, it := range r.Items {
		if !it.Status.Valid() {
			return fmt.Errorf("item %d has invalid status %q", it.Index, it.Status)
		}
	}
	return nil
}
