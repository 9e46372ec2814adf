package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ytfetch/internal/models"
	"github.com/desertthunder/ytfetch/internal/shared"
)

var _ models.Repository[*models.TaskRecord] = (*TaskRepository)(nil)

const taskColumns = `
	id, sequence, target, status, audio_only, skip_duplicates, max_items, quality, convert_to_mp3,
	output_dir, total, completed, failed, skipped, activity, error_message, archive_available,
	created_at, updated_at, deleted_at`

const itemColumns = `
	position, source_ref, title, content_id, status, progress, downloaded_bytes, total_bytes,
	filename, error_message, skip_reason, started_at, ended_at`

// TaskRepository implements [models.Repository] for [models.TaskRecord] persistence.
//
// A record is stored as one tasks row plus one task_items row per item, written in a single
// transaction.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new [TaskRepository] with the given database connection
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a task and its items with a generated sequence
func (r *TaskRepository) Create(rec *models.TaskRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "tasks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	rec.SetSequence(sequence)

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	t := rec.Task
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`
	_, err = tx.Exec(query,
		t.ID,
		sequence,
		t.Target,
		string(t.Status),
		t.Options.AudioOnly,
		t.Options.SkipDuplicates,
		t.Options.MaxItems,
		t.Options.Quality,
		t.Options.ConvertToMP3,
		t.OutputDir,
		t.Total,
		t.Completed,
		t.Failed,
		t.Skipped,
		t.Activity,
		nullString(t.ErrorMessage),
		t.ArchiveAvailable,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	if err := insertItems(tx, t.ID, rec.Items); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task: %w", err)
	}
	return nil
}

// Get retrieves a task and its items by ID, excluding soft-deleted tasks
func (r *TaskRepository) Get(id string) (*models.TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ? AND deleted_at IS NULL`

	rec, err := scanTask(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	items, err := r.items(id)
	if err != nil {
		return nil, err
	}
	rec.Items = items
	rec.Task.ItemIDs = make([]string, len(items))
	for i, it := range items {
		rec.Task.ItemIDs[i] = it.ID
	}
	return rec, nil
}

// Update rewrites a task row and replaces its items
func (r *TaskRepository) Update(rec *models.TaskRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	rec.SetUpdatedAt(now)

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	t := rec.Task
	query := `
		UPDATE tasks
		SET status = ?, total = ?, completed = ?, failed = ?, skipped = ?, activity = ?,
			error_message = ?, archive_available = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	result, err := tx.Exec(query,
		string(t.Status),
		t.Total,
		t.Completed,
		t.Failed,
		t.Skipped,
		t.Activity,
		nullString(t.ErrorMessage),
		t.ArchiveAvailable,
		now,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s not found or already deleted", shared.ErrTaskNotFound, t.ID)
	}

	if _, err := tx.Exec(`DELETE FROM task_items WHERE task_id = ?`, t.ID); err != nil {
		return fmt.Errorf("failed to clear task items: %w", err)
	}
	if err := insertItems(tx, t.ID, rec.Items); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task: %w", err)
	}
	return nil
}

// Delete soft-deletes a task by ID
func (r *TaskRepository) Delete(id string) error {
	query := `
		UPDATE tasks
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s not found or already deleted", shared.ErrTaskNotFound, id)
	}
	return nil
}

// List retrieves tasks matching criteria, newest first, without their items.
//
// Supported criteria: "status" (string), "target" (string) and "limit" (int).
func (r *TaskRepository) List(criteria map[string]any) ([]*models.TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE deleted_at IS NULL`
	args := []any{}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if target, ok := criteria["target"].(string); ok && target != "" {
		query += " AND target = ?"
		args = append(args, target)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var records []*models.TaskRecord
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

func (r *TaskRepository) items(taskID string) ([]models.Item, error) {
	query := `SELECT task_id, ` + itemColumns + ` FROM task_items WHERE task_id = ? ORDER BY position ASC`

	rows, err := r.db.Query(query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task items: %w", err)
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		var owner string
		it, err := scanItem(rows, &owner)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task item: %w", err)
		}
		it.TaskID = owner
		it.ID = models.ItemID(owner, it.Index)
		items = append(items, *it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func insertItems(tx *sql.Tx, taskID string, items []models.Item) error {
	if len(items) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(`INSERT INTO task_items (task_id, ` + itemColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		_, err := stmt.Exec(
			taskID,
			it.Index,
			it.SourceRef,
			it.Title,
			it.ContentID,
			string(it.Status),
			it.Progress,
			it.DownloadedBytes,
			it.TotalBytes,
			it.Filename,
			it.Error,
			it.SkipReason,
			nullTime(it.StartedAt),
			nullTime(it.EndedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert item %d: %w", it.Index, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*models.TaskRecord, error) {
	var (
		t         models.Task
		sequence  int
		status    string
		errMsg    sql.NullString
		deletedAt sql.NullTime
	)

	err := s.Scan(
		&t.ID, &sequence, &t.Target, &status,
		&t.Options.AudioOnly, &t.Options.SkipDuplicates, &t.Options.MaxItems, &t.Options.Quality, &t.Options.ConvertToMP3,
		&t.OutputDir, &t.Total, &t.Completed, &t.Failed, &t.Skipped, &t.Activity, &errMsg, &t.ArchiveAvailable,
		&t.CreatedAt, &t.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = models.TaskStatus(status)
	t.ErrorMessage = errMsg.String
	t.SuccessCount = t.Completed + t.Skipped
	t.ItemIDs = []string{}
	if t.Total > 0 {
		t.Progress = float64(t.Finished()) / float64(t.Total) * 100
	}

	rec := models.NewTaskRecord(models.Snapshot{Task: t, Items: []models.Item{}})
	rec.SetSequence(sequence)
	if deletedAt.Valid {
		rec.SetDeletedAt(&deletedAt.Time)
	}
	return rec, nil
}

func scanItem(s scanner, taskID *string) (*models.Item, error) {
	var (
		it        models.Item
		status    string
		startedAt sql.NullTime
		endedAt   sql.NullTime
	)

	err := s.Scan(
		taskID, &it.Index, &it.SourceRef, &it.Title, &it.ContentID, &status, &it.Progress,
		&it.DownloadedBytes, &it.TotalBytes, &it.Filename, &it.Error, &it.SkipReason, &startedAt, &endedAt,
	)
	if err != nil {
		return nil, err
	}

	it.Status = models.ItemStatus(status)
	if startedAt.Valid {
		it.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		it.EndedAt = &endedAt.Time
	}
	return &it, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
