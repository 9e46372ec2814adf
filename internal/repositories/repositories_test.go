package repositories

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/ytfetch/internal/models"
	"github.com/desertthunder/ytfetch/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func newRecord(id string, status models.TaskStatus) *models.TaskRecord {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	started := created.Add(time.Second)
	ended := created.Add(5 * time.Second)

	task := models.Task{
		ID:     id,
		Target: "https://www.youtube.com/@creator/videos",
		Options: models.TaskOptions{
			MaxItems:       3,
			AudioOnly:      true,
			SkipDuplicates: true,
			Quality:        "best",
			ConvertToMP3:   true,
		},
		Status:           status,
		OutputDir:        "/downloads/audio",
		Total:            3,
		Completed:        1,
		Skipped:          1,
		Failed:           1,
		Activity:         "Download completed! 2 successful, 1 skipped (duplicates), 1 failed",
		ArchiveAvailable: true,
		CreatedAt:        created,
		UpdatedAt:        ended,
	}
	items := []models.Item{
		{Index: 0, SourceRef: "https://youtu.be/a", Title: "A", ContentID: "aaaaaaaaaaaa", Status: models.ItemCompleted,
			Progress: 100, DownloadedBytes: 4, TotalBytes: 4, Filename: "A_aaaaaaaaaaaa.mp3", StartedAt: &started, EndedAt: &ended},
		{Index: 1, SourceRef: "https://youtu.be/b", Title: "B", ContentID: "bbbbbbbbbbbb", Status: models.ItemSkipped,
			Progress: 100, Filename: "B_bbbbbbbbbbbb.mp3", SkipReason: "Already exists: B_bbbbbbbbbbbb.mp3"},
		{Index: 2, SourceRef: "https://youtu.be/c", Title: "C", ContentID: "cccccccccccc", Status: models.ItemFailed,
			Error: "ERROR: Private video", StartedAt: &started, EndedAt: &ended},
	}
	return models.NewTaskRecord(models.Snapshot{Task: task, Items: items})
}

func TestTaskRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)
		first, second := newRecord("task-1", models.TaskCompleted), newRecord("task-2", models.TaskCompleted)

		if err := repo.Create(first); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}
		if err := repo.Create(second); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}

		if first.Sequence() != 1 || second.Sequence() != 2 {
			t.Errorf("expected sequences 1 and 2, got %d and %d", first.Sequence(), second.Sequence())
		}
	})

	t.Run("Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)
		rec := newRecord("task-1", models.TaskCompleted)
		if err := repo.Create(rec); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}

		got, err := repo.Get("task-1")
		if err != nil {
			t.Fatalf("failed to get task: %v", err)
		}

		if got.Task.Options != rec.Task.Options {
			t.Errorf("expected options %+v, got %+v", rec.Task.Options, got.Task.Options)
		}
		if got.Task.Status != models.TaskCompleted || got.Task.Activity != rec.Task.Activity {
			t.Errorf("unexpected task state: %s %q", got.Task.Status, got.Task.Activity)
		}
		if got.Task.SuccessCount != 2 || got.Task.Progress != 100 {
			t.Errorf("expected derived success 2 and progress 100, got %d and %v", got.Task.SuccessCount, got.Task.Progress)
		}
		if !got.Task.CreatedAt.Equal(rec.Task.CreatedAt) {
			t.Errorf("expected created_at %v, got %v", rec.Task.CreatedAt, got.Task.CreatedAt)
		}
		if !got.Task.ArchiveAvailable {
			t.Error("expected archive to be available")
		}

		if len(got.Items) != 3 {
			t.Fatalf("expected 3 items, got %d", len(got.Items))
		}
		if got.Items[0].ID != models.ItemID("task-1", 0) || got.Items[0].TaskID != "task-1" {
			t.Errorf("unexpected item identity: %s %s", got.Items[0].ID, got.Items[0].TaskID)
		}
		if got.Items[0].StartedAt == nil || !got.Items[0].StartedAt.Equal(*rec.Items[0].StartedAt) {
			t.Errorf("expected start time to round-trip, got %v", got.Items[0].StartedAt)
		}
		if got.Items[1].StartedAt != nil {
			t.Error("expected skipped item without start time")
		}
		if got.Items[1].SkipReason != rec.Items[1].SkipReason || got.Items[2].Error != rec.Items[2].Error {
			t.Errorf("unexpected item messages: %q %q", got.Items[1].SkipReason, got.Items[2].Error)
		}
		if files := got.Files(); len(files) != 2 {
			t.Errorf("expected 2 output files, got %v", files)
		}
		if len(got.Task.ItemIDs) != 3 {
			t.Errorf("expected 3 item ids, got %v", got.Task.ItemIDs)
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)
		rec := newRecord("task-1", models.TaskCompleted)
		if err := repo.Create(rec); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}

		rec.Task.ArchiveAvailable = false
		rec.Items = rec.Items[:2]
		rec.Task.Failed = 0
		rec.Task.Total = 2
		if err := repo.Update(rec); err != nil {
			t.Fatalf("failed to update task: %v", err)
		}

		got, err := repo.Get("task-1")
		if err != nil {
			t.Fatalf("failed to get task: %v", err)
		}
		if got.Task.ArchiveAvailable || got.Task.Total != 2 || len(got.Items) != 2 {
			t.Errorf("update not applied: archive %v total %d items %d", got.Task.ArchiveAvailable, got.Task.Total, len(got.Items))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)
		if err := repo.Create(newRecord("task-1", models.TaskCompleted)); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}

		if err := repo.Delete("task-1"); err != nil {
			t.Fatalf("failed to delete task: %v", err)
		}

		if _, err := repo.Get("task-1"); !errors.Is(err, shared.ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound for deleted task, got %v", err)
		}
		if err := repo.Delete("task-1"); err == nil {
			t.Error("expected error when deleting twice")
		}
	})

	t.Run("List", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)
		failed := newRecord("task-3", models.TaskFailed)
		failed.Task.Target = "https://www.youtube.com/@other/videos"
		for _, rec := range []*models.TaskRecord{
			newRecord("task-1", models.TaskCompleted),
			newRecord("task-2", models.TaskCompleted),
			failed,
		} {
			if err := repo.Create(rec); err != nil {
				t.Fatalf("failed to create task: %v", err)
			}
		}

		tt := []struct {
			name     string
			criteria map[string]any
			want     []string
		}{
			{name: "all newest first", criteria: map[string]any{}, want: []string{"task-3", "task-2", "task-1"}},
			{name: "by status", criteria: map[string]any{"status": "completed"}, want: []string{"task-2", "task-1"}},
			{name: "by target", criteria: map[string]any{"target": failed.Task.Target}, want: []string{"task-3"}},
			{name: "limit", criteria: map[string]any{"limit": 1}, want: []string{"task-3"}},
		}

		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				got, err := repo.List(tc.criteria)
				if err != nil {
					t.Fatalf("failed to list tasks: %v", err)
				}
				if len(got) != len(tc.want) {
					t.Fatalf("expected %d tasks, got %d", len(tc.want), len(got))
				}
				for i, rec := range got {
					if rec.ID() != tc.want[i] {
						t.Errorf("position %d: expected %s, got %s", i, tc.want[i], rec.ID())
					}
				}
			})
		}
	})
}

func TestTaskRepositoryErrors(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		t.Run("ValidationError", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewTaskRepository(db)
			if err := repo.Create(newRecord("task-1", models.TaskDownloading)); err == nil {
				t.Fatal("expected validation error for a running task")
			}
		})

		t.Run("DuplicateID", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewTaskRepository(db)
			if err := repo.Create(newRecord("task-1", models.TaskCompleted)); err != nil {
				t.Fatalf("failed to create task: %v", err)
			}
			if err := repo.Create(newRecord("task-1", models.TaskCompleted)); err == nil {
				t.Fatal("expected error when creating a task with a duplicate id")
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		if _, err := NewTaskRepository(db).Get("nonexistent-id"); !errors.Is(err, shared.ErrTaskNotFound) {
			t.Fatalf("expected ErrTaskNotFound, got %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		if err := NewTaskRepository(db).Update(newRecord("nonexistent-id", models.TaskCompleted)); err == nil {
			t.Fatal("expected error when updating nonexistent task")
		}
	})

	t.Run("ClosedDatabase", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewTaskRepository(db)
		db.Close()

		if _, err := repo.List(nil); err == nil {
			t.Fatal("expected error listing from a closed database")
		}
		if err := repo.Create(newRecord("task-1", models.TaskCompleted)); err == nil {
			t.Fatal("expected error creating in a closed database")
		}
	})
}
