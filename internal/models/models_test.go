package models

import (
	"encoding/json"
	"testing"
)

func TestTaskStatus(t *testing.T) {
	tt := []struct {
		name string
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{name: "initializing to fetching", from: TaskInitializing, to: TaskFetching, want: true},
		{name: "fetching to downloading", from: TaskFetching, to: TaskDownloading, want: true},
		{name: "fetching to failed", from: TaskFetching, to: TaskFailed, want: true},
		{name: "downloading to completed", from: TaskDownloading, to: TaskCompleted, want: true},
		{name: "initializing cannot skip to downloading", from: TaskInitializing, to: TaskDownloading, want: false},
		{name: "completed is terminal", from: TaskCompleted, to: TaskFailed, want: false},
		{name: "failed is terminal", from: TaskFailed, to: TaskDownloading, want: false},
		{name: "no going back", from: TaskDownloading, to: TaskFetching, want: false},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.from.CanTransition(tc.to); got != tc.want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}

	t.Run("terminal states", func(t *testing.T) {
		if !TaskCompleted.IsTerminal() || !TaskFailed.IsTerminal() {
			t.Error("completed and failed should be terminal")
		}
		if TaskDownloading.IsTerminal() {
			t.Error("downloading should not be terminal")
		}
	})
}

func TestItemStatus(t *testing.T) {
	tt := []struct {
		name string
		from ItemStatus
		to   ItemStatus
		want bool
	}{
		{name: "pending to checking", from: ItemPending, to: ItemChecking, want: true},
		{name: "checking to skipped", from: ItemChecking, to: ItemSkipped, want: true},
		{name: "checking to downloading", from: ItemChecking, to: ItemDownloading, want: true},
		{name: "downloading to completed", from: ItemDownloading, to: ItemCompleted, want: true},
		{name: "downloading to failed", from: ItemDownloading, to: ItemFailed, want: true},
		{name: "pending cannot download directly", from: ItemPending, to: ItemDownloading, want: false},
		{name: "downloading cannot be skipped", from: ItemDownloading, to: ItemSkipped, want: false},
		{name: "never re-enters pending", from: ItemChecking, to: ItemPending, want: false},
		{name: "completed is terminal", from: ItemCompleted, to: ItemFailed, want: false},
		{name: "skipped is terminal", from: ItemSkipped, to: ItemDownloading, want: false},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.from.CanTransition(tc.to); got != tc.want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}

	t.Run("active states", func(t *testing.T) {
		if !ItemChecking.IsActive() || !ItemDownloading.IsActive() {
			t.Error("checking and downloading should be active")
		}
		if ItemPending.IsActive() || ItemCompleted.IsActive() {
			t.Error("pending and completed should not be active")
		}
	})
}

func TestSnapshot(t *testing.T) {
	s := Snapshot{
		Task: Task{ID: "t1", Status: TaskCompleted},
		Items: []Item{
			{Index: 0, Status: ItemCompleted, Filename: "a_1.mp4"},
			{Index: 1, Status: ItemFailed, Filename: "b_2.mp4"},
			{Index: 2, Status: ItemSkipped, Filename: "c_3.mp4"},
			{Index: 3, Status: ItemCompleted},
		},
	}

	t.Run("Files keeps completed and skipped outputs", func(t *testing.T) {
		files := s.Files()
		if len(files) != 2 || files[0] != "a_1.mp4" || files[1] != "c_3.mp4" {
			t.Errorf("Files() = %v", files)
		}
	})

	t.Run("HasFile", func(t *testing.T) {
		if !s.HasFile("c_3.mp4") {
			t.Error("HasFile(c_3.mp4) = false")
		}
		if s.HasFile("b_2.mp4") {
			t.Error("failed item output should not belong to the task")
		}
	})

	t.Run("messages", func(t *testing.T) {
		status := NewStatusUpdate(s)
		if status.Type != StatusUpdate || status.Data == nil || status.TaskStatus != nil {
			t.Errorf("unexpected status update: %+v", status)
		}
		if !status.Terminal() {
			t.Error("status update of completed task should be terminal")
		}

		progress := NewProgressUpdate(s)
		if progress.Type != ProgressUpdate || progress.TaskStatus == nil || len(progress.Items) != 4 {
			t.Errorf("unexpected progress update: %+v", progress)
		}

		data, err := json.Marshal(progress)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("json.Unmarshal() error = %v", err)
		}
		for _, key := range []string{"type", "task_status", "video_downloads"} {
			if _, ok := decoded[key]; !ok {
				t.Errorf("progress update missing %q key: %s", key, data)
			}
		}
	})
}

func TestTaskRecordValidate(t *testing.T) {
	tt := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{name: "valid", task: Task{ID: "t", Target: "u", Status: TaskCompleted, Total: 1, Completed: 1}},
		{name: "missing id", task: Task{Target: "u", Status: TaskCompleted}, wantErr: true},
		{name: "missing target", task: Task{ID: "t", Status: TaskCompleted}, wantErr: true},
		{name: "not terminal", task: Task{ID: "t", Target: "u", Status: TaskDownloading}, wantErr: true},
		{name: "counters overflow", task: Task{ID: "t", Target: "u", Status: TaskFailed, Total: 1, Failed: 2}, wantErr: true},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			err := NewTaskRecord(Snapshot{Task: tc.task}).Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
