package tasks

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/ytfetch/internal/models"
	"github.com/desertthunder/ytfetch/internal/services"
	"github.com/desertthunder/ytfetch/internal/shared"
)

func TestRegistry(t *testing.T) {
	t.Run("Create registers an initializing task", func(t *testing.T) {
		reg := NewRegistry()
		task := reg.Create("https://www.youtube.com/@creator/videos", models.TaskOptions{MaxItems: 5}, t.TempDir())

		if task.ID == "" {
			t.Fatal("Create() returned an empty id")
		}
		if task.Status != models.TaskInitializing {
			t.Errorf("Status = %s, want initializing", task.Status)
		}
		if task.Total != 5 {
			t.Errorf("Total = %d, want requested maximum 5", task.Total)
		}
		if task.Activity != startingActivity {
			t.Errorf("Activity = %q, want %q", task.Activity, startingActivity)
		}
		if reg.Len() != 1 {
			t.Errorf("Len() = %d, want 1", reg.Len())
		}
	})

	t.Run("task transitions", func(t *testing.T) {
		tt := []struct {
			name    string
			path    []models.TaskStatus
			wantErr error
		}{
			{name: "happy path", path: []models.TaskStatus{models.TaskFetching, models.TaskDownloading, models.TaskCompleted}},
			{name: "cannot skip fetching", path: []models.TaskStatus{models.TaskDownloading}, wantErr: shared.ErrInvalidTransition},
			{name: "no going back", path: []models.TaskStatus{models.TaskFetching, models.TaskInitializing}, wantErr: shared.ErrInvalidTransition},
			{name: "terminal is final", path: []models.TaskStatus{models.TaskFetching, models.TaskFailed, models.TaskDownloading}, wantErr: shared.ErrTerminalState},
		}

		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				reg := NewRegistry()
				task := reg.Create("https://example.com/list", models.TaskOptions{MaxItems: 1}, t.TempDir())

				var err error
				for _, next := range tc.path {
					if err = reg.SetStatus(task.ID, next, ""); err != nil {
						break
					}
				}
				if tc.wantErr == nil && err != nil {
					t.Fatalf("SetStatus() error = %v", err)
				}
				if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
					t.Fatalf("SetStatus() error = %v, want %v", err, tc.wantErr)
				}
			})
		}
	})

	t.Run("unknown task", func(t *testing.T) {
		reg := NewRegistry()
		if err := reg.SetStatus("missing", models.TaskFetching, ""); !errors.Is(err, shared.ErrTaskNotFound) {
			t.Errorf("SetStatus() error = %v, want ErrTaskNotFound", err)
		}
		if _, err := reg.Snapshot("missing"); !errors.Is(err, shared.ErrTaskNotFound) {
			t.Errorf("Snapshot() error = %v, want ErrTaskNotFound", err)
		}
	})

	t.Run("AddItems registers pending items with display titles", func(t *testing.T) {
		reg := NewRegistry()
		task := reg.Create("https://example.com/list", models.TaskOptions{MaxItems: 10}, t.TempDir())

		long := strings.Repeat("é", 150)
		items, err := reg.AddItems(task.ID, []services.ResolvedItem{
			{SourceRef: "https://example.com/1", Title: "  "},
			{SourceRef: "https://example.com/2", Title: long},
		})
		if err != nil {
			t.Fatalf("AddItems() error = %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("AddItems() returned %d items, want 2", len(items))
		}
		if items[0].Title != unknownTitle {
			t.Errorf("blank title = %q, want %q", items[0].Title, unknownTitle)
		}
		if n := len([]rune(items[1].Title)); n != maxTitleRunes {
			t.Errorf("long title has %d runes, want %d", n, maxTitleRunes)
		}
		for i, it := range items {
			if it.Status != models.ItemPending || it.Index != i || it.ID != models.ItemID(task.ID, i) {
				t.Errorf("item %d = %+v", i, it)
			}
		}

		snap, _ := reg.Snapshot(task.ID)
		if snap.Task.Total != 2 {
			t.Errorf("Total = %d, want resolved count 2", snap.Task.Total)
		}
		if len(snap.Task.ItemIDs) != 2 {
			t.Errorf("ItemIDs = %v", snap.Task.ItemIDs)
		}

		if _, err := reg.AddItems(task.ID, resolvedItems(1)); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("second AddItems() error = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("item transitions", func(t *testing.T) {
		tt := []struct {
			name    string
			path    []models.ItemStatus
			wantErr bool
		}{
			{name: "download", path: []models.ItemStatus{models.ItemChecking, models.ItemDownloading, models.ItemCompleted}},
			{name: "skip", path: []models.ItemStatus{models.ItemChecking, models.ItemSkipped}},
			{name: "fail while downloading", path: []models.ItemStatus{models.ItemChecking, models.ItemDownloading, models.ItemFailed}},
			{name: "pending cannot download", path: []models.ItemStatus{models.ItemDownloading}, wantErr: true},
			{name: "completed is final", path: []models.ItemStatus{models.ItemChecking, models.ItemDownloading, models.ItemCompleted, models.ItemFailed}, wantErr: true},
		}

		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				reg := NewRegistry()
				task, _ := newDownloadingTask(t, reg, t.TempDir(), 1)

				var err error
				for _, next := range tc.path {
					if err = reg.TransitionItem(task.ID, 0, next, nil); err != nil {
						break
					}
				}
				if (err != nil) != tc.wantErr {
					t.Fatalf("TransitionItem() error = %v, wantErr %v", err, tc.wantErr)
				}
				if tc.wantErr && !errors.Is(err, shared.ErrInvalidTransition) {
					t.Errorf("TransitionItem() error = %v, want ErrInvalidTransition", err)
				}
			})
		}

		t.Run("out of range", func(t *testing.T) {
			reg := NewRegistry()
			task, _ := newDownloadingTask(t, reg, t.TempDir(), 1)
			if err := reg.TransitionItem(task.ID, 3, models.ItemChecking, nil); !errors.Is(err, shared.ErrItemNotFound) {
				t.Errorf("TransitionItem() error = %v, want ErrItemNotFound", err)
			}
		})
	})

	t.Run("counters follow item statuses", func(t *testing.T) {
		reg := NewRegistry()
		task, _ := newDownloadingTask(t, reg, t.TempDir(), 4)

		steps := []struct {
			index int
			next  models.ItemStatus
		}{
			{0, models.ItemChecking}, {0, models.ItemDownloading}, {0, models.ItemCompleted},
			{1, models.ItemChecking}, {1, models.ItemSkipped},
			{2, models.ItemChecking}, {2, models.ItemDownloading}, {2, models.ItemFailed},
			{3, models.ItemChecking}, {3, models.ItemDownloading},
		}
		for _, s := range steps {
			if err := reg.TransitionItem(task.ID, s.index, s.next, nil); err != nil {
				t.Fatalf("TransitionItem(%d, %s) error = %v", s.index, s.next, err)
			}
			snap, _ := reg.Snapshot(task.ID)
			assertCounters(t, snap.Task)
		}

		snap, _ := reg.Snapshot(task.ID)
		got := snap.Task
		if got.Completed != 1 || got.Skipped != 1 || got.Failed != 1 || got.Downloading != 1 {
			t.Errorf("counters = completed %d skipped %d failed %d downloading %d",
				got.Completed, got.Skipped, got.Failed, got.Downloading)
		}
		if got.SuccessCount != 2 {
			t.Errorf("SuccessCount = %d, want completed plus skipped", got.SuccessCount)
		}
		if got.ActiveDownloads != 1 {
			t.Errorf("ActiveDownloads = %d, want 1", got.ActiveDownloads)
		}
		if got.Progress != 75 {
			t.Errorf("Progress = %v, want 75", got.Progress)
		}
		if want := waveActivity(1, 2, 1); got.Activity != want {
			t.Errorf("Activity = %q, want %q", got.Activity, want)
		}
	})

	t.Run("UpdateProgress", func(t *testing.T) {
		reg := NewRegistry()
		task, _ := newDownloadingTask(t, reg, t.TempDir(), 2)

		if err := reg.UpdateProgress(task.ID, 0, services.Progress{DownloadedBytes: 1, TotalBytes: 2}); !errors.Is(err, shared.ErrInvalidTransition) {
			t.Errorf("UpdateProgress() on pending item error = %v, want ErrInvalidTransition", err)
		}

		_ = reg.TransitionItem(task.ID, 0, models.ItemChecking, nil)
		_ = reg.TransitionItem(task.ID, 0, models.ItemDownloading, nil)
		err := reg.UpdateProgress(task.ID, 0, services.Progress{
			DownloadedBytes: 512, TotalBytes: 2048, Rate: 2048, ETA: 90 * time.Second,
		})
		if err != nil {
			t.Fatalf("UpdateProgress() error = %v", err)
		}

		snap, _ := reg.Snapshot(task.ID)
		it := snap.Items[0]
		if it.Progress != 25 {
			t.Errorf("item Progress = %v, want 25", it.Progress)
		}
		if it.Fraction() != 0.25 {
			t.Errorf("item Fraction() = %v, want 0.25", it.Fraction())
		}
		if it.ETA != "1:30" {
			t.Errorf("item ETA = %q, want 1:30", it.ETA)
		}
		if it.Rate == "" {
			t.Error("item Rate should be formatted")
		}
		if snap.Task.Rate != it.Rate || snap.Task.ETA != it.ETA {
			t.Errorf("task rate/eta = %q/%q, want the downloading item's %q/%q", snap.Task.Rate, snap.Task.ETA, it.Rate, it.ETA)
		}
	})

	t.Run("Abort fails unfinished items", func(t *testing.T) {
		reg := NewRegistry()
		task, _ := newDownloadingTask(t, reg, t.TempDir(), 3)
		_ = reg.TransitionItem(task.ID, 0, models.ItemChecking, nil)
		_ = reg.TransitionItem(task.ID, 0, models.ItemSkipped, nil)
		_ = reg.TransitionItem(task.ID, 1, models.ItemChecking, nil)

		n, err := reg.Abort(task.ID, "cancelled")
		if err != nil {
			t.Fatalf("Abort() error = %v", err)
		}
		if n != 2 {
			t.Errorf("Abort() = %d, want 2", n)
		}

		if err := reg.Fail(task.ID, "Error: cancelled"); err != nil {
			t.Fatalf("Fail() error = %v", err)
		}
		snap, _ := reg.Snapshot(task.ID)
		assertCounters(t, snap.Task)
		if snap.Task.Status != models.TaskFailed || snap.Task.ErrorMessage != "Error: cancelled" {
			t.Errorf("task = %s %q", snap.Task.Status, snap.Task.ErrorMessage)
		}
		if snap.Items[0].Status != models.ItemSkipped {
			t.Errorf("skipped item became %s", snap.Items[0].Status)
		}
		for _, it := range snap.Items[1:] {
			if it.Status != models.ItemFailed || it.Error != "cancelled" {
				t.Errorf("item %d = %s %q", it.Index, it.Status, it.Error)
			}
		}
		if err := reg.Fail(task.ID, "again"); !errors.Is(err, shared.ErrTerminalState) {
			t.Errorf("second Fail() error = %v, want ErrTerminalState", err)
		}
	})

	t.Run("failed before resolution has no items", func(t *testing.T) {
		reg := NewRegistry()
		task := reg.Create("https://example.com/list", models.TaskOptions{MaxItems: 10}, t.TempDir())
		_ = reg.SetStatus(task.ID, models.TaskFetching, "")
		_ = reg.Fail(task.ID, "Error: boom")

		snap, _ := reg.Snapshot(task.ID)
		if snap.Task.Total != 0 {
			t.Errorf("Total = %d, want 0", snap.Task.Total)
		}
		assertCounters(t, snap.Task)
	})

	t.Run("Snapshot is a deep copy", func(t *testing.T) {
		reg := NewRegistry()
		task, _ := newDownloadingTask(t, reg, t.TempDir(), 1)
		started := time.Now()
		_ = reg.TransitionItem(task.ID, 0, models.ItemChecking, nil)
		_ = reg.TransitionItem(task.ID, 0, models.ItemDownloading, func(i *models.Item) { i.StartedAt = &started })

		snap, _ := reg.Snapshot(task.ID)
		snap.Items[0].Title = "changed"
		snap.Task.ItemIDs[0] = "changed"
		*snap.Items[0].StartedAt = time.Time{}

		again, _ := reg.Snapshot(task.ID)
		if again.Items[0].Title == "changed" || again.Task.ItemIDs[0] == "changed" {
			t.Error("mutating a snapshot changed the registry")
		}
		if again.Items[0].StartedAt.IsZero() {
			t.Error("snapshot shares StartedAt with the registry")
		}
	})

	t.Run("List and Evict", func(t *testing.T) {
		reg := NewRegistry()
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		tick := 0
		reg.now = func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Minute)
		}

		first := reg.Create("https://example.com/a", models.TaskOptions{MaxItems: 1}, t.TempDir())
		second := reg.Create("https://example.com/b", models.TaskOptions{MaxItems: 1}, t.TempDir())

		list := reg.List()
		if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
			t.Fatalf("List() order = %v, want newest first", []string{list[0].ID, list[1].ID})
		}

		if !reg.Evict(first.ID) {
			t.Error("Evict() = false for a registered task")
		}
		if reg.Evict(first.ID) {
			t.Error("Evict() = true for an evicted task")
		}
		if reg.Len() != 1 {
			t.Errorf("Len() = %d, want 1", reg.Len())
		}
	})
}

func TestActivity(t *testing.T) {
	tt := []struct {
		name string
		got  string
		want string
	}{
		{name: "start video", got: startDownloadActivity(3, false, false), want: "Starting download of 3 video files..."},
		{name: "start audio with dedupe", got: startDownloadActivity(2, true, true), want: "Starting download of 2 audio files (checking for duplicates)..."},
		{name: "wave", got: waveActivity(2, 1, 0), want: "2 downloading, 1 completed, 0 failed"},
		{name: "all successful", got: completedActivity(3, 0, 0), want: "Download completed! 3 successful"},
		{name: "with skips and failures", got: completedActivity(3, 1, 2), want: "Download completed! 3 successful, 1 skipped (duplicates), 2 failed"},
		{name: "failure", got: failedActivity(errors.New("boom")), want: "Error: boom"},
		{name: "skip reason", got: skipReason("a_1.mp4"), want: "Already exists: a_1.mp4"},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %q, want %q", tc.got, tc.want)
			}
		})
	}
}
