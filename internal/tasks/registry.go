package tasks

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/desertthunder/ytfetch/internal/models"
	"github.com/desertthunder/ytfetch/internal/services"
	"github.com/desertthunder/ytfetch/internal/shared"
)

// Registry is the process-wide store of tasks and their items.
//
// Every read and write happens under a single mutex, and aggregate counters are only ever
// produced by recomputeCounters, so no caller sees an item change without matching counters.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*entry
	now   func() time.Time
}

type entry struct {
	task  models.Task
	items []models.Item
}

// NewRegistry creates an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*entry), now: time.Now}
}

// Create registers a new task in the initializing state and returns its view.
func (r *Registry) Create(target string, opts models.TaskOptions, outputDir string) models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	e := &entry{task: models.Task{
		ID:        shared.GenerateID(),
		Target:    target,
		Options:   opts,
		Status:    models.TaskInitializing,
		OutputDir: outputDir,
		Total:     opts.MaxItems,
		Activity:  startingActivity,
		ItemIDs:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}}
	r.tasks[e.task.ID] = e
	return e.task
}

// SetStatus moves a task to next and records activity as its current activity.
func (r *Registry) SetStatus(taskID string, next models.TaskStatus, activity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(taskID)
	if err != nil {
		return err
	}
	if e.task.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", shared.ErrTerminalState, taskID, e.task.Status)
	}
	if !e.task.Status.CanTransition(next) {
		return fmt.Errorf("%w: task %s -> %s", shared.ErrInvalidTransition, e.task.Status, next)
	}

	e.task.Status = next
	r.recomputeCounters(e)
	if activity != "" {
		e.task.Activity = activity
	}
	return nil
}

// Fail moves a task to failed with message as both its error and its activity.
func (r *Registry) Fail(taskID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(taskID)
	if err != nil {
		return err
	}
	if e.task.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", shared.ErrTerminalState, taskID, e.task.Status)
	}

	e.task.Status = models.TaskFailed
	e.task.ErrorMessage = message
	e.task.Activity = message
	r.recomputeCounters(e)
	return nil
}

// AddItems registers the resolved items of a task, all pending, replacing the requested total.
func (r *Registry) AddItems(taskID string, resolved []services.ResolvedItem) ([]models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(taskID)
	if err != nil {
		return nil, err
	}
	if e.task.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", shared.ErrTerminalState, taskID, e.task.Status)
	}
	if len(e.items) > 0 {
		return nil, fmt.Errorf("%w: items already registered for %s", shared.ErrInvalidInput, taskID)
	}

	e.items = make([]models.Item, len(resolved))
	e.task.ItemIDs = make([]string, len(resolved))
	for i, ri := range resolved {
		id := models.ItemID(taskID, i)
		e.items[i] = models.Item{
			ID:        id,
			TaskID:    taskID,
			Index:     i,
			SourceRef: ri.SourceRef,
			Title:     displayTitle(ri.Title),
			ContentID: ri.ContentID,
			Status:    models.ItemPending,
			ETA:       "Unknown",
		}
		e.task.ItemIDs[i] = id
	}
	r.recomputeCounters(e)
	return copyItems(e.items), nil
}

// TransitionItem moves item index of a task to next, applying mutate to the item while the lock
// is held. mutate cannot change the status.
func (r *Registry) TransitionItem(taskID string, index int, next models.ItemStatus, mutate func(*models.Item)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, it, err := r.item(taskID, index)
	if err != nil {
		return err
	}
	if !it.Status.CanTransition(next) {
		return fmt.Errorf("%w: item %s %s -> %s", shared.ErrInvalidTransition, it.ID, it.Status, next)
	}

	if mutate != nil {
		mutate(it)
	}
	it.Status = next
	r.recomputeCounters(e)
	return nil
}

// UpdateProgress records a partial transfer for an item that is downloading.
func (r *Registry) UpdateProgress(taskID string, index int, p services.Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, it, err := r.item(taskID, index)
	if err != nil {
		return err
	}
	if it.Status != models.ItemDownloading {
		return fmt.Errorf("%w: item %s is %s", shared.ErrInvalidTransition, it.ID, it.Status)
	}

	if p.DownloadedBytes > 0 {
		it.DownloadedBytes = p.DownloadedBytes
	}
	if p.TotalBytes > 0 {
		it.TotalBytes = p.TotalBytes
	}
	if it.TotalBytes > 0 {
		it.Progress = float64(it.DownloadedBytes) / float64(it.TotalBytes) * 100
		if it.Progress > 100 {
			it.Progress = 100
		}
	}
	it.RateBytes = p.Rate
	it.Rate = shared.FormatRate(p.Rate)
	it.ETADuration = p.ETA
	it.ETA = shared.FormatETA(p.ETA)
	r.recomputeCounters(e)
	return nil
}

// Abort fails every item that has not reached a terminal state, with message as the error.
// It returns the number of items failed.
func (r *Registry) Abort(taskID, message string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(taskID)
	if err != nil {
		return 0, err
	}

	now := r.now()
	n := 0
	for i := range e.items {
		it := &e.items[i]
		if it.Status.IsTerminal() {
			continue
		}
		it.Status = models.ItemFailed
		it.Error = message
		it.EndedAt = &now
		n++
	}
	r.recomputeCounters(e)
	return n, nil
}

// SetArchiveAvailable records whether a task archive can be downloaded.
func (r *Registry) SetArchiveAvailable(taskID string, ok bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(taskID)
	if err != nil {
		return err
	}
	e.task.ArchiveAvailable = ok
	e.task.UpdatedAt = r.now()
	return nil
}

// Snapshot returns a deep copy of a task and its items.
func (r *Registry) Snapshot(taskID string) (models.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(taskID)
	if err != nil {
		return models.Snapshot{}, err
	}
	return snapshotOf(e), nil
}

// List returns every task view, newest first.
func (r *Registry) List() []models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Task, 0, len(r.tasks))
	for _, e := range r.tasks {
		out = append(out, copyTask(e.task))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Evict removes a task and its items, reporting whether it existed.
func (r *Registry) Evict(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[taskID]; !ok {
		return false
	}
	delete(r.tasks, taskID)
	return true
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func (r *Registry) lookup(taskID string) (*entry, error) {
	e, ok := r.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, taskID)
	}
	return e, nil
}

func (r *Registry) item(taskID string, index int) (*entry, *models.Item, error) {
	e, err := r.lookup(taskID)
	if err != nil {
		return nil, nil, err
	}
	if index < 0 || index >= len(e.items) {
		return nil, nil, fmt.Errorf("%w: %s", shared.ErrItemNotFound, models.ItemID(taskID, index))
	}
	return e, &e.items[index], nil
}

// recomputeCounters derives every aggregate field of a task from its item statuses.
// Callers must hold r.mu.
func (r *Registry) recomputeCounters(e *entry) {
	var completed, failed, skipped, checking, downloading int
	rate, eta := "", ""
	for _, it := range e.items {
		switch it.Status {
		case models.ItemCompleted:
			completed++
		case models.ItemFailed:
			failed++
		case models.ItemSkipped:
			skipped++
		case models.ItemChecking:
			checking++
		case models.ItemDownloading:
			downloading++
			if rate == "" && it.RateBytes > 0 {
				rate, eta = it.Rate, it.ETA
			}
		}
	}

	t := &e.task
	if len(e.items) > 0 || t.Status.IsTerminal() {
		t.Total = len(e.items)
	}
	t.Completed = completed
	t.Failed = failed
	t.Skipped = skipped
	t.Checking = checking
	t.Downloading = downloading
	t.ActiveDownloads = downloading
	t.SuccessCount = completed + skipped
	t.Rate = rate
	t.ETA = eta

	t.Progress = 0
	if t.Total > 0 && len(e.items) > 0 {
		t.Progress = float64(t.Finished()) / float64(t.Total) * 100
	}
	if t.Status == models.TaskDownloading {
		t.Activity = waveActivity(downloading, t.SuccessCount, failed)
	}
	t.UpdatedAt = r.now()
}

func snapshotOf(e *entry) models.Snapshot {
	return models.Snapshot{Task: copyTask(e.task), Items: copyItems(e.items)}
}

func copyTask(t models.Task) models.Task {
	ids := make([]string, len(t.ItemIDs))
	copy(ids, t.ItemIDs)
	t.ItemIDs = ids
	return t
}

func copyItems(items []models.Item) []models.Item {
	out := make([]models.Item, len(items))
	for i, it := range items {
		if it.StartedAt != nil {
			at := *it.StartedAt
			it.StartedAt = &at
		}
		if it.EndedAt != nil {
			at := *it.EndedAt
			it.EndedAt = &at
		}
		out[i] = it
	}
	return out
}
