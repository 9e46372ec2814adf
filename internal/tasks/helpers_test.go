package tasks

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytfetch/internal/dedupe"
	"github.com/desertthunder/ytfetch/internal/models"
	"github.com/desertthunder/ytfetch/internal/services"
	"github.com/desertthunder/ytfetch/internal/shared"
)

func quietLogger() *log.Logger {
	return shared.NewLogger(io.Discard)
}

func resolvedItems(n int) []services.ResolvedItem {
	items := make([]services.ResolvedItem, n)
	for i := range items {
		ref := "https://www.youtube.com/watch?v=video" + string(rune('A'+i))
		items[i] = services.ResolvedItem{
			SourceRef: ref,
			Title:     "Video " + string(rune('A'+i)),
			ContentID: dedupe.ContentID(ref),
		}
	}
	return items
}

// newDownloadingTask registers a task with n items and moves it to downloading.
func newDownloadingTask(t *testing.T, reg *Registry, dir string, n int) (models.Task, []models.Item) {
	t.Helper()
	task := reg.Create("https://www.youtube.com/@creator/videos", models.TaskOptions{MaxItems: n, SkipDuplicates: true}, dir)
	if err := reg.SetStatus(task.ID, models.TaskFetching, ""); err != nil {
		t.Fatalf("SetStatus(fetching) error = %v", err)
	}
	items, err := reg.AddItems(task.ID, resolvedItems(n))
	if err != nil {
		t.Fatalf("AddItems() error = %v", err)
	}
	if err := reg.SetStatus(task.ID, models.TaskDownloading, ""); err != nil {
		t.Fatalf("SetStatus(downloading) error = %v", err)
	}
	snap, _ := reg.Snapshot(task.ID)
	return snap.Task, items
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func assertCounters(t *testing.T, task models.Task) {
	t.Helper()
	if task.Finished() > task.Total {
		t.Errorf("finished %d exceeds total %d", task.Finished(), task.Total)
	}
	if task.Status.IsTerminal() && task.Finished() != task.Total {
		t.Errorf("terminal task has finished %d of %d", task.Finished(), task.Total)
	}
}

// recorder is a Subscriber that keeps every message it receives.
type recorder struct {
	mu     sync.Mutex
	msgs   []models.Message
	closed bool
	fail   bool

	// hold, when set, blocks the first progress delivery until closed; held is closed on entry.
	hold chan struct{}
	held chan struct{}
	once sync.Once
}

func (r *recorder) Deliver(m models.Message) error {
	if r.hold != nil && m.Type == models.ProgressUpdate {
		first := false
		r.once.Do(func() { first = true })
		if first {
			close(r.held)
			<-r.hold
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("connection closed")
	}
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *recorder) messages() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func (r *recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *recorder) count(kind models.MessageKind) int {
	n := 0
	for _, m := range r.messages() {
		if m.Type == kind {
			n++
		}
	}
	return n
}

// memoryHistory is an in-memory History.
type memoryHistory struct {
	mu      sync.Mutex
	records map[string]*models.TaskRecord
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{records: make(map[string]*models.TaskRecord)}
}

func (h *memoryHistory) Create(rec *models.TaskRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[rec.ID()] = rec
	return nil
}

func (h *memoryHistory) Get(id string) (*models.TaskRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.records[id]
	if !ok {
		return nil, shared.ErrTaskNotFound
	}
	return rec, nil
}
