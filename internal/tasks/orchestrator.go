package tasks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytfetch/internal/dedupe"
	"github.com/desertthunder/ytfetch/internal/models"
	"github.com/desertthunder/ytfetch/internal/services"
	"github.com/desertthunder/ytfetch/internal/shared"
)

// History persists terminal task snapshots.
type History interface {
	Create(record *models.TaskRecord) error
	Get(id string) (*models.TaskRecord, error)
}

// Request is a task submission.
type Request struct {
	Target         string `json:"channel_url"`
	MaxItems       int    `json:"max_videos"`
	AudioOnly      bool   `json:"audio_only"`
	SkipDuplicates *bool  `json:"skip_duplicates,omitempty"` // nil means true
	Quality        string `json:"quality"`
	ConvertToMP3   bool   `json:"convert_to_mp3"`
}

// Options validates r and fills defaults from cfg.
func (r Request) Options(cfg shared.DownloadConfig) (models.TaskOptions, error) {
	opts := models.TaskOptions{
		MaxItems:       r.MaxItems,
		AudioOnly:      r.AudioOnly,
		SkipDuplicates: true,
		Quality:        strings.TrimSpace(r.Quality),
		ConvertToMP3:   r.ConvertToMP3,
	}
	if r.SkipDuplicates != nil {
		opts.SkipDuplicates = *r.SkipDuplicates
	}
	if opts.MaxItems == 0 {
		opts.MaxItems = cfg.DefaultMaxItems
	}
	if opts.MaxItems < 1 {
		return opts, fmt.Errorf("%w: max items must be at least 1, got %d", shared.ErrInvalidInput, r.MaxItems)
	}
	if opts.Quality == "" {
		opts.Quality = cfg.DefaultQuality
	}
	return opts, nil
}

// OrchestratorOpts configures an [Orchestrator].
type OrchestratorOpts struct {
	Downloads shared.DownloadConfig
	History   History // optional
	Logger    *log.Logger
}

// Orchestrator drives tasks from submission to a terminal state.
//
// A run resolves the target through the provider, registers the items, hands them to the
// [WorkerPool], and finally archives and persists the result.
type Orchestrator struct {
	registry  *Registry
	publisher Publisher
	pool      *WorkerPool
	provider  services.Provider
	index     *dedupe.Index
	history   History
	cfg       shared.DownloadConfig
	logger    *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates an [Orchestrator]. Background runs started by [Orchestrator.Submit]
// live as long as ctx or until [Orchestrator.Shutdown].
func NewOrchestrator(ctx context.Context, registry *Registry, publisher Publisher, pool *WorkerPool, provider services.Provider, index *dedupe.Index, opts OrchestratorOpts) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if index == nil {
		index = dedupe.NewIndex(dedupe.LocalDirectory{}, opts.Downloads.SimilarityThreshold, opts.Logger)
	}
	runCtx, cancel := context.WithCancel(ctx)
	return &Orchestrator{
		registry:  registry,
		publisher: publisher,
		pool:      pool,
		provider:  provider,
		index:     index,
		history:   opts.History,
		cfg:       opts.Downloads,
		logger:    opts.Logger.WithPrefix("orchestrator"),
		ctx:       runCtx,
		cancel:    cancel,
	}
}

// Registry returns the registry backing this orchestrator.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Create validates req and registers a task without starting it.
func (o *Orchestrator) Create(req Request) (models.Task, error) {
	target, err := services.NormalizeTarget(req.Target)
	if err != nil {
		return models.Task{}, err
	}
	opts, err := req.Options(o.cfg)
	if err != nil {
		return models.Task{}, err
	}
	return o.registry.Create(target, opts, o.outputDir(opts.AudioOnly)), nil
}

// Submit registers a task and runs it in the background, returning its id immediately.
func (o *Orchestrator) Submit(req Request) (string, error) {
	if err := o.ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: orchestrator stopped", shared.ErrServiceUnavailable)
	}
	task, err := o.Create(req)
	if err != nil {
		return "", err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.Run(o.ctx, task.ID); err != nil {
			o.logger.Warn("task failed", "task", task.ID, "error", err)
		}
	}()
	return task.ID, nil
}

// Run executes a registered task to completion. It returns an error only when the task failed.
func (o *Orchestrator) Run(ctx context.Context, taskID string) error {
	snap, err := o.registry.Snapshot(taskID)
	if err != nil {
		return err
	}
	task := snap.Task
	logger := o.logger.With("task", taskID)

	if err := o.registry.SetStatus(taskID, models.TaskFetching, fetchingActivity); err != nil {
		return err
	}
	o.publishStatus(taskID)

	if err := o.index.Prepare(task.OutputDir); err != nil {
		return o.failTask(taskID, fmt.Errorf("failed to prepare %s: %w", task.OutputDir, err))
	}

	resolved, err := o.provider.ResolveItems(ctx, task.Target, task.Options.MaxItems)
	if err != nil {
		return o.failTask(taskID, err)
	}
	if len(resolved) == 0 {
		return o.failMessage(taskID, noItemsActivity, shared.ErrNoItemsFound)
	}
	if len(resolved) > task.Options.MaxItems {
		resolved = resolved[:task.Options.MaxItems]
	}
	for i := range resolved {
		if resolved[i].ContentID == "" {
			resolved[i].ContentID = dedupe.ContentID(resolved[i].SourceRef)
		}
	}

	items, err := o.registry.AddItems(taskID, resolved)
	if err != nil {
		return o.failTask(taskID, err)
	}
	activity := startDownloadActivity(len(items), task.Options.AudioOnly, task.Options.SkipDuplicates)
	if err := o.registry.SetStatus(taskID, models.TaskDownloading, activity); err != nil {
		return err
	}
	o.publishStatus(taskID)
	logger.Info("downloading", "items", len(items), "dir", task.OutputDir)

	o.pool.Submit(ctx, task, items, 0)

	if err := ctx.Err(); err != nil {
		return o.failTask(taskID, err)
	}

	snap, err = o.registry.Snapshot(taskID)
	if err != nil {
		return err
	}
	if _, err := o.Archive(taskID); err == nil {
		_ = o.registry.SetArchiveAvailable(taskID, true)
	} else if !errors.Is(err, shared.ErrNoItemsFound) {
		logger.Warn("failed to build archive", "error", err)
	}

	t := snap.Task
	if err := o.registry.SetStatus(taskID, models.TaskCompleted, completedActivity(t.SuccessCount, t.Skipped, t.Failed)); err != nil {
		return err
	}
	o.publishStatus(taskID)
	o.persist(taskID)
	logger.Info("task completed", "completed", t.Completed, "skipped", t.Skipped, "failed", t.Failed)
	return nil
}

// Status returns the live snapshot of a task, falling back to persisted history.
func (o *Orchestrator) Status(taskID string) (models.Snapshot, error) {
	snap, err := o.registry.Snapshot(taskID)
	if err == nil || !errors.Is(err, shared.ErrTaskNotFound) || o.history == nil {
		return snap, err
	}

	rec, herr := o.history.Get(taskID)
	if herr != nil {
		return models.Snapshot{}, err
	}
	return rec.Snapshot, nil
}

// List returns the live tasks, newest first.
func (o *Orchestrator) List() []models.Task {
	return o.registry.List()
}

// ArchivePath returns where the archive of taskID is written.
func (o *Orchestrator) ArchivePath(taskID string) string {
	return filepath.Join(o.cfg.TasksPath(), taskID+".zip")
}

// Archive (re)creates the zip of a task's completed and skipped files and returns its path.
func (o *Orchestrator) Archive(taskID string) (string, error) {
	snap, err := o.Status(taskID)
	if err != nil {
		return "", err
	}
	path := o.ArchivePath(taskID)
	n, err := WriteArchive(path, snap.Task.OutputDir, snap)
	if err != nil {
		return "", err
	}
	o.logger.Debug("archive written", "task", taskID, "files", n, "path", path)
	return path, nil
}

// FilePath returns the on-disk path of filename if it is one of the task's outputs.
func (o *Orchestrator) FilePath(taskID, filename string) (string, error) {
	snap, err := o.Status(taskID)
	if err != nil {
		return "", err
	}
	if filename == "" || filename != filepath.Base(filename) || !snap.HasFile(filename) {
		return "", fmt.Errorf("%w: %s", shared.ErrOutputNotFound, filename)
	}
	path := filepath.Join(snap.Task.OutputDir, filename)
	if !o.index.Exists(snap.Task.OutputDir, filename) {
		return "", fmt.Errorf("%w: %s", shared.ErrOutputNotFound, path)
	}
	return path, nil
}

// Wait blocks until every background run has returned.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// Shutdown cancels background runs and waits for them to finish.
func (o *Orchestrator) Shutdown() {
	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) outputDir(audioOnly bool) string {
	if audioOnly {
		return o.cfg.AudioPath()
	}
	return o.cfg.VideoPath()
}

func (o *Orchestrator) failTask(taskID string, err error) error {
	return o.failMessage(taskID, failedActivity(err), err)
}

func (o *Orchestrator) failMessage(taskID, message string, err error) error {
	if _, aerr := o.registry.Abort(taskID, message); aerr != nil {
		o.logger.Error("failed to abort items", "task", taskID, "error", aerr)
	}
	if ferr := o.registry.Fail(taskID, message); ferr != nil {
		o.logger.Error("failed to mark task failed", "task", taskID, "error", ferr)
	}
	o.publishStatus(taskID)
	o.persist(taskID)
	return err
}

func (o *Orchestrator) publishStatus(taskID string) {
	if o.publisher == nil {
		return
	}
	o.publisher.Publish(taskID, models.StatusUpdate)
	o.publisher.Publish(taskID, models.ProgressUpdate)
}

func (o *Orchestrator) persist(taskID string) {
	if o.history == nil {
		return
	}
	snap, err := o.registry.Snapshot(taskID)
	if err != nil {
		return
	}
	if err := o.history.Create(models.NewTaskRecord(snap)); err != nil {
		o.logger.Warn("failed to persist task", "task", taskID, "error", err)
	}
}
