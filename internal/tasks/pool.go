package tasks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytfetch/internal/dedupe"
	"github.com/desertthunder/ytfetch/internal/models"
	"github.com/desertthunder/ytfetch/internal/proxy"
	"github.com/desertthunder/ytfetch/internal/services"
	"github.com/desertthunder/ytfetch/internal/shared"
	"golang.org/x/time/rate"
)

const defaultWorkers = 4

// PoolOpts configures a [WorkerPool].
type PoolOpts struct {
	Workers      int           // concurrent execution slots (default 4)
	ItemTimeout  time.Duration // per-item deadline; 0 disables it
	ProgressRate float64       // progress publishes per second per item; 0 publishes every report
	UseProxy     bool          // take an endpoint from the proxy pool for each fetch
	RequireProxy bool          // fail an item instead of fetching directly when no endpoint is available
	Logger       *log.Logger
}

// WorkerPool runs one fetch per item on a bounded set of workers.
//
// A worker owns an item from its first transition to its terminal state and then takes the next
// item. Failed items are not retried.
type WorkerPool struct {
	registry  *Registry
	publisher Publisher
	index     *dedupe.Index
	proxies   *proxy.Pool
	provider  services.Provider
	opts      PoolOpts
	logger    *log.Logger
	now       func() time.Time
}

// NewWorkerPool creates a [WorkerPool]. proxies may be nil when proxying is disabled; a nil index
// uses the local filesystem with the default threshold.
func NewWorkerPool(registry *Registry, publisher Publisher, index *dedupe.Index, proxies *proxy.Pool, provider services.Provider, opts PoolOpts) *WorkerPool {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if index == nil {
		index = dedupe.NewIndex(dedupe.LocalDirectory{}, dedupe.DefaultThreshold, opts.Logger)
	}
	return &WorkerPool{
		registry:  registry,
		publisher: publisher,
		index:     index,
		proxies:   proxies,
		provider:  provider,
		opts:      opts,
		logger:    opts.Logger.WithPrefix("pool"),
		now:       time.Now,
	}
}

// Workers returns the configured concurrency bound.
func (p *WorkerPool) Workers() int { return p.opts.Workers }

// Submit processes items of task with at most limit concurrent workers (the pool default when
// limit is not positive) and returns once every item has reached a terminal state.
//
// Items still pending when ctx is cancelled are failed.
func (p *WorkerPool) Submit(ctx context.Context, task models.Task, items []models.Item, limit int) {
	if limit <= 0 {
		limit = p.opts.Workers
	}
	if limit > len(items) {
		limit = len(items)
	}

	jobs := make(chan models.Item, len(items))
	for _, it := range items {
		jobs <- it
	}
	close(jobs)

	var wg sync.WaitGroup
	for range limit {
		wg.Add(1)
		go p.worker(ctx, &wg, task, jobs)
	}
	wg.Wait()

	if ctx.Err() != nil {
		if n, err := p.registry.Abort(task.ID, "cancelled: "+ctx.Err().Error()); err == nil && n > 0 {
			p.logger.Warn("aborted pending items", "task", task.ID, "count", n)
			p.publish(task.ID)
		}
	}
}

func (p *WorkerPool) worker(ctx context.Context, wg *sync.WaitGroup, task models.Task, jobs <-chan models.Item) {
	defer wg.Done()

	for it := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.process(ctx, task, it)
	}
}

// process runs one item through checking, duplicate lookup, download and output resolution.
func (p *WorkerPool) process(ctx context.Context, task models.Task, it models.Item) {
	logger := p.logger.With("task", task.ID, "item", it.Index)

	if err := p.registry.TransitionItem(task.ID, it.Index, models.ItemChecking, nil); err != nil {
		logger.Error("failed to start item", "error", err)
		return
	}
	p.publish(task.ID)

	if task.Options.SkipDuplicates {
		name, found, err := p.index.Lookup(task.OutputDir, it.Title, it.ContentID, task.Options.AudioOnly)
		if err != nil {
			logger.Warn("duplicate check failed, downloading anyway", "error", err)
		}
		if found {
			size := p.index.Size(task.OutputDir, name)
			ended := p.now()
			_ = p.registry.TransitionItem(task.ID, it.Index, models.ItemSkipped, func(i *models.Item) {
				i.Filename = name
				i.TotalBytes = size
				i.DownloadedBytes = size
				i.Progress = 100
				i.SkipReason = skipReason(name)
				i.EndedAt = &ended
			})
			logger.Info("skipped duplicate", "file", name)
			p.publish(task.ID)
			return
		}
	}

	started := p.now()
	if err := p.registry.TransitionItem(task.ID, it.Index, models.ItemDownloading, func(i *models.Item) {
		i.StartedAt = &started
		i.Progress = 0
		i.DownloadedBytes = 0
		i.RateBytes = 0
		i.Rate = ""
		i.ETA = "Unknown"
		i.Error = ""
		i.Filename = ""
	}); err != nil {
		logger.Error("failed to start download", "error", err)
		return
	}
	p.publish(task.ID)

	endpoint, err := p.pickProxy()
	if err != nil {
		p.fail(task.ID, it.Index, err.Error())
		logger.Warn("no proxy available", "error", err)
		return
	}

	res, err := p.fetch(ctx, task, it, endpoint)
	if err != nil {
		if endpoint != "" && p.proxies != nil {
			p.proxies.MarkFailed(endpoint)
		}
		p.fail(task.ID, it.Index, errorMessage(err))
		logger.Warn("download failed", "error", err, "proxy", endpoint)
		return
	}

	name, err := p.resolveOutput(task.OutputDir, it.ContentID, res.OutputPath, started)
	if err != nil {
		p.fail(task.ID, it.Index, "Downloaded but file not found")
		logger.Warn("output not found", "error", err)
		return
	}

	size := p.index.Size(task.OutputDir, name)
	ended := p.now()
	_ = p.registry.TransitionItem(task.ID, it.Index, models.ItemCompleted, func(i *models.Item) {
		i.Filename = name
		if size > 0 {
			i.TotalBytes = size
			i.DownloadedBytes = size
		}
		i.Progress = 100
		i.RateBytes = 0
		i.Rate = ""
		i.ETA = shared.FormatETA(0)
		i.EndedAt = &ended
	})
	logger.Info("download completed", "file", name)
	p.publish(task.ID)
}

type fetchOutcome struct {
	res services.FetchResult
	err error
}

// fetch invokes the provider, racing it against the item timeout when one is configured.
func (p *WorkerPool) fetch(ctx context.Context, task models.Task, it models.Item, endpoint string) (services.FetchResult, error) {
	opts := services.FetchOptions{
		OutputDir:    task.OutputDir,
		OutputStem:   dedupe.OutputStem(it.Title, it.ContentID),
		AudioOnly:    task.Options.AudioOnly,
		ConvertToMP3: task.Options.ConvertToMP3,
		Quality:      task.Options.Quality,
		Proxy:        endpoint,
	}

	var limiter *rate.Limiter
	if p.opts.ProgressRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.opts.ProgressRate), 1)
	}
	progress := func(pr services.Progress) {
		if err := p.registry.UpdateProgress(task.ID, it.Index, pr); err != nil {
			return
		}
		if limiter == nil || limiter.Allow() {
			p.publish(task.ID)
		}
	}

	if p.opts.ItemTimeout <= 0 {
		return p.provider.Fetch(ctx, it.SourceRef, opts, progress)
	}

	fctx, cancel := context.WithTimeout(ctx, p.opts.ItemTimeout)
	defer cancel()

	out := make(chan fetchOutcome, 1)
	go func() {
		res, err := p.provider.Fetch(fctx, it.SourceRef, opts, progress)
		out <- fetchOutcome{res: res, err: err}
	}()

	select {
	case o := <-out:
		if o.err != nil && errors.Is(fctx.Err(), context.DeadlineExceeded) {
			return services.FetchResult{}, p.timeoutError()
		}
		return o.res, o.err
	case <-fctx.Done():
		if errors.Is(fctx.Err(), context.DeadlineExceeded) {
			return services.FetchResult{}, p.timeoutError()
		}
		return services.FetchResult{}, services.NewFetchError(fctx.Err())
	}
}

func (p *WorkerPool) timeoutError() error {
	return &services.FetchError{
		Message: fmt.Sprintf("timed out after %s", p.opts.ItemTimeout),
		Err:     shared.ErrTimeout,
	}
}

// pickProxy returns the endpoint for the next fetch, or "" for a direct connection.
func (p *WorkerPool) pickProxy() (string, error) {
	if !p.opts.UseProxy || p.proxies == nil {
		return "", nil
	}
	if ep, ok := p.proxies.Next(); ok {
		return ep, nil
	}
	if p.opts.RequireProxy {
		return "", shared.ErrProxyExhausted
	}
	return "", nil
}

// resolveOutput prefers the path the provider reported and falls back to the newest file in dir
// carrying contentID.
func (p *WorkerPool) resolveOutput(dir, contentID, reported string, since time.Time) (string, error) {
	if reported != "" {
		name := filepath.Base(reported)
		if p.index.Exists(dir, name) {
			return name, nil
		}
	}
	return p.index.FindOutput(dir, contentID, since)
}

func (p *WorkerPool) fail(taskID string, index int, message string) {
	ended := p.now()
	if err := p.registry.TransitionItem(taskID, index, models.ItemFailed, func(i *models.Item) {
		i.Error = message
		i.EndedAt = &ended
		i.RateBytes = 0
		i.Rate = ""
	}); err != nil {
		p.logger.Error("failed to record failure", "task", taskID, "item", index, "error", err)
	}
	p.publish(taskID)
}

func (p *WorkerPool) publish(taskID string) {
	if p.publisher != nil {
		p.publisher.Publish(taskID, models.ProgressUpdate)
	}
}

func errorMessage(err error) string {
	var fe *services.FetchError
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	return err.Error()
}
