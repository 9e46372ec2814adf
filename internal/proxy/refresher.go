package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytfetch/internal/shared"
	"github.com/duke-git/lancet/v2/slice"
)

// Refresher periodically rebuilds a [Pool] from its sources.
type Refresher struct {
	pool     *Pool
	sources  []Source
	checker  *Checker
	interval time.Duration
	logger   *log.Logger
}

// RefresherOpts configures a [Refresher].
type RefresherOpts struct {
	Sources  []Source
	Checker  *Checker      // optional health filter
	Interval time.Duration // default 300s
	Logger   *log.Logger
}

// NewRefresher creates a refresher for pool.
func NewRefresher(pool *Pool, opts RefresherOpts) *Refresher {
	if opts.Interval <= 0 {
		opts.Interval = 300 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Refresher{
		pool:     pool,
		sources:  opts.Sources,
		checker:  opts.Checker,
		interval: opts.Interval,
		logger:   opts.Logger.WithPrefix("proxy"),
	}
}

// NewRefresherFromConfig wires sources and the optional checker from configuration.
func NewRefresherFromConfig(pool *Pool, cfg shared.ProxyConfig, client *http.Client, logger *log.Logger) *Refresher {
	var checker *Checker
	if cfg.Check {
		checker = NewChecker(cfg.CheckURL, cfg.CheckTimeout.Duration, cfg.CheckRate, logger)
	}
	return NewRefresher(pool, RefresherOpts{
		Sources:  SourcesFromConfig(cfg, client),
		Checker:  checker,
		Interval: cfg.RefreshInterval.Duration,
		Logger:   logger,
	})
}

// Gather collects deduplicated candidates from every source, filtered through the checker when set.
//
// A failing source is logged and skipped; an error is returned only when every source failed.
func (r *Refresher) Gather(ctx context.Context) ([]string, error) {
	var (
		candidates []string
		errs       []error
	)
	for _, src := range r.sources {
		found, err := src.Candidates(ctx)
		if err != nil {
			r.logger.Warn("proxy source failed", "source", src.Name(), "error", err)
			errs = append(errs, err)
			continue
		}
		r.logger.Debug("proxy source loaded", "source", src.Name(), "count", len(found))
		for _, c := range found {
			if ep, err := NormalizeEndpoint(c); err == nil {
				candidates = append(candidates, ep)
			}
		}
	}

	if len(errs) > 0 && len(errs) == len(r.sources) {
		return nil, errors.Join(errs...)
	}

	candidates = slice.Unique(candidates)
	if r.checker != nil && len(candidates) > 0 {
		before := len(candidates)
		candidates = r.checker.Filter(ctx, candidates)
		r.logger.Info("proxy health check", "healthy", len(candidates), "checked", before)
	}
	return candidates, nil
}

// Refresh replaces the pool contents with freshly gathered candidates.
//
// An empty result leaves the current rotation in place.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	candidates, err := r.Gather(ctx)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, fmt.Errorf("%w: no usable candidates, keeping %d endpoints", shared.ErrProxySource, r.pool.Len())
	}

	n := r.pool.Refresh(candidates)
	r.logger.Info("proxy pool refreshed", "endpoints", n)
	return n, nil
}

// Run refreshes once immediately and then on every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	if len(r.sources) == 0 {
		return
	}

	if _, err := r.Refresh(ctx); err != nil {
		r.logger.Warn("initial proxy refresh failed", "error", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Refresh(ctx); err != nil {
				r.logger.Warn("proxy refresh failed", "error", err)
			}
		}
	}
}
