package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/ytfetch/internal/proxy"
	"github.com/desertthunder/ytfetch/internal/shared"
	"github.com/urfave/cli/v3"
)

// ProxyList gathers candidates from every configured source without probing them.
func (r *Runner) ProxyList(ctx context.Context, cmd *cli.Command) error {
	candidates, err := r.gatherProxies(ctx)
	if err != nil {
		return err
	}
	return r.printProxies(candidates, cmd.Bool("json"))
}

// ProxyCheck gathers candidates and probes each one through the configured check URL.
func (r *Runner) ProxyCheck(ctx context.Context, cmd *cli.Command) error {
	candidates, err := r.gatherProxies(ctx)
	if err != nil {
		return err
	}

	cfg := r.config.Proxy
	if url := cmd.String("url"); url != "" {
		cfg.CheckURL = url
	}
	checker := proxy.NewChecker(cfg.CheckURL, cfg.CheckTimeout.Duration, cfg.CheckRate, r.logger)
	if n := cmd.Int("concurrency"); n > 0 {
		checker.Concurrency = int(n)
	}

	start := time.Now()
	healthy := checker.Filter(ctx, candidates)
	r.logger.Info("proxy check finished", "checked", len(candidates), "healthy", len(healthy), "took", time.Since(start).Round(time.Millisecond))
	return r.printProxies(healthy, cmd.Bool("json"))
}

// gatherProxies collects unchecked candidates from the configured sources, ignoring the enabled
// switch so sources can be inspected before turning rotation on.
func (r *Runner) gatherProxies(ctx context.Context) ([]string, error) {
	cfg := r.config.Proxy
	cfg.Check = false
	refresher := proxy.NewRefresherFromConfig(proxy.NewPool(), cfg, r.httpClient, r.logger)
	candidates, err := refresher.Gather(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to gather proxies: %w", err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no proxy sources configured", shared.ErrMissingConfig)
	}
	return candidates, nil
}

func (r *Runner) printProxies(endpoints []string, asJSON bool) error {
	if asJSON {
		return r.writeJSON(endpoints, false)
	}
	r.writePlainHeader(fmt.Sprintf("%d proxies", len(endpoints)))
	for _, ep := range endpoints {
		r.writePlain("%s\n", ep)
	}
	return nil
}
