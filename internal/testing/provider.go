package testing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/desertthunder/ytfetch/internal/services"
)

// MockProvider is a test double for [services.Provider].
//
// Fetch writes a small file named "{OutputStem}{Ext}" into the output directory and reports two
// progress updates. Per-reference failures, a resolution error, and a gate that holds fetches
// until released are configurable.
type MockProvider struct {
	Items      []services.ResolvedItem
	ResolveErr error
	// FetchErrs maps a source reference to the error its fetch returns.
	FetchErrs map[string]error
	// Ext is the extension of written files; defaults to ".mp4".
	Ext string
	// OmitPath leaves FetchResult.OutputPath empty, forcing callers to find the file themselves.
	OmitPath bool
	// SkipWrite makes fetches succeed without producing a file.
	SkipWrite bool
	// Gate, when set, blocks every fetch until it is closed or the context ends.
	Gate chan struct{}

	ResolveCalls atomic.Int32
	FetchCalls   atomic.Int32

	mu      sync.Mutex
	proxies []string
}

var _ services.Provider = (*MockProvider)(nil)

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) ResolveItems(ctx context.Context, target string, limit int) ([]services.ResolvedItem, error) {
	m.ResolveCalls.Add(1)
	if m.ResolveErr != nil {
		return nil, &services.ResolutionError{Target: target, Err: m.ResolveErr}
	}
	items := m.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]services.ResolvedItem, len(items))
	copy(out, items)
	return out, nil
}

func (m *MockProvider) Fetch(ctx context.Context, sourceRef string, opts services.FetchOptions, progress services.ProgressFunc) (services.FetchResult, error) {
	m.FetchCalls.Add(1)
	m.mu.Lock()
	m.proxies = append(m.proxies, opts.Proxy)
	m.mu.Unlock()

	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return services.FetchResult{}, services.NewFetchError(ctx.Err())
		}
	}

	if progress != nil {
		progress(services.Progress{DownloadedBytes: 2, TotalBytes: 4, Rate: 1024})
	}
	if err, ok := m.FetchErrs[sourceRef]; ok {
		return services.FetchResult{}, &services.FetchError{Message: err.Error(), Err: err}
	}
	if m.SkipWrite {
		return services.FetchResult{}, nil
	}

	ext := m.Ext
	if ext == "" {
		ext = ".mp4"
	}
	path := filepath.Join(opts.OutputDir, opts.OutputStem+ext)
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		return services.FetchResult{}, services.NewFetchError(fmt.Errorf("write output: %w", err))
	}
	if progress != nil {
		progress(services.Progress{DownloadedBytes: 4, TotalBytes: 4, Rate: 2048})
	}

	if m.OmitPath {
		return services.FetchResult{}, nil
	}
	return services.FetchResult{OutputPath: path}, nil
}

// Proxies returns the proxy passed to each fetch, in call order.
func (m *MockProvider) Proxies() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.proxies))
	copy(out, m.proxies)
	return out
}
