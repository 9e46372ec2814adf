// package services defines the fetch provider boundary used by the orchestrator
package services

import (
	"context"
	"fmt"
	"time"
)

// Provider resolves targets into items and retrieves individual items.
type Provider interface {
	// ResolveItems lists up to limit items for target.
	// Fails with a [*ResolutionError] when the target cannot be listed.
	ResolveItems(ctx context.Context, target string, limit int) ([]ResolvedItem, error)

	// Fetch retrieves one item into the directory named by opts.
	// Progress is reported at provider-defined intervals; failures are [*FetchError] values.
	Fetch(ctx context.Context, sourceRef string, opts FetchOptions, progress ProgressFunc) (FetchResult, error)

	// Name returns the provider name (e.g., "yt-dlp")
	Name() string
}

// ResolvedItem is one entry of a resolved target.
type ResolvedItem struct {
	SourceRef string
	Title     string
	ContentID string
}

// FetchOptions describe where and how an item is retrieved.
type FetchOptions struct {
	OutputDir    string
	OutputStem   string // filename without extension
	AudioOnly    bool
	ConvertToMP3 bool
	Quality      string
	Proxy        string // empty for a direct connection
}

// FetchResult is the outcome of a successful [Provider.Fetch].
type FetchResult struct {
	OutputPath string // may be empty when the provider cannot report it
}

// Progress is a partial transfer report.
type Progress struct {
	DownloadedBytes int64
	TotalBytes      int64
	Rate            float64 // bytes per second
	ETA             time.Duration
	Filename        string
}

// Fraction returns completion in [0, 1], or 0 when the total is unknown.
func (p Progress) Fraction() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	f := float64(p.DownloadedBytes) / float64(p.TotalBytes)
	if f > 1 {
		return 1
	}
	return f
}

// ProgressFunc receives [Progress] reports during a fetch.
type ProgressFunc func(Progress)

// ResolutionError reports that a target could not be listed.
type ResolutionError struct {
	Target string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve %s: %v", e.Target, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// FetchError reports that a single item could not be retrieved.
type FetchError struct {
	Message string
	Err     error
}

func (e *FetchError) Error() string { return e.Message }

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err, using its text as the message.
func NewFetchError(err error) *FetchError {
	return &FetchError{Message: err.Error(), Err: err}
}
