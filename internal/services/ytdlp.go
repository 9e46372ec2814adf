package services

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytfetch/internal/dedupe"
	"github.com/desertthunder/ytfetch/internal/shared"
	"github.com/lrstanley/go-ytdlp"
)

const (
	progressInterval  = 250 * time.Millisecond
	defaultWatchURL   = "https://www.youtube.com/watch?v="
	maxResolveRetries = 2
)

// YTDLPProvider implements [Provider] with the yt-dlp binary.
type YTDLPProvider struct {
	logger *log.Logger
	// Backoff builds the retry policy for a resolution attempt.
	Backoff func() backoff.BackOff
}

// NewYTDLPProvider creates a yt-dlp backed provider.
func NewYTDLPProvider(logger *log.Logger) *YTDLPProvider {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &YTDLPProvider{logger: logger.WithPrefix("yt-dlp"), Backoff: defaultResolveBackoff}
}

func defaultResolveBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = time.Minute
	return backoff.WithMaxRetries(b, maxResolveRetries)
}

func (p *YTDLPProvider) Name() string { return "yt-dlp" }

// ResolveItems lists target with a flat playlist dump, one JSON object per line.
func (p *YTDLPProvider) ResolveItems(ctx context.Context, target string, limit int) ([]ResolvedItem, error) {
	normalized, err := NormalizeTarget(target)
	if err != nil {
		return nil, &ResolutionError{Target: target, Err: err}
	}
	if limit < 1 {
		limit = 1
	}

	var items []ResolvedItem
	op := func() error {
		cmd := ytdlp.New().
			FlatPlaylist().
			DumpJSON().
			IgnoreErrors().
			PlaylistItems(fmt.Sprintf("1:%d", limit))

		res, err := cmd.Run(ctx, normalized)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if res == nil {
			if err == nil {
				err = errors.New("yt-dlp returned no output")
			}
			return err
		}

		parsed, perr := parseEntries(res.Stdout, limit)
		if perr != nil {
			return backoff.Permanent(perr)
		}
		if len(parsed) == 0 && err != nil {
			return err
		}
		items = parsed
		return nil
	}

	notify := func(err error, next time.Duration) {
		p.logger.Warn("resolve failed, retrying", "target", normalized, "error", err, "in", next)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(p.Backoff(), ctx), notify); err != nil {
		return nil, &ResolutionError{Target: normalized, Err: err}
	}

	p.logger.Debug("resolved target", "target", normalized, "items", len(items))
	return items, nil
}

// Fetch downloads sourceRef into opts.OutputDir as "{OutputStem}.{ext}".
func (p *YTDLPProvider) Fetch(ctx context.Context, sourceRef string, opts FetchOptions, progress ProgressFunc) (FetchResult, error) {
	cmd := ytdlp.New().
		NoPlaylist().
		Newline().
		Output(filepath.Join(opts.OutputDir, opts.OutputStem+".%(ext)s")).
		Format(FormatSelector(opts.AudioOnly, opts.Quality))

	if opts.AudioOnly && opts.ConvertToMP3 {
		cmd.ExtractAudio().AudioFormat("mp3")
	}
	if opts.Proxy != "" {
		cmd.Proxy(opts.Proxy)
	}
	if progress != nil {
		cmd.ProgressFunc(progressInterval, func(u ytdlp.ProgressUpdate) {
			progress(progressFrom(u))
		})
	}

	res, err := cmd.Run(ctx, sourceRef)
	if err != nil {
		return FetchResult{}, NewFetchError(err)
	}

	var out FetchResult
	if info, err := res.GetExtractedInfo(); err == nil {
		for _, i := range info {
			if i != nil && i.Filename != nil && *i.Filename != "" {
				out.OutputPath = *i.Filename
				break
			}
		}
	}
	return out, nil
}

func progressFrom(u ytdlp.ProgressUpdate) Progress {
	p := Progress{
		DownloadedBytes: int64(u.DownloadedBytes),
		TotalBytes:      int64(u.TotalBytes),
		ETA:             u.ETA(),
		Filename:        u.Filename,
	}
	if d := u.Duration(); d > 0 {
		p.Rate = float64(u.DownloadedBytes) / d.Seconds()
	}
	return p
}

// FormatSelector builds a yt-dlp format expression from the audio flag and a quality hint
// ("best", "worst" or a height such as "720p").
func FormatSelector(audioOnly bool, quality string) string {
	quality = strings.ToLower(strings.TrimSpace(quality))
	if audioOnly {
		if quality == "worst" {
			return "worstaudio/worst"
		}
		return "bestaudio/best"
	}

	switch quality {
	case "", "best":
		return "bestvideo+bestaudio/best"
	case "worst":
		return "worstvideo+worstaudio/worst"
	}

	height := strings.TrimSuffix(quality, "p")
	for _, r := range height {
		if r < '0' || r > '9' {
			return "bestvideo+bestaudio/best"
		}
	}
	return fmt.Sprintf("bestvideo[height<=%[1]s]+bestaudio/best[height<=%[1]s]", height)
}

type flatEntry struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	WebpageURL string `json:"webpage_url"`
	Type       string `json:"_type"`
}

// parseEntries reads newline-delimited JSON entries from a flat dump.
func parseEntries(stdout string, limit int) ([]ResolvedItem, error) {
	var items []ResolvedItem
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}

		var e flatEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("failed to parse entry: %w", err)
		}
		if e.Type == "playlist" {
			continue
		}

		ref := e.WebpageURL
		if !strings.HasPrefix(ref, "http") {
			ref = e.URL
		}
		if !strings.HasPrefix(ref, "http") {
			if e.ID == "" {
				continue
			}
			ref = defaultWatchURL + e.ID
		}

		title := e.Title
		if title == "" {
			title = e.ID
		}
		items = append(items, ResolvedItem{SourceRef: ref, Title: title, ContentID: dedupe.ContentID(ref)})
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	return items, nil
}
