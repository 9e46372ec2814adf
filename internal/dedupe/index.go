package dedupe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytfetch/internal/shared"
	"github.com/duke-git/lancet/v2/slice"
)

// DefaultThreshold is the title similarity a candidate must exceed to count as a duplicate.
const DefaultThreshold = 0.7

var (
	VideoExtensions = []string{".mp4", ".webm", ".mkv", ".avi", ".mov"}
	AudioExtensions = []string{".mp3", ".m4a", ".webm", ".ogg"}
)

// Extensions returns the container extensions expected for the media type.
func Extensions(isAudio bool) []string {
	if isAudio {
		return AudioExtensions
	}
	return VideoExtensions
}

// Index answers whether equivalent content already exists in a directory.
type Index struct {
	dirs      DirectoryService
	threshold float64
	logger    *log.Logger
}

// NewIndex creates an [Index]. A threshold outside (0, 1] falls back to [DefaultThreshold].
func NewIndex(dirs DirectoryService, threshold float64, logger *log.Logger) *Index {
	if dirs == nil {
		dirs = LocalDirectory{}
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Index{dirs: dirs, threshold: threshold, logger: logger.WithPrefix("dedupe")}
}

// Threshold reports the similarity threshold in use.
func (i *Index) Threshold() float64 { return i.threshold }

// Lookup searches dir for content matching title and contentID.
//
// Matching runs in order: the exact output name for each expected extension, yt-dlp format
// fragments of that name, any file carrying contentID, then title similarity. The returned bool
// is false when nothing qualifies. A missing directory is a miss, not an error.
func (i *Index) Lookup(dir, title, contentID string, isAudio bool) (string, bool, error) {
	names, err := i.dirs.ListFiles(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", shared.ErrDuplicateCheck, err)
	}
	if len(names) == 0 {
		return "", false, nil
	}

	exts := Extensions(isAudio)
	stem := OutputStem(title, contentID)

	for _, ext := range exts {
		if name, ok := find(names, func(n string) bool { return n == stem+ext }); ok {
			return name, true, nil
		}
		if name, ok := find(names, func(n string) bool {
			return strings.HasPrefix(n, stem+".f") && strings.HasSuffix(n, ext)
		}); ok {
			return name, true, nil
		}
		if contentID == "" {
			continue
		}
		if name, ok := find(names, func(n string) bool {
			return strings.Contains(n, contentID) && strings.HasSuffix(n, ext)
		}); ok {
			return name, true, nil
		}
	}

	sanitized := SanitizeTitle(title)
	for _, name := range names {
		ext := strings.ToLower(filepath.Ext(name))
		if !slice.Contain(exts, ext) {
			continue
		}
		score := Similarity(sanitized, strings.TrimSuffix(name, filepath.Ext(name)))
		if score > i.threshold {
			i.logger.Debug("similar title matched", "title", title, "file", name, "score", score)
			return name, true, nil
		}
	}
	return "", false, nil
}

// FindOutput returns the newest file in dir whose name carries contentID and was modified at or
// after since. It is the fallback when the provider does not report its output path.
func (i *Index) FindOutput(dir, contentID string, since time.Time) (string, error) {
	if contentID == "" {
		return "", shared.ErrOutputNotFound
	}
	names, err := i.dirs.ListFiles(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrOutputNotFound, err)
	}

	var (
		best   string
		bestAt time.Time
	)
	cutoff := since.Truncate(time.Second)
	for _, name := range names {
		if !strings.Contains(name, contentID) || isPartial(name) {
			continue
		}
		mod, err := i.dirs.ModTime(filepath.Join(dir, name))
		if err != nil || mod.Before(cutoff) {
			continue
		}
		if best == "" || mod.After(bestAt) {
			best, bestAt = name, mod
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: no file for %s in %s", shared.ErrOutputNotFound, contentID, dir)
	}
	return best, nil
}

// Size returns the size of name inside dir, or 0 when it cannot be read.
func (i *Index) Size(dir, name string) int64 {
	n, err := i.dirs.FileSize(filepath.Join(dir, name))
	if err != nil {
		return 0
	}
	return n
}

// Exists reports whether name exists inside dir.
func (i *Index) Exists(dir, name string) bool {
	return i.dirs.Exists(filepath.Join(dir, name))
}

// Prepare makes sure dir exists.
func (i *Index) Prepare(dir string) error {
	if i.dirs.Exists(dir) {
		return nil
	}
	return i.dirs.MakeDir(dir)
}

func isPartial(name string) bool {
	return strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") || strings.HasSuffix(name, ".temp")
}

func find(names []string, match func(string) bool) (string, bool) {
	for _, n := range names {
		if match(n) {
			return n, true
		}
	}
	return "", false
}
