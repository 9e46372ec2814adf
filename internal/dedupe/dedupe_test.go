package dedupe

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/ytfetch/internal/shared"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("data"), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
}

func newTestIndex() *Index {
	return NewIndex(LocalDirectory{}, DefaultThreshold, shared.NewLogger(io.Discard))
}

type brokenDirectory struct{ LocalDirectory }

func (brokenDirectory) ListFiles(string) ([]string, error) {
	return nil, errors.New("permission denied")
}

func TestLookup(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"Song Title_abc123def456.mp3",
		"Some Random Video.webm",
		"Clip_0123456789ab.f137.mp4",
		"renamed by hand fedcba987654.mkv",
	)
	idx := newTestIndex()

	tt := []struct {
		name      string
		title     string
		contentID string
		isAudio   bool
		want      string
		found     bool
	}{
		{name: "exact audio", title: "Song Title", contentID: "abc123def456", isAudio: true, want: "Song Title_abc123def456.mp3", found: true},
		{name: "wrong media type", title: "Song Title", contentID: "abc123def456", isAudio: false},
		{name: "similar title", title: "Some Random Vid", contentID: "unknown-id", want: "Some Random Video.webm", found: true},
		{name: "unrelated title", title: "Completely Unrelated", contentID: "unknown-id"},
		{name: "format fragment", title: "Clip", contentID: "0123456789ab", want: "Clip_0123456789ab.f137.mp4", found: true},
		{name: "content id anywhere", title: "Different", contentID: "fedcba987654", want: "renamed by hand fedcba987654.mkv", found: true},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got, found, err := idx.Lookup(dir, tc.title, tc.contentID, tc.isAudio)
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if found != tc.found || got != tc.want {
				t.Errorf("Lookup() = %q, %v; want %q, %v", got, found, tc.want, tc.found)
			}
		})
	}

	t.Run("repeated lookups agree", func(t *testing.T) {
		first, ok1, _ := idx.Lookup(dir, "Some Random Vid", "unknown-id", false)
		second, ok2, _ := idx.Lookup(dir, "Some Random Vid", "unknown-id", false)
		if first != second || ok1 != ok2 {
			t.Errorf("lookups differ: %q/%v vs %q/%v", first, ok1, second, ok2)
		}
	})

	t.Run("missing directory is a miss", func(t *testing.T) {
		_, found, err := idx.Lookup(filepath.Join(dir, "nope"), "Song Title", "abc123def456", true)
		if err != nil || found {
			t.Errorf("Lookup() = %v, %v; want miss without error", found, err)
		}
	})

	t.Run("listing failure", func(t *testing.T) {
		broken := NewIndex(brokenDirectory{}, 0, shared.NewLogger(io.Discard))
		_, found, err := broken.Lookup(dir, "Song Title", "abc123def456", true)
		if found || !errors.Is(err, shared.ErrDuplicateCheck) {
			t.Errorf("Lookup() = %v, %v; want ErrDuplicateCheck", found, err)
		}
	})

	t.Run("threshold is configurable", func(t *testing.T) {
		strict := NewIndex(LocalDirectory{}, 1, shared.NewLogger(io.Discard))
		if _, found, _ := strict.Lookup(dir, "Some Random Vid", "unknown-id", false); found {
			t.Error("a threshold of 1 should never be exceeded")
		}
	})
}

func TestFindOutput(t *testing.T) {
	dir := t.TempDir()
	start := time.Now()
	touch(t, dir, "Title_aaaaaaaaaaaa.mp4", "Title_aaaaaaaaaaaa.mp4.part", "Other_bbbbbbbbbbbb.mp4")
	idx := newTestIndex()

	got, err := idx.FindOutput(dir, "aaaaaaaaaaaa", start)
	if err != nil {
		t.Fatalf("FindOutput() error = %v", err)
	}
	if got != "Title_aaaaaaaaaaaa.mp4" {
		t.Errorf("FindOutput() = %q", got)
	}

	t.Run("old files are ignored", func(t *testing.T) {
		_, err := idx.FindOutput(dir, "aaaaaaaaaaaa", start.Add(time.Hour))
		if !errors.Is(err, shared.ErrOutputNotFound) {
			t.Errorf("expected ErrOutputNotFound, got %v", err)
		}
	})

	t.Run("size", func(t *testing.T) {
		if n := idx.Size(dir, got); n != 4 {
			t.Errorf("Size() = %d, want 4", n)
		}
		if n := idx.Size(dir, "missing.mp4"); n != 0 {
			t.Errorf("Size(missing) = %d, want 0", n)
		}
	})
}

func TestPrepare(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	idx := newTestIndex()
	if err := idx.Prepare(dir); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := idx.Prepare(dir); err != nil {
		t.Fatalf("second Prepare() error = %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("expected directory at %s", dir)
	}
}

func TestContentID(t *testing.T) {
	ref := "https://example.com/watch?v=XYZ123"
	first, second := ContentID(ref), ContentID(ref)
	if first != second {
		t.Errorf("ContentID not deterministic: %q vs %q", first, second)
	}
	if len(first) != 12 {
		t.Errorf("ContentID length = %d, want 12", len(first))
	}
	if ContentID("https://example.com/watch?v=ABC999") == first {
		t.Error("different references should produce different ids")
	}

	tt := []struct {
		name string
		a, b string
	}{
		{name: "extra query params", a: "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42", b: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{name: "short link", a: "https://youtu.be/dQw4w9WgXcQ?si=abc", b: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{name: "shorts", a: "https://www.youtube.com/shorts/dQw4w9WgXcQ", b: "https://youtu.be/dQw4w9WgXcQ"},
		{name: "video path", a: "https://example.com/video/12345/slug", b: "https://example.com/video/12345"},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if ContentID(tc.a) != ContentID(tc.b) {
				t.Errorf("ContentID(%q) != ContentID(%q)", tc.a, tc.b)
			}
		})
	}
}

func TestSanitizeTitle(t *testing.T) {
	tt := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Song Title", want: "Song Title"},
		{name: "illegal characters", in: `a<b>c:d"e/f\g|h?i*j`, want: "a_b_c_d_e_f_g_h_i_j"},
		{name: "control characters", in: "tab\there\x00", want: "tabhere"},
		{name: "trims", in: "  spaced  ", want: "spaced"},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeTitle(tc.in); got != tc.want {
				t.Errorf("SanitizeTitle(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}

	t.Run("caps length", func(t *testing.T) {
		got := SanitizeTitle(strings.Repeat("é", 300))
		if n := len([]rune(got)); n != 200 {
			t.Errorf("rune length = %d, want 200", n)
		}
	})
}

func TestSimilarity(t *testing.T) {
	tt := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "Some Random Video", b: "some random video", want: 1},
		{name: "truncated word", a: "Some Random Vid", b: "Some Random Video", want: 1},
		{name: "disjoint", a: "Completely Unrelated", b: "Some Random Video", want: 0},
		{name: "half overlap", a: "alpha beta", b: "alpha gamma", want: 1.0 / 3.0},
		{name: "short prefix ignored", a: "so", b: "some", want: 0},
		{name: "three letter prefix matches a different word", a: "the", b: "then", want: 1},
		{name: "punctuation separates words", a: "live-at_home", b: "Live At Home", want: 1},
		{name: "each word pairs once", a: "rock rocket", b: "rocket", want: 0.5},
		{name: "empty", a: "", b: "anything", want: 0},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if got := Similarity(tc.a, tc.b); got != tc.want {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}
