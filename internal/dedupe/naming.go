package dedupe

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

const maxTitleLength = 200

var (
	illegalChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)
)

// SanitizeTitle makes title safe to use as a filename stem.
//
// Characters illegal on common filesystems become underscores, control characters are removed,
// and the result is capped at 200 runes and trimmed.
func SanitizeTitle(title string) string {
	title = illegalChars.ReplaceAllString(title, "_")
	title = controlChars.ReplaceAllString(title, "")
	if r := []rune(title); len(r) > maxTitleLength {
		title = string(r[:maxTitleLength])
	}
	return strings.TrimSpace(title)
}

// OutputStem returns the filename stem ("{title}_{contentID}") used for an item's output.
func OutputStem(title, contentID string) string {
	return SanitizeTitle(title) + "_" + contentID
}

// ContentID derives a 12 hex character identifier from a source reference.
//
// The canonical id segment (watch?v=, youtu.be/, /shorts/, /video/) is hashed when present,
// otherwise the whole reference is.
func ContentID(ref string) string {
	key := canonicalID(ref)
	if key == "" {
		key = ref
	}
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}

func canonicalID(ref string) string {
	switch {
	case strings.Contains(ref, "watch?v="):
		return strings.SplitN(strings.SplitN(ref, "watch?v=", 2)[1], "&", 2)[0]
	case strings.Contains(ref, "youtu.be/"):
		return strings.SplitN(strings.SplitN(ref, "youtu.be/", 2)[1], "?", 2)[0]
	case strings.Contains(ref, "/shorts/"):
		return firstSegment(strings.SplitN(ref, "/shorts/", 2)[1])
	case strings.Contains(ref, "/video/"):
		return firstSegment(strings.SplitN(ref, "/video/", 2)[1])
	}

	if u, err := url.Parse(ref); err == nil {
		if v := u.Query().Get("v"); v != "" {
			return v
		}
	}
	return ""
}

func firstSegment(s string) string {
	s = strings.SplitN(s, "?", 2)[0]
	return strings.SplitN(s, "/", 2)[0]
}
