package services

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/desertthunder/ytfetch/internal/shared"
)

// NormalizeTarget rewrites channel URLs so they resolve to the channel's uploads.
//
// Handles ("/@name"), channel ids ("/channel/ID") and legacy "/c/" and "/user/" paths gain a
// "/videos" suffix. Playlist and single video URLs are returned unchanged.
func NormalizeTarget(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("%w: empty target", shared.ErrInvalidTarget)
	}

	u, err := url.Parse(target)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: %q is not a URL", shared.ErrInvalidTarget, target)
	}

	if u.Query().Has("list") || u.Query().Has("v") {
		return target, nil
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return target, nil
	}

	base := "https://" + u.Host
	switch {
	case strings.HasPrefix(segments[0], "@"):
		return base + "/" + segments[0] + "/videos", nil
	case len(segments) >= 2 && (segments[0] == "channel" || segments[0] == "c" || segments[0] == "user"):
		return base + "/" + segments[0] + "/" + segments[1] + "/videos", nil
	}
	return target, nil
}
