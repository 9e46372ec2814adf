package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/desertthunder/ytfetch/internal/shared"
)

// Source yields proxy candidates for a [Pool] refresh.
type Source interface {
	Name() string
	Candidates(ctx context.Context) ([]string, error)
}

// StaticSource is a fixed candidate list, usually from configuration.
type StaticSource []string

func (s StaticSource) Name() string { return "static" }

func (s StaticSource) Candidates(context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

// FileSource reads one candidate per line; blank lines and lines starting with # are ignored.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file:" + s.Path }

func (s FileSource) Candidates(context.Context) ([]string, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrProxySource, err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", shared.ErrProxySource, s.Path, err)
	}
	return out, nil
}

// GeonodeSource fetches candidates from the Geonode public proxy list API.
type GeonodeSource struct {
	URL       string
	Limit     int
	MinUptime float64
	Client    *http.Client
	// Backoff builds the retry policy for one fetch; defaults to exponential with 3 retries.
	Backoff func() backoff.BackOff
}

type geonodeResponse struct {
	Data []geonodeProxy `json:"data"`
}

type geonodeProxy struct {
	IP        string      `json:"ip"`
	Port      json.Number `json:"port"`
	Protocols []string    `json:"protocols"`
	UpTime    float64     `json:"upTime"`
}

// NewGeonodeSource builds a source from configuration.
func NewGeonodeSource(cfg shared.GeonodeConfig, client *http.Client) *GeonodeSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GeonodeSource{URL: cfg.URL, Limit: cfg.Limit, MinUptime: 80, Client: client}
}

func (s *GeonodeSource) Name() string { return "geonode" }

func (s *GeonodeSource) Candidates(ctx context.Context) ([]string, error) {
	reqURL, err := s.requestURL()
	if err != nil {
		return nil, err
	}

	var payload geonodeResponse
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := s.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("geonode returned %s", resp.Status)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("geonode returned %s", resp.Status))
		}

		payload = geonodeResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return backoff.Permanent(fmt.Errorf("decode geonode response: %w", err))
		}
		return nil
	}

	newBackoff := s.Backoff
	if newBackoff == nil {
		newBackoff = func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		}
	}

	if err := backoff.Retry(op, backoff.WithContext(newBackoff(), ctx)); err != nil {
		return nil, fmt.Errorf("%w: geonode: %v", shared.ErrProxySource, err)
	}

	out := make([]string, 0, len(payload.Data))
	for _, p := range payload.Data {
		if p.IP == "" || p.Port == "" || p.UpTime < s.MinUptime {
			continue
		}
		scheme := preferredScheme(p.Protocols)
		if scheme == "" {
			continue
		}
		out = append(out, fmt.Sprintf("%s://%s:%s", scheme, p.IP, p.Port.String()))
		if s.Limit > 0 && len(out) >= s.Limit {
			break
		}
	}
	return out, nil
}

func (s *GeonodeSource) requestURL() (string, error) {
	u, err := url.Parse(s.URL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: geonode url %q", shared.ErrInvalidConfig, s.URL)
	}

	limit := s.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("page", "1")
	q.Set("sort_by", "lastChecked")
	q.Set("sort_type", "desc")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// preferredScheme picks the proxy scheme to dial, favoring plain HTTP proxies.
func preferredScheme(protocols []string) string {
	var fallback string
	for _, p := range protocols {
		switch strings.ToLower(p) {
		case "http":
			return "http"
		case "https":
			fallback = "http"
		case "socks5":
			if fallback == "" {
				fallback = "socks5"
			}
		}
	}
	return fallback
}

// SourcesFromConfig builds the configured candidate sources in priority order.
func SourcesFromConfig(cfg shared.ProxyConfig, client *http.Client) []Source {
	var sources []Source
	if len(cfg.Endpoints) > 0 {
		sources = append(sources, StaticSource(cfg.Endpoints))
	}
	if cfg.File != "" {
		sources = append(sources, FileSource{Path: cfg.File})
	}
	if cfg.Geonode.Enabled {
		sources = append(sources, NewGeonodeSource(cfg.Geonode, client))
	}
	return sources
}
