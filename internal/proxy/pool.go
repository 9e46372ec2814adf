package proxy

import (
	"fmt"
	"math/rand/v2"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/desertthunder/ytfetch/internal/shared"
	"github.com/duke-git/lancet/v2/slice"
)

// Stats summarizes the rotation state of a [Pool].
type Stats struct {
	Total        int `json:"total"`
	Failed       int `json:"failed"`
	Available    int `json:"available"`
	CurrentIndex int `json:"current_index"`
}

// Pool is a round-robin rotation of upstream proxy endpoints with a failure set.
//
// All operations take a single mutex and never block on network state. When every endpoint
// has been marked failed, [Pool.Next] clears the failure set instead of reporting exhaustion.
type Pool struct {
	mu        sync.Mutex
	endpoints []string
	failed    map[string]struct{}
	cursor    int
}

// NewPool creates a pool seeded with candidates. Invalid candidates are dropped.
func NewPool(candidates ...string) *Pool {
	p := &Pool{failed: make(map[string]struct{})}
	p.Refresh(candidates)
	return p
}

// Refresh replaces the rotation set, clears failure state and rewinds the cursor.
//
// Candidates are normalized and deduplicated in order; the number kept is returned.
func (p *Pool) Refresh(candidates []string) int {
	endpoints := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ep, err := NormalizeEndpoint(c)
		if err != nil {
			continue
		}
		endpoints = append(endpoints, ep)
	}
	endpoints = slice.Unique(endpoints)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.endpoints = endpoints
	p.failed = make(map[string]struct{})
	p.cursor = 0
	return len(endpoints)
}

// Next returns the next non-failed endpoint in round-robin order and advances the cursor.
//
// If every endpoint is failed the failure set is cleared and the endpoint at the cursor is returned.
// The boolean is false only when the rotation set is empty.
func (p *Pool) Next() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.endpoints)
	if n == 0 {
		return "", false
	}

	for range n {
		ep := p.advance()
		if _, bad := p.failed[ep]; !bad {
			return ep, true
		}
	}

	clear(p.failed)
	return p.advance(), true
}

// advance returns the endpoint at the cursor and moves the cursor forward. Callers hold mu.
func (p *Pool) advance() string {
	ep := p.endpoints[p.cursor]
	p.cursor = (p.cursor + 1) % len(p.endpoints)
	return ep
}

// Random returns a uniformly chosen non-failed endpoint, resetting failures first when none remain.
func (p *Pool) Random() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) == 0 {
		return "", false
	}

	available := p.available()
	if len(available) == 0 {
		clear(p.failed)
		available = p.endpoints
	}
	return available[rand.IntN(len(available))], true
}

// MarkFailed adds endpoint to the failure set. Unknown endpoints are ignored; repeated calls are no-ops.
func (p *Pool) MarkFailed(endpoint string) {
	ep, err := NormalizeEndpoint(endpoint)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if slice.Contain(p.endpoints, ep) {
		p.failed[ep] = struct{}{}
	}
}

// Reset clears the failure set without changing the rotation.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.failed)
}

// Stats returns counts for the current rotation.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Total:        len(p.endpoints),
		Failed:       len(p.failed),
		Available:    len(p.endpoints) - len(p.failed),
		CurrentIndex: p.cursor,
	}
}

// Endpoints returns a copy of the rotation set.
func (p *Pool) Endpoints() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.endpoints...)
}

// Len returns the size of the rotation set.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

func (p *Pool) available() []string {
	out := make([]string, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		if _, bad := p.failed[ep]; !bad {
			out = append(out, ep)
		}
	}
	return out
}

// NormalizeEndpoint canonicalizes a proxy address. A bare host:port is treated as an HTTP proxy.
func NormalizeEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty proxy endpoint", shared.ErrInvalidInput)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: proxy endpoint %q: %v", shared.ErrInvalidInput, raw, err)
	}

	switch u.Scheme = strings.ToLower(u.Scheme); u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return "", fmt.Errorf("%w: unsupported proxy scheme %q", shared.ErrInvalidInput, u.Scheme)
	}

	host, port, err := net.SplitHostPort(u.Host)
	if err != nil || host == "" || port == "" {
		return "", fmt.Errorf("%w: proxy endpoint %q needs host:port", shared.ErrInvalidInput, raw)
	}

	u.Path, u.RawQuery, u.Fragment = "", "", ""
	return u.String(), nil
}
