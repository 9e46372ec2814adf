package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Checker probes candidate endpoints by issuing a request through each of them.
type Checker struct {
	URL         string
	Timeout     time.Duration
	Concurrency int
	limiter     *rate.Limiter
	logger      *log.Logger
}

// NewChecker creates a checker that probes at most perSecond endpoints per second.
func NewChecker(checkURL string, timeout time.Duration, perSecond float64, logger *log.Logger) *Checker {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if perSecond <= 0 {
		perSecond = 10
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Checker{
		URL:         checkURL,
		Timeout:     timeout,
		Concurrency: 20,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:      logger.WithPrefix("proxy-check"),
	}
}

// Check returns nil when a request to the check URL succeeds through endpoint.
func (c *Checker) Check(ctx context.Context, endpoint string) error {
	transport, err := newTransport(endpoint)
	if err != nil {
		return err
	}
	defer transport.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return err
	}

	resp, err := (&http.Client{Transport: transport}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("check through %s returned %s", endpoint, resp.Status)
	}
	return nil
}

// Filter probes endpoints concurrently and returns the healthy ones in their original order.
func (c *Checker) Filter(ctx context.Context, endpoints []string) []string {
	healthy := make([]bool, len(endpoints))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.Concurrency, 1))
	for i, ep := range endpoints {
		if err := c.limiter.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			if err := c.Check(gctx, ep); err != nil {
				c.logger.Debug("endpoint unhealthy", "endpoint", ep, "error", err)
				return nil
			}
			healthy[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out := make([]string, 0, len(endpoints))
	for i, ep := range endpoints {
		if healthy[i] {
			out = append(out, ep)
		}
	}
	return out
}

// newTransport builds an [http.Transport] that routes through endpoint.
func newTransport(endpoint string) (*http.Transport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		MaxIdleConns:          1,
		IdleConnTimeout:       10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	switch u.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, err
		}
		cd, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks dialer for %s does not support contexts", endpoint)
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return cd.DialContext(ctx, network, addr)
		}
	default:
		return nil, fmt.Errorf("unsupported proxy type: %s", u.Scheme)
	}
	return transport, nil
}
