package proxy

import (
	"errors"
	"sync"
	"testing"

	"github.com/desertthunder/ytfetch/internal/shared"
)

func TestPool(t *testing.T) {
	endpoints := []string{"http://10.0.0.1:3128", "http://10.0.0.2:3128", "http://10.0.0.3:3128"}

	t.Run("empty pool returns none", func(t *testing.T) {
		p := NewPool()
		if ep, ok := p.Next(); ok || ep != "" {
			t.Errorf("Next() = %q, %v; want none", ep, ok)
		}
		if _, ok := p.Random(); ok {
			t.Error("Random() on empty pool should report none")
		}
	})

	t.Run("round robin order", func(t *testing.T) {
		p := NewPool(endpoints...)
		for round := 0; round < 2; round++ {
			for i, want := range endpoints {
				got, ok := p.Next()
				if !ok || got != want {
					t.Errorf("round %d Next() #%d = %q, want %q", round, i, got, want)
				}
			}
		}
	})

	t.Run("skips failed endpoints", func(t *testing.T) {
		p := NewPool(endpoints...)
		p.MarkFailed(endpoints[1])

		seen := map[string]int{}
		for range 6 {
			ep, _ := p.Next()
			seen[ep]++
		}
		if seen[endpoints[1]] != 0 {
			t.Errorf("failed endpoint returned %d times", seen[endpoints[1]])
		}
		if seen[endpoints[0]] != 3 || seen[endpoints[2]] != 3 {
			t.Errorf("unexpected distribution: %v", seen)
		}
	})

	t.Run("all failed self heals", func(t *testing.T) {
		p := NewPool(endpoints...)
		for _, ep := range endpoints {
			p.MarkFailed(ep)
		}
		if stats := p.Stats(); stats.Available != 0 {
			t.Fatalf("expected no available endpoints, got %+v", stats)
		}

		ep, ok := p.Next()
		if !ok || ep == "" {
			t.Fatalf("Next() after full failure = %q, %v; want a valid endpoint", ep, ok)
		}
		if stats := p.Stats(); stats.Failed != 0 {
			t.Errorf("failure set should be cleared, got %+v", stats)
		}
	})

	t.Run("MarkFailed is idempotent and ignores unknown endpoints", func(t *testing.T) {
		p := NewPool(endpoints...)
		p.MarkFailed(endpoints[0])
		p.MarkFailed(endpoints[0])
		p.MarkFailed("http://192.168.1.1:8080")

		if stats := p.Stats(); stats.Failed != 1 || stats.Available != 2 {
			t.Errorf("Stats() = %+v", stats)
		}
	})

	t.Run("Refresh replaces rotation and clears failures", func(t *testing.T) {
		p := NewPool(endpoints...)
		p.MarkFailed(endpoints[0])
		p.Next()

		n := p.Refresh([]string{"10.1.1.1:80", "http://10.1.1.1:80", "", "ftp://bad:21"})
		if n != 1 {
			t.Fatalf("Refresh() kept %d endpoints, want 1", n)
		}
		stats := p.Stats()
		if stats.Total != 1 || stats.Failed != 0 || stats.CurrentIndex != 0 {
			t.Errorf("Stats() after refresh = %+v", stats)
		}
		if got := p.Endpoints(); len(got) != 1 || got[0] != "http://10.1.1.1:80" {
			t.Errorf("Endpoints() = %v", got)
		}
		if ep, _ := p.Next(); ep != "http://10.1.1.1:80" {
			t.Errorf("Next() = %q", ep)
		}
	})

	t.Run("Random avoids failed endpoints", func(t *testing.T) {
		p := NewPool(endpoints...)
		p.MarkFailed(endpoints[0])
		p.MarkFailed(endpoints[2])
		for range 20 {
			if ep, _ := p.Random(); ep != endpoints[1] {
				t.Fatalf("Random() = %q, want %q", ep, endpoints[1])
			}
		}
	})

	t.Run("concurrent callers", func(t *testing.T) {
		p := NewPool(endpoints...)
		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ep, ok := p.Next()
				if !ok {
					t.Error("Next() returned none for populated pool")
					return
				}
				if i%3 == 0 {
					p.MarkFailed(ep)
				}
				_ = p.Stats()
			}()
		}
		wg.Wait()
		if p.Len() != len(endpoints) {
			t.Errorf("Len() = %d", p.Len())
		}
	})
}

func TestNormalizeEndpoint(t *testing.T) {
	tt := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "bare host port", in: "1.2.3.4:8080", want: "http://1.2.3.4:8080"},
		{name: "socks5", in: "SOCKS5://1.2.3.4:1080", want: "socks5://1.2.3.4:1080"},
		{name: "trims whitespace and path", in: "  http://proxy.local:3128/path  ", want: "http://proxy.local:3128"},
		{name: "credentials kept", in: "http://user:pw@proxy.local:3128", want: "http://user:pw@proxy.local:3128"},
		{name: "missing port", in: "http://proxy.local", wantErr: true},
		{name: "unsupported scheme", in: "ftp://proxy.local:21", wantErr: true},
		{name: "empty", in: " ", wantErr: true},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeEndpoint(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("NormalizeEndpoint() error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				if !errors.Is(err, shared.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if got != tc.want {
				t.Errorf("NormalizeEndpoint() = %q, want %q", got, tc.want)
			}
		})
	}
}
