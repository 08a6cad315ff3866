package rpc

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps a token bucket per client address. A zero rate disables
// limiting.
type rateLimiter struct {
	perSecond rate.Limit
	burst     int

	mu       sync.Mutex
	visitors map[string]*limiterEntry
	nowFn    func() time.Time
	lastScan time.Time
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		visitors:  make(map[string]*limiterEntry),
		nowFn:     time.Now,
	}
}

func (l *rateLimiter) allow(source string) bool {
	if l == nil || l.perSecond <= 0 {
		return true
	}
	if source == "" {
		source = "unknown"
	}
	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastScan) > limiterIdleTTL {
		for key, entry := range l.visitors {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(l.visitors, key)
			}
		}
		l.lastScan = now
	}
	entry, ok := l.visitors[source]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.visitors[source] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// proxyList holds the peers whose forwarding headers are trusted.
type proxyList struct {
	ips map[string]struct{}
}

func newProxyList(addrs []string) (*proxyList, error) {
	list := &proxyList{ips: make(map[string]struct{}, len(addrs))}
	for _, addr := range addrs {
		ip := net.ParseIP(strings.TrimSpace(addr))
		if ip == nil {
			return nil, fmt.Errorf("rpc: invalid trusted proxy %q", addr)
		}
		list.ips[ip.String()] = struct{}{}
	}
	return list, nil
}

// clientSource returns the caller address. X-Forwarded-For is honoured only
// when the direct peer is a trusted proxy.
func (p *proxyList) clientSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if p == nil || len(p.ips) == 0 {
		return host
	}
	if ip := net.ParseIP(host); ip == nil {
		return host
	} else if _, trusted := p.ips[ip.String()]; !trusted {
		return host
	}
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		return host
	}
	first, _, _ := strings.Cut(forwarded, ",")
	if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
		return ip.String()
	}
	return host
}
