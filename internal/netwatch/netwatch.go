// Package netwatch answers the one question the rest of the pipeline
// keeps asking: is the uplink usable right now?
//
// Connectivity is probed by dialing well-known public DNS resolvers
// over TCP. The answer is cached for a short interval so that a burst
// of classification requests does not turn into a burst of probes.
package netwatch

import (
	"log/slog"
	"net"
	"sync"
	"time"
)

// Probe targets. Two independent resolvers so a single provider outage
// does not read as a dead uplink.
var defaultTargets = []string{"8.8.8.8:53", "1.1.1.1:53"}

const (
	defaultCacheTTL    = 60 * time.Second
	defaultDialTimeout = 3 * time.Second
)

// Dialer is the subset of net.Dialer the monitor needs. Tests swap in
// a stub.
type Dialer func(network, addr string, timeout time.Duration) (net.Conn, error)

// Monitor caches the uplink state between probes. Safe for concurrent
// use.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	checkedAt time.Time

	targets     []string
	ttl         time.Duration
	dialTimeout time.Duration
	dial        Dialer
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithTargets replaces the probe targets.
func WithTargets(targets ...string) Option {
	return func(m *Monitor) { m.targets = targets }
}

// WithCacheTTL sets how long a probe result is trusted.
func WithCacheTTL(ttl time.Duration) Option {
	return func(m *Monitor) { m.ttl = ttl }
}

// WithDialer overrides the dial function for tests.
func WithDialer(d Dialer) Option {
	return func(m *Monitor) { m.dial = d }
}

// WithClock overrides the monitor's time source for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithLogger sets the logger for connectivity transitions.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// NewMonitor creates a Monitor with a 60 second cache.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		targets:     defaultTargets,
		ttl:         defaultCacheTTL,
		dialTimeout: defaultDialTimeout,
		dial:        net.DialTimeout,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Online reports whether the uplink is usable, probing if the cached
// answer has expired.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.checkedAt.IsZero() && now.Sub(m.checkedAt) < m.ttl {
		return m.online
	}

	was := m.online
	m.online = m.probe()
	m.checkedAt = now
	if m.online != was {
		m.logger.Info("connectivity changed", "online", m.online)
	}
	return m.online
}

// Refresh discards the cached answer and probes immediately.
func (m *Monitor) Refresh() bool {
	m.mu.Lock()
	m.checkedAt = time.Time{}
	m.mu.Unlock()
	return m.Online()
}

func (m *Monitor) probe() bool {
	for _, target := range m.targets {
		conn, err := m.dial("tcp", target, m.dialTimeout)
		if err == nil {
			conn.Close()
			return true
		}
	}
	return false
}
