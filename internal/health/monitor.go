package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/omniagent/internal/router"
)

const (
	DefaultTTL          = 30 * time.Second
	DefaultProbeTimeout = 5 * time.Second
)

// Config controls probing and caching.
type Config struct {
	TTL          time.Duration
	ProbeTimeout time.Duration
	// CloudAPIKey is the cloud credential. Cloud availability is derived from
	// it without a network call.
	CloudAPIKey string
}

// cacheEntry holds the last computed status.
type cacheEntry struct {
	status     router.EnvironmentStatus
	insertedAt time.Time
}

func (e *cacheEntry) isExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.insertedAt) > ttl
}

// CacheStats reports how often Status was served from cache.
type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Probes uint64 `json:"probes"`
}

// Monitor reports backend availability. Results are cached for the TTL so
// routing a request does not pay for a probe each time. Probe failures are
// reported as unavailability, never as errors.
type Monitor struct {
	probe  Probe
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	cached *cacheEntry
	stats  CacheStats

	// probeMu serializes probes so concurrent misses share one.
	probeMu sync.Mutex
}

// NewMonitor creates a monitor over the local runtime probe.
func NewMonitor(probe Probe, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		probe:  probe,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Status returns the cached snapshot, probing when it is missing or older than the TTL.
func (m *Monitor) Status(ctx context.Context) router.EnvironmentStatus {
	if status, ok := m.fresh(); ok {
		return status
	}

	m.probeMu.Lock()
	defer m.probeMu.Unlock()

	// Another caller may have probed while we waited.
	if status, ok := m.freshNoCount(); ok {
		return status
	}
	return m.refreshLocked(ctx)
}

// Refresh probes unconditionally and replaces the cached snapshot.
func (m *Monitor) Refresh(ctx context.Context) router.EnvironmentStatus {
	m.probeMu.Lock()
	defer m.probeMu.Unlock()
	return m.refreshLocked(ctx)
}

// Invalidate drops the cached snapshot so the next Status call probes again.
func (m *Monitor) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = nil
}

// Stats returns cache statistics.
func (m *Monitor) Stats() CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Monitor) fresh() (router.EnvironmentStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil && !m.cached.isExpired(m.now(), m.cfg.TTL) {
		m.stats.Hits++
		return m.cached.status, true
	}
	m.stats.Misses++
	return router.EnvironmentStatus{}, false
}

func (m *Monitor) freshNoCount() (router.EnvironmentStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil && !m.cached.isExpired(m.now(), m.cfg.TTL) {
		return m.cached.status, true
	}
	return router.EnvironmentStatus{}, false
}

// refreshLocked must be called with probeMu held.
func (m *Monitor) refreshLocked(ctx context.Context) router.EnvironmentStatus {
	provider, cloudOK := InspectCredential(m.cfg.CloudAPIKey)
	status := router.EnvironmentStatus{
		CloudBackendAvailable: cloudOK,
		CloudKeyProvider:      provider,
		CheckedAt:             m.now(),
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	err := m.probe.Check(probeCtx)
	cancel()

	m.mu.Lock()
	m.stats.Probes++
	m.mu.Unlock()

	if err != nil {
		status.LocalBackendError = err.Error()
		m.logger.Debug("local backend probe failed", zap.Error(err))
	} else {
		status.LocalBackendAvailable = true
	}

	// A probe cut short by the caller says nothing about the backend.
	if ctx.Err() != nil {
		return status
	}

	m.mu.Lock()
	m.cached = &cacheEntry{status: status, insertedAt: status.CheckedAt}
	m.mu.Unlock()

	m.logger.Debug("environment status refreshed",
		zap.Bool("local_available", status.LocalBackendAvailable),
		zap.Bool("cloud_available", status.CloudBackendAvailable),
		zap.String("cloud_provider", string(status.CloudKeyProvider)),
	)
	return status
}
