package tuya

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a fetched status is served without device I/O.
const DefaultCacheTTL = 2 * time.Second

// ManagerOptions configures a ConnectionManager.
type ManagerOptions struct {
	Link     DeviceLink
	Identity Identity

	// TTL bounds status cache freshness. Zero means DefaultCacheTTL.
	TTL time.Duration

	// Clock defaults to SystemClock.
	Clock Clock

	Logger Logger
}

// ManagerStats is a point-in-time snapshot of manager activity.
type ManagerStats struct {
	Connected       bool      `json:"connected"`
	ConnectAttempts uint64    `json:"connect_attempts"`
	ConnectFailures uint64    `json:"connect_failures"`
	DeviceReads     uint64    `json:"device_reads"`
	ReadFailures    uint64    `json:"read_failures"`
	CacheHits       uint64    `json:"cache_hits"`
	Writes          uint64    `json:"writes"`
	WriteFailures   uint64    `json:"write_failures"`
	LastError       string    `json:"last_error,omitempty"`
	LastFetch       time.Time `json:"last_fetch,omitempty"`
}

// ConnectionManager owns the single device handle and the status cache.
//
// Every operation holds one mutex for its full duration, including device
// I/O, so at most one call into the link is in flight. A lost handle is
// replaced lazily: the next call makes exactly one connect attempt.
// Failures are reported as false or an empty mapping, never as errors.
type ConnectionManager struct {
	link   DeviceLink
	id     Identity
	ttl    time.Duration
	clock  Clock
	logger Logger

	mu         sync.Mutex
	handle     Handle // nil while disconnected
	cache      RawDatapoints
	capturedAt time.Time
	stats      ManagerStats
}

// NewConnectionManager creates a disconnected manager. Call Connect to
// connect eagerly; otherwise the first Status or SetValue connects.
func NewConnectionManager(opts ManagerOptions) *ConnectionManager {
	m := &ConnectionManager{
		link:   opts.Link,
		id:     opts.Identity,
		ttl:    opts.TTL,
		clock:  opts.Clock,
		logger: opts.Logger,
	}
	if m.ttl <= 0 {
		m.ttl = DefaultCacheTTL
	}
	if m.clock == nil {
		m.clock = SystemClock{}
	}
	if m.logger == nil {
		m.logger = nopLogger{}
	}
	return m
}

// SetLogger replaces the logger.
func (m *ConnectionManager) SetLogger(logger Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

// Connect replaces the current handle with a new one.
// Any previous handle is closed and the cache is discarded.
func (m *ConnectionManager) Connect(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(ctx)
}

// Status returns the device's raw datapoints.
//
// A fresh cache is returned without I/O unless forceRefresh is set. An
// empty mapping means the device is offline or reported nothing.
func (m *ConnectionManager) Status(ctx context.Context, forceRefresh bool) RawDatapoints {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !forceRefresh && m.freshLocked() {
		m.stats.CacheHits++
		return m.cache.Clone()
	}

	if m.handle == nil && !m.connectLocked(ctx) {
		return RawDatapoints{}
	}

	m.stats.DeviceReads++
	raw, err := m.handle.Status(context.WithoutCancel(ctx))
	if err != nil {
		m.stats.ReadFailures++
		m.dropLocked("status query failed", err)
		return RawDatapoints{}
	}
	if len(raw) == 0 {
		m.logger.Debug("device returned no datapoints")
		return RawDatapoints{}
	}

	m.cache = raw.Clone()
	m.capturedAt = m.clock.Now()
	m.stats.LastFetch = m.capturedAt
	return raw.Clone()
}

// SetValue writes one datapoint. True means the device acknowledged it;
// the cache is then stale and the next Status refetches.
func (m *ConnectionManager) SetValue(ctx context.Context, index int, value any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil && !m.connectLocked(ctx) {
		return false
	}

	m.stats.Writes++
	if err := m.handle.SetValue(context.WithoutCancel(ctx), index, value); err != nil {
		m.stats.WriteFailures++
		m.dropLocked("set value failed", err, "dp", index)
		return false
	}

	m.cache = nil
	m.logger.Debug("datapoint written", "dp", index)
	return true
}

// Connected reports whether a handle is held.
func (m *ConnectionManager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil
}

// Stats returns a snapshot of activity counters.
func (m *ConnectionManager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Connected = m.handle != nil
	return s
}

// Identity returns the credentials the manager connects with.
func (m *ConnectionManager) Identity() Identity {
	return m.id
}

// Close drops the handle. The manager stays usable; the next call reconnects.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = nil
	if m.handle == nil {
		return nil
	}
	err := m.handle.Close()
	m.handle = nil
	return err
}

func (m *ConnectionManager) freshLocked() bool {
	return m.cache != nil && m.clock.Now().Sub(m.capturedAt) < m.ttl
}

func (m *ConnectionManager) connectLocked(ctx context.Context) bool {
	m.stats.ConnectAttempts++
	m.cache = nil
	if m.handle != nil {
		if err := m.handle.Close(); err != nil {
			m.logger.Debug("closing previous handle", "error", err)
		}
		m.handle = nil
	}

	if !m.id.Complete() {
		m.stats.ConnectFailures++
		m.stats.LastError = ErrMissingCredentials.Error()
		m.logger.Warn("cannot connect: missing device credentials")
		return false
	}

	h, err := m.link.Connect(context.WithoutCancel(ctx), m.id)
	if err != nil {
		m.stats.ConnectFailures++
		m.stats.LastError = err.Error()
		m.logger.Warn("device connect failed", "device_id", m.id.DeviceID, "error", err)
		return false
	}

	m.handle = h
	m.logger.Info("device connected", "device_id", m.id.DeviceID, "address", m.id.Address)
	return true
}

// dropLocked closes the handle after a failed I/O and forgets the cache.
func (m *ConnectionManager) dropLocked(msg string, err error, args ...any) {
	m.stats.LastError = err.Error()
	m.logger.Warn(msg, append(args, "error", err)...)
	if m.handle != nil {
		_ = m.handle.Close() //nolint:errcheck // handle is already unusable
	}
	m.handle = nil
	m.cache = nil
}
