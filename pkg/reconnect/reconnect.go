package reconnect

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// Policy configures the reconnect manager.
type Policy struct {
	MinBackoff        time.Duration // initial backoff between attempts
	MaxBackoff        time.Duration // backoff ceiling
	BackoffMultiplier float64       // growth factor per consecutive failure
	MaxRetries        int           // consecutive failures before the circuit opens (0 = unlimited)
	HeartbeatTimeout  time.Duration // max silence before the connection counts as dead
	CircuitResetAfter time.Duration // cool-down before retrying with an open circuit
}

func (p Policy) withDefaults() Policy {
	if p.MinBackoff == 0 {
		p.MinBackoff = 1 * time.Second
	}
	if p.MaxBackoff == 0 {
		p.MaxBackoff = 5 * time.Minute
	}
	if p.BackoffMultiplier == 0 {
		p.BackoffMultiplier = 2.0
	}
	if p.HeartbeatTimeout == 0 {
		p.HeartbeatTimeout = 60 * time.Second
	}
	if p.CircuitResetAfter == 0 {
		p.CircuitResetAfter = 5 * time.Minute
	}
	return p
}

// Manager tracks connection health and paces reconnection attempts with
// exponential backoff and a circuit breaker. It is transport-agnostic; the
// gateway client drives it around its read loop.
type Manager struct {
	policy Policy
	log    *logger.Logger

	mu              sync.RWMutex
	backoff         time.Duration
	failures        int
	reconnects      int
	circuitOpen     bool
	circuitOpenedAt time.Time

	lastMessageNano atomic.Int64
}

// NewManager creates a reconnect manager.
func NewManager(policy Policy, log *logger.Logger) *Manager {
	policy = policy.withDefaults()
	return &Manager{
		policy:  policy,
		backoff: policy.MinBackoff,
		log:     log.With("component", "reconnect"),
	}
}

// Touch records message activity. Call it for every frame received.
func (m *Manager) Touch() {
	m.lastMessageNano.Store(time.Now().UnixNano())
}

// Healthy reports whether the connection has shown recent activity and the
// circuit is closed. A connection with no traffic yet counts as healthy.
func (m *Manager) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.circuitOpen {
		return false
	}

	last := m.lastMessageNano.Load()
	if last == 0 {
		return true
	}
	return time.Since(time.Unix(0, last)) <= m.policy.HeartbeatTimeout
}

// ShouldRetry reports whether another reconnection attempt is allowed.
func (m *Manager) ShouldRetry() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.circuitOpen {
		return time.Since(m.circuitOpenedAt) >= m.policy.CircuitResetAfter
	}
	if m.policy.MaxRetries > 0 && m.failures >= m.policy.MaxRetries {
		return false
	}
	return true
}

// Attempt waits out the current backoff, then runs connect. Success resets the
// backoff and closes the circuit; failure grows the backoff and may open it.
func (m *Manager) Attempt(ctx context.Context, connect func(context.Context) error) error {
	if !m.ShouldRetry() {
		return errors.Wrap(errors.ErrTimeout, "reconnect circuit open")
	}

	m.mu.RLock()
	backoff := m.backoff
	first := m.failures == 0 && m.reconnects == 0
	m.mu.RUnlock()

	if !first && backoff > 0 {
		m.log.Infow("Waiting before reconnect attempt", "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := connect(ctx); err != nil {
		m.recordFailure()
		return errors.Wrap(err, "connect failed")
	}

	m.recordSuccess()
	return nil
}

func (m *Manager) recordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures++

	next := time.Duration(float64(m.backoff) * m.policy.BackoffMultiplier)
	if next > m.policy.MaxBackoff {
		next = m.policy.MaxBackoff
	}
	m.backoff = next

	m.log.Warnw("Connection attempt failed", "consecutive_failures", m.failures, "next_backoff", m.backoff)

	if m.policy.MaxRetries > 0 && m.failures >= m.policy.MaxRetries && !m.circuitOpen {
		m.circuitOpen = true
		m.circuitOpenedAt = time.Now()
		m.log.Errorw("Circuit opened after repeated failures",
			"consecutive_failures", m.failures,
			"reset_after", m.policy.CircuitResetAfter,
		)
	}
}

func (m *Manager) recordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failures > 0 {
		m.log.Infow("Connection restored", "previous_failures", m.failures)
	}

	m.backoff = m.policy.MinBackoff
	m.failures = 0
	m.reconnects++
	m.circuitOpen = false
	m.circuitOpenedAt = time.Time{}
	m.lastMessageNano.Store(time.Now().UnixNano())
}

// Stats is a snapshot of the manager state.
type Stats struct {
	ConsecutiveFailures int
	TotalReconnects     int
	CurrentBackoff      time.Duration
	CircuitOpen         bool
	Healthy             bool
}

// GetStats returns the current snapshot.
func (m *Manager) GetStats() Stats {
	healthy := m.Healthy()

	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		ConsecutiveFailures: m.failures,
		TotalReconnects:     m.reconnects,
		CurrentBackoff:      m.backoff,
		CircuitOpen:         m.circuitOpen,
		Healthy:             healthy,
	}
}
