package driver

import (
	"sync/atomic"
	"time"
)

// Metrics tracks lifecycle operation statistics.
// All fields are safe for concurrent access.
type Metrics struct {
	// Plug metrics
	PlugAttempts  atomic.Int64
	PlugSuccesses atomic.Int64
	PlugFailures  atomic.Int64
	PlugSkipped   atomic.Int64 // host device already present

	// Attach metrics
	AttachAttempts  atomic.Int64
	AttachSuccesses atomic.Int64
	AttachFailures  atomic.Int64
	PortsRejected   atomic.Int64

	// Unplug metrics. Unplug never fails the caller; step failures are counted here.
	UnplugAttempts     atomic.Int64
	PortDeleteFailures atomic.Int64
	LinkDeleteFailures atomic.Int64

	// Rollback metrics
	Rollbacks              atomic.Int64
	RollbackActionFailures atomic.Int64

	// Timing (nanoseconds, use time.Duration for display)
	TotalPlugTimeNs   atomic.Int64
	TotalAttachTimeNs atomic.Int64
	TotalUnplugTimeNs atomic.Int64
}

// RecordPlug records a plug attempt result.
func (m *Metrics) RecordPlug(success, skipped bool, duration time.Duration) {
	m.PlugAttempts.Add(1)
	m.TotalPlugTimeNs.Add(int64(duration))

	if success {
		m.PlugSuccesses.Add(1)
	} else {
		m.PlugFailures.Add(1)
	}
	if skipped {
		m.PlugSkipped.Add(1)
	}
}

// RecordAttach records an attach attempt result.
func (m *Metrics) RecordAttach(success, rejected bool, duration time.Duration) {
	m.AttachAttempts.Add(1)
	m.TotalAttachTimeNs.Add(int64(duration))

	if success {
		m.AttachSuccesses.Add(1)
	} else {
		m.AttachFailures.Add(1)
	}
	if rejected {
		m.PortsRejected.Add(1)
	}
}

// RecordUnplug records an unplug and which of its steps failed.
func (m *Metrics) RecordUnplug(portFailed, linkFailed bool, duration time.Duration) {
	m.UnplugAttempts.Add(1)
	m.TotalUnplugTimeNs.Add(int64(duration))

	if portFailed {
		m.PortDeleteFailures.Add(1)
	}
	if linkFailed {
		m.LinkDeleteFailures.Add(1)
	}
}

// RecordRollback records a rollback and how many of its actions failed.
func (m *Metrics) RecordRollback(failedActions int) {
	m.Rollbacks.Add(1)
	m.RollbackActionFailures.Add(int64(failedActions))
}

// Reset resets all metrics to zero. Useful for testing.
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Int64{
		&m.PlugAttempts, &m.PlugSuccesses, &m.PlugFailures, &m.PlugSkipped,
		&m.AttachAttempts, &m.AttachSuccesses, &m.AttachFailures, &m.PortsRejected,
		&m.UnplugAttempts, &m.PortDeleteFailures, &m.LinkDeleteFailures,
		&m.Rollbacks, &m.RollbackActionFailures,
		&m.TotalPlugTimeNs, &m.TotalAttachTimeNs, &m.TotalUnplugTimeNs,
	} {
		c.Store(0)
	}
}

// MetricsSnapshot is a point-in-time copy of metrics values.
// Useful for logging or exporting metrics.
type MetricsSnapshot struct {
	PlugAttempts           int64
	PlugSuccesses          int64
	PlugFailures           int64
	PlugSkipped            int64
	AttachAttempts         int64
	AttachSuccesses        int64
	AttachFailures         int64
	PortsRejected          int64
	UnplugAttempts         int64
	PortDeleteFailures     int64
	LinkDeleteFailures     int64
	Rollbacks              int64
	RollbackActionFailures int64
	AvgPlugTimeMs          float64
	AvgAttachTimeMs        float64
	AvgUnplugTimeMs        float64
}

// Snapshot returns a point-in-time copy of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	plugs := m.PlugAttempts.Load()
	attaches := m.AttachAttempts.Load()
	unplugs := m.UnplugAttempts.Load()

	snap := MetricsSnapshot{
		PlugAttempts:           plugs,
		PlugSuccesses:          m.PlugSuccesses.Load(),
		PlugFailures:           m.PlugFailures.Load(),
		PlugSkipped:            m.PlugSkipped.Load(),
		AttachAttempts:         attaches,
		AttachSuccesses:        m.AttachSuccesses.Load(),
		AttachFailures:         m.AttachFailures.Load(),
		PortsRejected:          m.PortsRejected.Load(),
		UnplugAttempts:         unplugs,
		PortDeleteFailures:     m.PortDeleteFailures.Load(),
		LinkDeleteFailures:     m.LinkDeleteFailures.Load(),
		Rollbacks:              m.Rollbacks.Load(),
		RollbackActionFailures: m.RollbackActionFailures.Load(),
	}

	if plugs > 0 {
		snap.AvgPlugTimeMs = float64(m.TotalPlugTimeNs.Load()) / float64(plugs) / 1e6
	}
	if attaches > 0 {
		snap.AvgAttachTimeMs = float64(m.TotalAttachTimeNs.Load()) / float64(attaches) / 1e6
	}
	if unplugs > 0 {
		snap.AvgUnplugTimeMs = float64(m.TotalUnplugTimeNs.Load()) / float64(unplugs) / 1e6
	}

	return snap
}
