package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/spin-stack/vrouter-vif/internal/driver"
)

// lifecycleCollector exports driver counters at scrape time.
type lifecycleCollector struct {
	metrics *driver.Metrics

	attempts         *prometheus.Desc
	successes        *prometheus.Desc
	failures         *prometheus.Desc
	plugSkipped      *prometheus.Desc
	portsRejected    *prometheus.Desc
	unplugFailures   *prometheus.Desc
	rollbacks        *prometheus.Desc
	rollbackFailures *prometheus.Desc
	seconds          *prometheus.Desc
}

func newLifecycleCollector(m *driver.Metrics) *lifecycleCollector {
	op := []string{"operation"}
	return &lifecycleCollector{
		metrics:          m,
		attempts:         prometheus.NewDesc("vifd_operation_attempts_total", "Lifecycle operations started.", op, nil),
		successes:        prometheus.NewDesc("vifd_operation_successes_total", "Lifecycle operations that succeeded.", op, nil),
		failures:         prometheus.NewDesc("vifd_operation_failures_total", "Lifecycle operations that failed after rollback.", op, nil),
		plugSkipped:      prometheus.NewDesc("vifd_plug_skipped_total", "Plugs skipped because the host device already existed.", nil, nil),
		portsRejected:    prometheus.NewDesc("vifd_ports_rejected_total", "Port registrations rejected by the vrouter agent.", nil, nil),
		unplugFailures:   prometheus.NewDesc("vifd_unplug_step_failures_total", "Unplug steps that failed and were logged.", []string{"step"}, nil),
		rollbacks:        prometheus.NewDesc("vifd_rollbacks_total", "Rollbacks executed.", nil, nil),
		rollbackFailures: prometheus.NewDesc("vifd_rollback_action_failures_total", "Compensating actions that failed.", nil, nil),
		seconds:          prometheus.NewDesc("vifd_operation_seconds_total", "Cumulative time spent in lifecycle operations.", op, nil),
	}
}

func (c *lifecycleCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.attempts
	ch <- c.successes
	ch <- c.failures
	ch <- c.plugSkipped
	ch <- c.portsRejected
	ch <- c.unplugFailures
	ch <- c.rollbacks
	ch <- c.rollbackFailures
	ch <- c.seconds
}

func (c *lifecycleCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.metrics
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	seconds := func(ns int64, op string) {
		ch <- prometheus.MustNewConstMetric(c.seconds, prometheus.CounterValue, float64(ns)/1e9, op)
	}

	counter(c.attempts, m.PlugAttempts.Load(), "plug")
	counter(c.attempts, m.AttachAttempts.Load(), "attach")
	counter(c.attempts, m.UnplugAttempts.Load(), "unplug")
	counter(c.successes, m.PlugSuccesses.Load(), "plug")
	counter(c.successes, m.AttachSuccesses.Load(), "attach")
	counter(c.failures, m.PlugFailures.Load(), "plug")
	counter(c.failures, m.AttachFailures.Load(), "attach")
	counter(c.plugSkipped, m.PlugSkipped.Load())
	counter(c.portsRejected, m.PortsRejected.Load())
	counter(c.unplugFailures, m.PortDeleteFailures.Load(), "delete_port")
	counter(c.unplugFailures, m.LinkDeleteFailures.Load(), "delete_link")
	counter(c.rollbacks, m.Rollbacks.Load())
	counter(c.rollbackFailures, m.RollbackActionFailures.Load())
	seconds(m.TotalPlugTimeNs.Load(), "plug")
	seconds(m.TotalAttachTimeNs.Load(), "attach")
	seconds(m.TotalUnplugTimeNs.Load(), "unplug")
}
