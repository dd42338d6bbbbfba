// Package metrics exports futex table and scheduler statistics to
// Prometheus.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/llxisdsh/futex"
	"github.com/llxisdsh/futex/sched"
)

const (
	namespace = "futex"
	subsystem = "table"
)

// TableSource is implemented by *futex.Table.
type TableSource interface {
	Stats(ctx context.Context) (futex.Stats, error)
}

// SchedSource is implemented by *sched.Scheduler.
type SchedSource interface {
	Stats() sched.Stats
}

// Collector is a prometheus.Collector reading a Table and, optionally, its
// Scheduler on every scrape.
type Collector struct {
	table   TableSource
	sched   SchedSource
	timeout time.Duration
	log     *zap.Logger

	waits      *prometheus.Desc
	woken      *prometheus.Desc
	timeouts   *prometheus.Desc
	mismatches *prometheus.Desc
	requeued   *prometheus.Desc
	recycled   *prometheus.Desc
	lockFails  *prometheus.Desc
	keys       *prometheus.Desc
	waiters    *prometheus.Desc

	reschedules     *prometheus.Desc
	peerReschedules *prometheus.Desc
	pendingTasks    *prometheus.Desc
}

// NewCollector creates a Collector. s may be nil.
func NewCollector(t TableSource, s SchedSource, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	desc := func(sub, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, sub, name), help, labels, nil)
	}
	return &Collector{
		table:   t,
		sched:   s,
		timeout: time.Second,
		log:     log,

		waits:      desc(subsystem, "waits_total", "Waiters enqueued by Wait."),
		woken:      desc(subsystem, "woken_total", "Tasks woken by Wake or Requeue."),
		timeouts:   desc(subsystem, "timeouts_total", "Waits that ended by timeout."),
		mismatches: desc(subsystem, "value_mismatches_total", "Waits rejected because the word changed."),
		requeued:   desc(subsystem, "requeued_total", "Waiters moved by Requeue."),
		recycled:   desc(subsystem, "recycled_total", "Stale waiter nodes removed lazily."),
		lockFails:  desc(subsystem, "lock_failures_total", "Bucket mutex acquisitions that failed."),
		keys:       desc(subsystem, "keys", "Keys with waiters per bucket.", "bucket", "scope"),
		waiters:    desc(subsystem, "waiters", "Linked waiter nodes per bucket.", "bucket", "scope"),

		reschedules:     desc("sched", "reschedules_total", "Local reschedule requests."),
		peerReschedules: desc("sched", "peer_reschedules_total", "Cross-processor reschedule requests."),
		pendingTasks:    desc("sched", "pending_tasks", "Tasks currently blocked."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.waits, c.woken, c.timeouts, c.mismatches, c.requeued, c.recycled,
		c.lockFails, c.keys, c.waiters,
	} {
		ch <- d
	}
	if c.sched != nil {
		ch <- c.reschedules
		ch <- c.peerReschedules
		ch <- c.pendingTasks
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	st, err := c.table.Stats(ctx)
	if err != nil {
		c.log.Warn("futex stats incomplete", zap.Error(err))
	}
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.waits, st.Waits)
	counter(c.woken, st.Woken)
	counter(c.timeouts, st.Timeouts)
	counter(c.mismatches, st.Mismatches)
	counter(c.requeued, st.Requeued)
	counter(c.recycled, st.Recycled)
	counter(c.lockFails, st.LockFails)
	for _, b := range st.Buckets {
		scope := "private"
		if b.Shared {
			scope = "shared"
		}
		idx := strconv.Itoa(b.Index)
		ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(b.Keys), idx, scope)
		ch <- prometheus.MustNewConstMetric(c.waiters, prometheus.GaugeValue, float64(b.Waiters), idx, scope)
	}

	if c.sched != nil {
		ss := c.sched.Stats()
		counter(c.reschedules, ss.Reschedules)
		counter(c.peerReschedules, ss.PeerReschedules)
		ch <- prometheus.MustNewConstMetric(c.pendingTasks, prometheus.GaugeValue, float64(ss.Pending))
	}
}
