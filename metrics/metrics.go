// Package metrics exposes queue activity as Prometheus metrics.
package metrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ledgerline/taskqueue/pkg/core"
	"github.com/ledgerline/taskqueue/pkg/queue"
)

// Collector subscribes to queue events and translates them into Prometheus
// counters and gauges. Each queue instance gets its own collector so
// metrics stay per-instance.
type Collector struct {
	queue *queue.Queue

	tasksQueued    *prometheus.CounterVec
	tasksCompleted *prometheus.CounterVec
	tasksRetried   *prometheus.CounterVec
	tasksFailed    *prometheus.CounterVec
	tasksInFlight  prometheus.Gauge
	taskDuration   *prometheus.HistogramVec

	// ready is closed once the collector has subscribed to events.
	ready     chan struct{}
	readyOnce sync.Once
}

// NewCollector creates a collector for the given queue.
func NewCollector(q *queue.Queue) *Collector {
	return &Collector{
		queue: q,
		tasksQueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskqueue_tasks_queued_total",
				Help: "Total number of tasks accepted into the queue.",
			},
			[]string{"type"},
		),
		tasksCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskqueue_tasks_completed_total",
				Help: "Total number of tasks completed successfully.",
			},
			[]string{"type"},
		),
		tasksRetried: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskqueue_tasks_retried_total",
				Help: "Total number of task retry requeues.",
			},
			[]string{"type"},
		),
		tasksFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskqueue_tasks_failed_total",
				Help: "Total number of tasks failed permanently.",
			},
			[]string{"type"},
		),
		tasksInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "taskqueue_tasks_in_flight",
				Help: "Number of tasks currently processing.",
			},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskqueue_task_duration_seconds",
				Help:    "Handler execution duration for completed tasks.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		ready: make(chan struct{}),
	}
}

// MustRegister registers all collector metrics with the registry.
func (c *Collector) MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		c.tasksQueued,
		c.tasksCompleted,
		c.tasksRetried,
		c.tasksFailed,
		c.tasksInFlight,
		c.taskDuration,
	)
}

// WaitReady blocks until the collector has subscribed to events.
func (c *Collector) WaitReady() {
	<-c.ready
}

// Start consumes queue events until ctx is cancelled.
func (c *Collector) Start(ctx context.Context) {
	events := c.queue.Events()
	defer c.queue.Unsubscribe(events)

	c.readyOnce.Do(func() { close(c.ready) })

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			c.handleEvent(e)
		}
	}
}

func (c *Collector) handleEvent(e core.Event) {
	switch ev := e.(type) {
	case *core.TaskQueued:
		c.tasksQueued.WithLabelValues(ev.Task.Type).Inc()
	case *core.TaskStarted:
		c.tasksInFlight.Inc()
	case *core.TaskCompleted:
		c.tasksInFlight.Dec()
		c.tasksCompleted.WithLabelValues(ev.Task.Type).Inc()
		c.taskDuration.WithLabelValues(ev.Task.Type).Observe(ev.Duration.Seconds())
	case *core.TaskRetrying:
		c.tasksInFlight.Dec()
		c.tasksRetried.WithLabelValues(ev.Task.Type).Inc()
	case *core.TaskFailed:
		c.tasksInFlight.Dec()
		c.tasksFailed.WithLabelValues(ev.Task.Type).Inc()
	}
}
