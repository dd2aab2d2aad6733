// Package metrics exports scheduler instrumentation to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/me/taskhost/internal/scheduler"
	"github.com/me/taskhost/pkg/model"
)

// Options controls collector configuration.
type Options struct {
	TickBuckets   []float64
	WorkerBuckets []float64
}

// Exporter adapts scheduler.Metrics to Prometheus collectors.
type Exporter struct {
	tasksCreated   prom.Counter
	tasksDestroyed *prom.CounterVec
	feedback       *prom.CounterVec
	tasksResumed   prom.Counter
	tickDuration   prom.Histogram
	workerDuration *prom.HistogramVec
	queueDepth     prom.Gauge
	liveTasks      prom.Gauge
}

var _ scheduler.Metrics = (*Exporter)(nil)

// NewExporter creates and registers the scheduler collectors.
func NewExporter(namespace string, reg prom.Registerer, opts Options) (*Exporter, error) {
	if namespace == "" {
		namespace = "taskhost"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	tickBuckets := opts.TickBuckets
	if len(tickBuckets) == 0 {
		tickBuckets = prom.ExponentialBuckets(0.0001, 4, 8)
	}
	workerBuckets := opts.WorkerBuckets
	if len(workerBuckets) == 0 {
		workerBuckets = prom.DefBuckets
	}

	created := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_created_total",
		Help:      "Total number of tasks registered.",
	})
	destroyed := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_destroyed_total",
		Help:      "Total number of tasks torn down, by cause.",
	}, []string{"cause"})
	feedback := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_failures_total",
		Help:      "Total number of failures reported by tasks and workers.",
	}, []string{"cause"})
	resumed := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_resumed_total",
		Help:      "Total number of resumptions performed by driver ticks.",
	})
	tick := prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "tick_duration_seconds",
		Help:      "Driver tick duration in seconds.",
		Buckets:   tickBuckets,
	})
	worker := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "worker_duration_seconds",
		Help:      "Worker-bridge job duration in seconds.",
		Buckets:   workerBuckets,
	}, []string{"result"})
	depth := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "ready_queue_depth",
		Help:      "Tasks waiting in the ready queue after the last tick.",
	})
	live := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "live_tasks",
		Help:      "Registered tasks after the last tick.",
	})

	var err error
	if created, err = registerCollector(reg, created); err != nil {
		return nil, err
	}
	if destroyed, err = registerCollector(reg, destroyed); err != nil {
		return nil, err
	}
	if feedback, err = registerCollector(reg, feedback); err != nil {
		return nil, err
	}
	if resumed, err = registerCollector(reg, resumed); err != nil {
		return nil, err
	}
	if tick, err = registerCollector(reg, tick); err != nil {
		return nil, err
	}
	if worker, err = registerCollector(reg, worker); err != nil {
		return nil, err
	}
	if depth, err = registerCollector(reg, depth); err != nil {
		return nil, err
	}
	if live, err = registerCollector(reg, live); err != nil {
		return nil, err
	}

	return &Exporter{
		tasksCreated:   created,
		tasksDestroyed: destroyed,
		feedback:       feedback,
		tasksResumed:   resumed,
		tickDuration:   tick,
		workerDuration: worker,
		queueDepth:     depth,
		liveTasks:      live,
	}, nil
}

// RecordTaskCreated implements scheduler.Metrics.
func (m *Exporter) RecordTaskCreated() {
	if m == nil {
		return
	}
	m.tasksCreated.Inc()
}

// RecordTaskDestroyed implements scheduler.Metrics.
func (m *Exporter) RecordTaskDestroyed(cause model.KillCause) {
	if m == nil {
		return
	}
	m.tasksDestroyed.WithLabelValues(normalizeLabel(string(cause), "unknown")).Inc()
}

// RecordFeedback implements scheduler.Metrics.
func (m *Exporter) RecordFeedback(cause model.KillCause) {
	if m == nil {
		return
	}
	m.feedback.WithLabelValues(normalizeLabel(string(cause), "unknown")).Inc()
}

// RecordTick implements scheduler.Metrics.
func (m *Exporter) RecordTick(resumed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.tasksResumed.Add(float64(resumed))
	m.tickDuration.Observe(duration.Seconds())
}

// RecordQueueDepth implements scheduler.Metrics.
func (m *Exporter) RecordQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// RecordLiveTasks implements scheduler.Metrics.
func (m *Exporter) RecordLiveTasks(n int) {
	if m == nil {
		return
	}
	m.liveTasks.Set(float64(n))
}

// RecordWorkerDuration implements scheduler.Metrics.
func (m *Exporter) RecordWorkerDuration(duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "failed"
	}
	m.workerDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
