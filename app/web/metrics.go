package web

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// metrics holds server counters, registered on a per-server registry
type metrics struct {
	registry      *prometheus.Registry
	submitted     prometheus.Counter
	rejected      prometheus.Counter
	deleted       prometheus.Counter
	storageErrors prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reevolve",
			Subsystem: "applications",
			Name:      "submitted_total",
			Help:      "Number of accepted applications.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reevolve",
			Subsystem: "applications",
			Name:      "rejected_total",
			Help:      "Number of submissions rejected as invalid.",
		}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reevolve",
			Subsystem: "applications",
			Name:      "deleted_total",
			Help:      "Number of deleted applications.",
		}),
		storageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reevolve",
			Subsystem: "http",
			Name:      "storage_errors_total",
			Help:      "Number of requests failed with storage error.",
		}),
	}
	m.registry.MustRegister(m.submitted, m.rejected, m.deleted, m.storageErrors,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}
