// Package metrics exposes pipeline, index and cache activity as
// Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "notedex"

// Collector implements the observer interfaces of the importer, index and
// csvcache packages
type Collector struct {
	queueDepth   prometheus.Gauge
	busyWorkers  prometheus.Gauge
	parses       *prometheus.CounterVec
	parseLatency prometheus.Histogram
	deduplicated prometheus.Counter

	revision  prometheus.Gauge
	documents prometheus.Gauge
	touches   prometheus.Counter

	cacheRequests *prometheus.CounterVec
	cacheLoads    *prometheus.CounterVec
	cacheLatency  prometheus.Histogram
	cacheEvicted  prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "importer",
			Name:      "queue_depth",
			Help:      "Documents waiting for a free worker",
		}),
		busyWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "importer",
			Name:      "busy_workers",
			Help:      "Workers currently parsing a document",
		}),
		parses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "importer",
			Name:      "parses_total",
			Help:      "Finished imports by status",
		}, []string{"status"}),
		parseLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "importer",
			Name:      "parse_duration_seconds",
			Help:      "Time spent parsing one document on a worker",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		deduplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "importer",
			Name:      "deduplicated_total",
			Help:      "Reloads that joined an already queued or running parse",
		}),
		revision: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "revision",
			Help:      "Current index revision",
		}),
		documents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "documents",
			Help:      "Documents with indexed facts",
		}),
		touches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "touches_total",
			Help:      "Observable index changes",
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "csv_cache",
			Name:      "requests_total",
			Help:      "CSV cache lookups by result",
		}, []string{"result"}),
		cacheLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "csv_cache",
			Name:      "loads_total",
			Help:      "CSV loads by status",
		}, []string{"status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "csv_cache",
			Name:      "load_duration_seconds",
			Help:      "Time spent loading and parsing a CSV file",
			Buckets:   prometheus.DefBuckets,
		}),
		cacheEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "csv_cache",
			Name:      "expired_total",
			Help:      "Entries dropped by the expiry sweep",
		}),
	}

	if reg != nil {
		for _, col := range c.collectors() {
			if err := reg.Register(col); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.queueDepth, c.busyWorkers, c.parses, c.parseLatency, c.deduplicated,
		c.revision, c.documents, c.touches,
		c.cacheRequests, c.cacheLoads, c.cacheLatency, c.cacheEvicted,
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// QueueDepth implements importer.Observer
func (c *Collector) QueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

// BusyWorkers implements importer.Observer
func (c *Collector) BusyWorkers(n int) {
	c.busyWorkers.Set(float64(n))
}

// Deduplicated implements importer.Observer
func (c *Collector) Deduplicated() {
	c.deduplicated.Inc()
}

// Parsed implements importer.Observer
func (c *Collector) Parsed(d time.Duration, err error) {
	c.parses.WithLabelValues(status(err)).Inc()
	if d > 0 {
		c.parseLatency.Observe(d.Seconds())
	}
}

// Touched implements index.Observer
func (c *Collector) Touched(revision uint64, documents int) {
	c.touches.Inc()
	c.revision.Set(float64(revision))
	c.documents.Set(float64(documents))
}

// CacheHit implements csvcache.Observer
func (c *Collector) CacheHit() {
	c.cacheRequests.WithLabelValues("hit").Inc()
}

// CacheMiss implements csvcache.Observer
func (c *Collector) CacheMiss() {
	c.cacheRequests.WithLabelValues("miss").Inc()
}

// CacheLoad implements csvcache.Observer
func (c *Collector) CacheLoad(d time.Duration, err error) {
	c.cacheLoads.WithLabelValues(status(err)).Inc()
	c.cacheLatency.Observe(d.Seconds())
}

// CacheEvict implements csvcache.Observer
func (c *Collector) CacheEvict(n int) {
	c.cacheEvicted.Add(float64(n))
}
