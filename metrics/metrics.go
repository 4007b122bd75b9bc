// Package metrics exposes bucket request and sync counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/galexite/guildsync"
	"github.com/galexite/guildsync/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "guildsync"

// Collector records bucket requests, sync outcomes and state repo calls. It
// implements client.Observer and guildsync.SyncObserver.
type Collector struct {
	registry *prometheus.Registry

	bucketRequests *prometheus.CounterVec
	bucketDuration *prometheus.HistogramVec
	syncs          *prometheus.CounterVec
	syncDuration   *prometheus.HistogramVec
	lastUpdate     *prometheus.GaugeVec
	repoDuration   *prometheus.HistogramVec
}

var (
	_ client.Observer        = (*Collector)(nil)
	_ guildsync.SyncObserver = (*Collector)(nil)
)

// New creates a Collector registered on its own registry, together with the
// Go runtime and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		bucketRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bucket_requests_total",
				Help:      "Total number of signed bucket requests by outcome",
			},
			[]string{"method", "resource", "outcome"},
		),
		bucketDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bucket_request_duration_seconds",
				Help:      "Duration of signed bucket requests in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "resource"},
		),
		syncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "syncs_total",
				Help:      "Total number of resource syncs by outcome",
			},
			[]string{"resource", "outcome"},
		),
		syncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Duration of resource syncs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource"},
		),
		lastUpdate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_update_timestamp_seconds",
				Help:      "Unix time of the last sync that downloaded a new payload",
			},
			[]string{"resource"},
		),
		repoDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "state_repo_duration_seconds",
				Help:      "Duration of state repository operations in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"operation", "status"},
		),
	}

	c.registry.MustRegister(
		c.bucketRequests,
		c.bucketDuration,
		c.syncs,
		c.syncDuration,
		c.lastUpdate,
		c.repoDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the registry every metric is registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveRequest implements client.Observer.
func (c *Collector) ObserveRequest(method, path string, kind client.FailureKind, d time.Duration) {
	c.bucketRequests.WithLabelValues(method, resourceLabel(path), kind.String()).Inc()
	c.bucketDuration.WithLabelValues(method, resourceLabel(path)).Observe(d.Seconds())
}

// ObserveSync implements guildsync.SyncObserver.
func (c *Collector) ObserveSync(resource guildsync.Resource, outcome guildsync.SyncOutcome, d time.Duration) {
	label := resourceLabel(string(resource))
	c.syncs.WithLabelValues(label, string(outcome)).Inc()
	c.syncDuration.WithLabelValues(label).Observe(d.Seconds())
	if outcome == guildsync.OutcomeUpdated {
		c.lastUpdate.WithLabelValues(label).SetToCurrentTime()
	}
}

// InstrumentStateRepo wraps repo so every call is timed.
func (c *Collector) InstrumentStateRepo(repo guildsync.StateRepo) guildsync.StateRepo {
	return &stateRepo{repo: repo, duration: c.repoDuration}
}

// resourceLabel keeps label cardinality bounded to the known resources.
func resourceLabel(path string) string {
	if res, err := guildsync.ParseResource(strings.TrimPrefix(path, "/")); err == nil {
		return res.String()
	}
	return "other"
}

type stateRepo struct {
	repo     guildsync.StateRepo
	duration *prometheus.HistogramVec
}

func (r *stateRepo) Get(ctx context.Context, resource guildsync.Resource) (guildsync.SyncState, error) {
	start := time.Now()
	s, err := r.repo.Get(ctx, resource)
	r.record("get", start, err)
	return s, err
}

func (r *stateRepo) Upsert(ctx context.Context, state guildsync.SyncState) (guildsync.SyncState, bool, error) {
	start := time.Now()
	s, inserted, err := r.repo.Upsert(ctx, state)
	r.record("upsert", start, err)
	return s, inserted, err
}

func (r *stateRepo) List(ctx context.Context) ([]guildsync.SyncState, error) {
	start := time.Now()
	states, err := r.repo.List(ctx)
	r.record("list", start, err)
	return states, err
}

func (r *stateRepo) record(operation string, start time.Time, err error) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, guildsync.ErrNotFound):
		status = "not_found"
	default:
		status = "error"
	}
	r.duration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}
