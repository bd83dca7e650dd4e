// Package metrics records build and prune activity as Prometheus metrics
// and exports them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "alpine_cloud_images"

// Recorder holds the metrics of one run. A nil Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	actionsTotal   *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	plannedImages  *prometheus.GaugeVec
	pruneTotal     *prometheus.CounterVec
	lastRun        prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "build",
				Name:      "actions_total",
				Help:      "Total number of image actions by cloud, action and result",
			},
			[]string{"cloud", "action", "result"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "build",
				Name:      "action_duration_seconds",
				Help:      "Duration of image actions in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
			},
			[]string{"cloud", "action"},
		),
		plannedImages: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "build",
				Name:      "planned_images",
				Help:      "Number of images with planned actions by step",
			},
			[]string{"step"},
		),
		pruneTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "prune",
				Name:      "images_total",
				Help:      "Total number of pruned images by region, reason and result",
			},
			[]string{"region", "reason", "result"},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the metrics were last written",
			},
		),
	}
	r.registry.MustRegister(r.actionsTotal, r.actionDuration, r.plannedImages, r.pruneTotal, r.lastRun)
	return r
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Action records one image action.
func (r *Recorder) Action(cloud, action string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.actionsTotal.WithLabelValues(cloud, action, result(err)).Inc()
	r.actionDuration.WithLabelValues(cloud, action).Observe(d.Seconds())
}

// Planned records how many images have actions for step.
func (r *Recorder) Planned(step string, n int) {
	if r == nil {
		return
	}
	r.plannedImages.WithLabelValues(step).Set(float64(n))
}

// Pruned records one image removal.
func (r *Recorder) Pruned(region, reason string, err error) {
	if r == nil {
		return
	}
	r.pruneTotal.WithLabelValues(region, reason, result(err)).Inc()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteFile writes all metrics to path in the textfile format.
func (r *Recorder) WriteFile(path string, now time.Time) error {
	if r == nil || path == "" {
		return nil
	}
	r.lastRun.Set(float64(now.Unix()))
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
