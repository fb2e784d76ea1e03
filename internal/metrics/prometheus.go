package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus implements Recorder using Prometheus metrics on a private registry.
type Prometheus struct {
	workerStarts      *prometheus.CounterVec
	workerSpawnFails  *prometheus.CounterVec
	workerStops       *prometheus.CounterVec
	workerUp          *prometheus.GaugeVec
	workerRestarts    *prometheus.CounterVec
	restartBackoff    *prometheus.HistogramVec
	syncRuns          *prometheus.CounterVec
	syncDuration      prometheus.Histogram
	syncTags          *prometheus.CounterVec
	downloads         *prometheus.CounterVec
	downloadBytes     *prometheus.CounterVec
	tagsRead          *prometheus.CounterVec
	playbacks         *prometheus.CounterVec
	lastSyncTimestamp prometheus.Gauge

	registry *prometheus.Registry
}

// NewPrometheus creates a Prometheus recorder. Process and Go runtime
// collectors are registered alongside the soundmachine metrics.
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "soundmachine"
	}

	p := &Prometheus{registry: prometheus.NewRegistry()}

	p.workerStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_starts_total",
			Help:      "Total number of worker spawns",
		},
		[]string{"worker", "mode"},
	)

	p.workerSpawnFails = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_spawn_failures_total",
			Help:      "Total number of failed worker spawns",
		},
		[]string{"worker"},
	)

	p.workerStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_stops_total",
			Help:      "Total number of workers terminated by the launcher",
		},
		[]string{"worker"},
	)

	p.workerUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_up",
			Help:      "Whether a supervised worker is alive (1) or not (0)",
		},
		[]string{"worker"},
	)

	p.workerRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_restarts_total",
			Help:      "Total number of supervisor restarts",
		},
		[]string{"worker"},
	)

	p.restartBackoff = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_restart_backoff_seconds",
			Help:      "Backoff applied before a supervisor restart",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"worker"},
	)

	p.syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Total number of sound sync runs",
		},
		[]string{"status"},
	)

	p.syncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of sound sync runs",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	p.syncTags = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_tags_total",
			Help:      "Tags processed by sound sync, by outcome",
		},
		[]string{"outcome"},
	)

	p.downloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Total number of file downloads from the remote store",
		},
		[]string{"file", "status"},
	)

	p.downloadBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes downloaded from the remote store",
		},
		[]string{"file"},
	)

	p.tagsRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tags_read_total",
			Help:      "Total number of RFID tags read",
		},
		[]string{"worker"},
	)

	p.playbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playbacks_total",
			Help:      "Total number of playback attempts",
		},
		[]string{"status"},
	)

	p.lastSyncTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sync_timestamp_seconds",
			Help:      "Unix time of the last successful sound sync",
		},
	)

	p.registry.MustRegister(
		p.workerStarts,
		p.workerSpawnFails,
		p.workerStops,
		p.workerUp,
		p.workerRestarts,
		p.restartBackoff,
		p.syncRuns,
		p.syncDuration,
		p.syncTags,
		p.downloads,
		p.downloadBytes,
		p.tagsRead,
		p.playbacks,
		p.lastSyncTimestamp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return p
}

func (p *Prometheus) WorkerStarted(worker, mode string) {
	p.workerStarts.WithLabelValues(worker, mode).Inc()
}

func (p *Prometheus) WorkerSpawnFailed(worker string) {
	p.workerSpawnFails.WithLabelValues(worker).Inc()
}

func (p *Prometheus) WorkerStopped(worker string) {
	p.workerStops.WithLabelValues(worker).Inc()
}

func (p *Prometheus) WorkerUp(worker string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	p.workerUp.WithLabelValues(worker).Set(v)
}

func (p *Prometheus) WorkerRestart(worker string, backoff time.Duration) {
	p.workerRestarts.WithLabelValues(worker).Inc()
	p.restartBackoff.WithLabelValues(worker).Observe(backoff.Seconds())
}

func (p *Prometheus) SyncCompleted(duration time.Duration, added, updated, deleted, failed int, err error) {
	p.syncRuns.WithLabelValues(status(err)).Inc()
	p.syncDuration.Observe(duration.Seconds())
	p.syncTags.WithLabelValues("added").Add(float64(added))
	p.syncTags.WithLabelValues("updated").Add(float64(updated))
	p.syncTags.WithLabelValues("deleted").Add(float64(deleted))
	p.syncTags.WithLabelValues("failed").Add(float64(failed))
	if err == nil {
		p.lastSyncTimestamp.SetToCurrentTime()
	}
}

func (p *Prometheus) DownloadCompleted(file string, bytes int64, err error) {
	p.downloads.WithLabelValues(file, status(err)).Inc()
	if err == nil {
		p.downloadBytes.WithLabelValues(file).Add(float64(bytes))
	}
}

func (p *Prometheus) TagRead(worker string) {
	p.tagsRead.WithLabelValues(worker).Inc()
}

func (p *Prometheus) PlaybackStarted(err error) {
	p.playbacks.WithLabelValues(status(err)).Inc()
}

// Registry returns the registry the metrics are registered on.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
