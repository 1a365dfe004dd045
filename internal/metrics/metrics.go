// Package metrics exposes Prometheus counters and histograms for the
// pipeline's decode, merge, cluster, and extract stages.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HitsDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tpx3pipe_hits_decoded_total",
		Help: "Total hits decoded across all chip sections.",
	})

	SectionsScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tpx3pipe_sections_scanned_total",
		Help: "Total sections discovered by the scanner.",
	})

	MergeHeapDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tpx3pipe_merge_heap_depth",
		Help: "Current number of chip pulse readers live in the merger's heap.",
	})

	ActiveBuckets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tpx3pipe_cluster_active_buckets",
		Help: "Current number of active buckets in the age-based clusterer's pool.",
	})

	ClustersFormed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tpx3pipe_clusters_formed_total",
		Help: "Total clusters formed, by algorithm.",
	}, []string{"algorithm"})

	ClusteringOverflows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tpx3pipe_clustering_overflow_total",
		Help: "Total clusters dropped for exceeding max_cluster_size.",
	})

	NeutronsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tpx3pipe_neutrons_emitted_total",
		Help: "Total neutrons emitted by the extractor.",
	})

	BatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tpx3pipe_batch_latency_seconds",
		Help:    "Latency of producing one batch, by stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
)

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
