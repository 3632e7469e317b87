package metrics

import "github.com/prometheus/client_golang/prometheus"

// IngestMetrics tracks CT.gov ingestion and embedding backfill progress.
type IngestMetrics struct {
	StudiesTotal     *prometheus.CounterVec
	PagesTotal       *prometheus.CounterVec
	EmbeddedTotal    *prometheus.CounterVec
	BatchDuration    *prometheus.HistogramVec
	PendingEmbedding prometheus.Gauge
}

// NewIngestMetrics creates ingestion metrics and registers them with reg.
// A nil reg leaves them unregistered, which is what tests want.
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	m := &IngestMetrics{
		StudiesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trialfinder",
			Subsystem: "ingest",
			Name:      "studies_total",
			Help:      "Studies processed by ingestion, by outcome",
		}, []string{"result"}), // "created" / "updated" / "failed"

		PagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trialfinder",
			Subsystem: "ingest",
			Name:      "pages_total",
			Help:      "Source pages fetched",
		}, []string{"condition"}),

		EmbeddedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trialfinder",
			Subsystem: "ingest",
			Name:      "embedded_total",
			Help:      "Studies embedded, by outcome",
		}, []string{"result"}), // "success" / "failed"

		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trialfinder",
			Subsystem: "ingest",
			Name:      "batch_duration_seconds",
			Help:      "Embedding batch duration including the store write",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}), // "ingest" / "backfill"

		PendingEmbedding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trialfinder",
			Subsystem: "ingest",
			Name:      "pending_embedding",
			Help:      "Studies still lacking an embedding at the last backfill check",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.StudiesTotal, m.PagesTotal,
			m.EmbeddedTotal, m.BatchDuration,
			m.PendingEmbedding,
		)
	}
	return m
}
