// Package metrics exposes the Prometheus instruments shared by the
// retrieval pipeline. All instruments are registered on the default
// registry so that a plain promhttp handler serves them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ContextRequests counts get_context calls, labelled by cache outcome
	// (HIT, MISS, BYPASS).
	ContextRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ragmux",
		Subsystem: "retrieval",
		Name:      "context_requests_total",
		Help:      "Context retrieval requests by cache status.",
	}, []string{"status"})

	// SearchDuration observes vector search latency, labelled by backend
	// (memory, postgres).
	SearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ragmux",
		Subsystem: "retrieval",
		Name:      "search_duration_seconds",
		Help:      "Vector similarity search latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend"})

	// EmbedModelCalls counts calls that actually reached the embedding
	// model, i.e. misses of the in-process vector cache.
	EmbedModelCalls = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ragmux",
		Subsystem: "embedding",
		Name:      "model_calls_total",
		Help:      "Embedding requests served by the model rather than the local cache.",
	})

	// EmbedBatches counts batch embedding calls during ingestion.
	EmbedBatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ragmux",
		Subsystem: "embedding",
		Name:      "batches_total",
		Help:      "Embedding batches sent to the model.",
	})

	// IngestChunks counts chunks persisted to the vector store.
	IngestChunks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ragmux",
		Subsystem: "ingest",
		Name:      "chunks_total",
		Help:      "Chunks written to the vector store.",
	})

	// IngestBatchFailures counts ingestion batches that failed after
	// retries and interrupted a document.
	IngestBatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ragmux",
		Subsystem: "ingest",
		Name:      "batch_failures_total",
		Help:      "Ingestion batches abandoned due to embed or store errors.",
	})

	// PrefetchRuns counts prefetch tasks by result (warmed, suppressed,
	// failed, dropped).
	PrefetchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ragmux",
		Subsystem: "prefetch",
		Name:      "runs_total",
		Help:      "Prefetch tasks by outcome.",
	}, []string{"result"})
)
