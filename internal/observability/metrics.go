package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	indexQueueSize    prometheus.Gauge
	filesIndexedTotal *prometheus.CounterVec
	fileIndexDuration prometheus.Histogram
	entitiesSeenTotal prometheus.Counter
	vectorsSavedTotal prometheus.Counter
	contextItemsTotal prometheus.Gauge

	embeddingTotal        *prometheus.CounterVec
	embeddingDuration     *prometheus.HistogramVec
	embeddingCacheHits    prometheus.Counter
	embeddingCacheMisses  prometheus.Counter
	embeddingCacheEntries prometheus.Gauge

	assemblyDuration         prometheus.Histogram
	assemblyTruncated        prometheus.Counter
	similaritySearchDuration prometheus.Histogram

	conversationsActive prometheus.Gauge
	messagesPrunedTotal *prometheus.CounterVec
	memorySaveDuration  prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			indexQueueSize: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "index_queue_size",
					Help: "Current number of files pending indexing.",
				},
			),
			filesIndexedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "files_indexed_total",
					Help: "Total files processed by the indexing pipeline by status.",
				},
				[]string{"status"},
			),
			fileIndexDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "file_index_duration_seconds",
					Help:    "Per-file indexing duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			entitiesSeenTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "code_entities_seen_total",
					Help: "Total code entities extracted during indexing.",
				},
			),
			vectorsSavedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "vectors_saved_total",
					Help: "Total vector upserts into the similarity index.",
				},
			),
			contextItemsTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "context_items_total",
					Help: "Total context items in the store.",
				},
			),
			embeddingTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "embedding_total",
					Help: "Total embedding generations by tier.",
				},
				[]string{"tier"},
			),
			embeddingDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "embedding_duration_seconds",
					Help:    "Embedding generation duration in seconds by tier.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tier"},
			),
			embeddingCacheHits: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "embedding_cache_hits_total",
					Help: "Total embedding cache hits.",
				},
			),
			embeddingCacheMisses: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "embedding_cache_misses_total",
					Help: "Total embedding cache misses.",
				},
			),
			embeddingCacheEntries: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "embedding_cache_entries",
					Help: "Current embedding cache entry count.",
				},
			),
			assemblyDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "context_assembly_duration_seconds",
					Help:    "Context assembly duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			assemblyTruncated: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "context_assembly_truncated_total",
					Help: "Total context assemblies that hit the token budget.",
				},
			),
			similaritySearchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "similarity_search_duration_seconds",
					Help:    "Vector similarity search duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			conversationsActive: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "conversations_active",
					Help: "Current conversation count.",
				},
			),
			messagesPrunedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "messages_pruned_total",
					Help: "Total messages pruned from conversations by strategy.",
				},
				[]string{"strategy"},
			),
			memorySaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "conversation_save_duration_seconds",
					Help:    "Conversation persistence duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		prometheus.MustRegister(
			m.indexQueueSize,
			m.filesIndexedTotal,
			m.fileIndexDuration,
			m.entitiesSeenTotal,
			m.vectorsSavedTotal,
			m.contextItemsTotal,
			m.embeddingTotal,
			m.embeddingDuration,
			m.embeddingCacheHits,
			m.embeddingCacheMisses,
			m.embeddingCacheEntries,
			m.assemblyDuration,
			m.assemblyTruncated,
			m.similaritySearchDuration,
			m.conversationsActive,
			m.messagesPrunedTotal,
			m.memorySaveDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetIndexQueueSize(size int) {
	getMetrics().indexQueueSize.Set(float64(size))
}

func RecordFileIndexed(status string, duration time.Duration) {
	m := getMetrics()
	m.filesIndexedTotal.WithLabelValues(status).Inc()
	m.fileIndexDuration.Observe(duration.Seconds())
}

func RecordEntitiesSeen(count int) {
	getMetrics().entitiesSeenTotal.Add(float64(count))
}

func RecordVectorSaved() {
	getMetrics().vectorsSavedTotal.Inc()
}

func SetContextItems(total int) {
	getMetrics().contextItemsTotal.Set(float64(total))
}

func RecordEmbedding(tier string, duration time.Duration) {
	m := getMetrics()
	m.embeddingTotal.WithLabelValues(tier).Inc()
	m.embeddingDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

func RecordEmbeddingCacheHit() {
	getMetrics().embeddingCacheHits.Inc()
}

func RecordEmbeddingCacheMiss() {
	getMetrics().embeddingCacheMisses.Inc()
}

func SetEmbeddingCacheEntries(count int) {
	getMetrics().embeddingCacheEntries.Set(float64(count))
}

func RecordAssembly(duration time.Duration, truncated bool) {
	m := getMetrics()
	m.assemblyDuration.Observe(duration.Seconds())
	if truncated {
		m.assemblyTruncated.Inc()
	}
}

func RecordSimilaritySearch(duration time.Duration) {
	getMetrics().similaritySearchDuration.Observe(duration.Seconds())
}

func SetActiveConversations(count int) {
	getMetrics().conversationsActive.Set(float64(count))
}

func RecordMessagesPruned(strategy string, count int) {
	getMetrics().messagesPrunedTotal.WithLabelValues(strategy).Add(float64(count))
}

func RecordConversationSave(duration time.Duration) {
	getMetrics().memorySaveDuration.Observe(duration.Seconds())
}
