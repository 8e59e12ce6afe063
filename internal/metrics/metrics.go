package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Splitter

	SentencesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitter_sentences_emitted_total",
		Help: "Sentence-sized units emitted by the streaming splitter",
	})

	// Cache

	CacheEntriesByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cache_entries_by_status",
		Help: "Current cache entry count per status",
	}, []string{"status"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Direct cache lookups that found an entry",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Direct cache lookups that found nothing",
	})

	CacheConcatHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_concat_hits_total",
		Help: "Reads served by segment concatenation",
	})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_evictions_total",
		Help: "Entries removed by size-driven or TTL-driven eviction",
	})

	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_generation_duration_seconds",
		Help:    "Time a generation task spends in the synthesizer call",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	})

	// TTS upstream client

	TTSRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_requests_total",
		Help: "TTS upstream attempts by outcome",
	}, []string{"outcome"})

	TTSLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_request_duration_seconds",
		Help:    "TTS upstream attempt latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	})

	// Token rotator

	RotatorHealthyCredentials = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rotator_healthy_credentials",
		Help: "Number of credentials currently usable without forced recovery",
	})

	RotatorForcedRecoveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rotator_forced_recoveries_total",
		Help: "Times every credential was simultaneously unavailable",
	})
)
