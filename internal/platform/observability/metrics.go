package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuestionsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "support_questions_handled_total",
		Help: "The total number of handled questions by outcome",
	}, []string{"outcome"})

	RetrievalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "support_retrieval_duration_seconds",
		Help:    "Duration of retrieval strategies",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})

	RetrievalCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "support_retrieval_candidates",
		Help:    "Size of the fused candidate pool before reranking",
		Buckets: []float64{0, 1, 2, 5, 10, 15, 20, 30},
	})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "support_llm_request_duration_seconds",
		Help:    "Duration of LLM requests by call site",
		Buckets: prometheus.DefBuckets,
	}, []string{"call"})

	EscalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "support_escalations_total",
		Help: "The total number of escalations by trigger",
	}, []string{"trigger"})

	ClarificationRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "support_clarification_rounds",
		Help:    "Clarification rounds used per resolved question",
		Buckets: []float64{0, 1, 2, 3},
	})

	QueryCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "support_query_cache_total",
		Help: "Query result cache lookups by result",
	}, []string{"result"})

	OpenTickets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "support_open_tickets",
		Help: "Number of tickets awaiting a human answer",
	})

	OldestOpenTicketAgeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "support_oldest_open_ticket_age_seconds",
		Help: "Age in seconds of the oldest open ticket",
	})
)
