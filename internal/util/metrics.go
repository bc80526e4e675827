package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversation_turns_total",
		Help: "Total number of handled conversation turns by resulting stage and outcome",
	}, []string{"stage", "outcome"})

	TurnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "conversation_turn_latency_seconds",
		Help:    "Latency of a full conversation turn",
		Buckets: prometheus.DefBuckets,
	})

	StageTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversation_stage_transitions_total",
		Help: "Total number of stage transitions",
	}, []string{"from", "to"})

	SignalsExtractedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversation_signals_extracted_total",
		Help: "Total number of extracted signals by kind",
	}, []string{"signal"})

	DuplicateMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversation_duplicate_messages_total",
		Help: "Total number of inbound messages dropped as redeliveries",
	})

	BusyTurnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversation_busy_turns_total",
		Help: "Total number of messages rejected because a turn was in flight",
	})

	CommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_commits_total",
		Help: "Total number of order commit attempts by result",
	}, []string{"result"})

	CommitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_commit_latency_seconds",
		Help:    "Latency of order commit calls",
		Buckets: prometheus.DefBuckets,
	})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed orders",
	}, []string{"reason"})

	InventoryCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_cache_misses_total",
		Help: "Total number of stock lookups that fell back to the database",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
