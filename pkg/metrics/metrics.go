// Package metrics exposes the Prometheus collectors for the collaboration
// engine, scraped at GET /metrics (spec.md §6.2 ambient addition — see
// SPEC_FULL.md §A). Grounded on zfogg-sidechain's metrics.Initialize() +
// promhttp.Handler() mount pattern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribeserver_operations_applied_total",
		Help: "Operations successfully applied to a document, by kind.",
	}, []string{"kind"})

	OperationsNoOp = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribeserver_operations_noop_total",
		Help: "Operations that transformed down to a no-op and were not applied.",
	})

	OperationsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribeserver_operations_rejected_total",
		Help: "Operations rejected by the document authority, by failure class.",
	}, []string{"reason"})

	BroadcastsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribeserver_broadcasts_sent_total",
		Help: "Server-to-client messages fanned out to peers.",
	})

	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribeserver_persist_failures_total",
		Help: "Durable-store write-backs that failed and were left for retry.",
	})

	ActiveDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scribeserver_active_documents",
		Help: "Document authorities currently resident in memory.",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scribeserver_active_sessions",
		Help: "Live WebSocket sessions.",
	})
)
