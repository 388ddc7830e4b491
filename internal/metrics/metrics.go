// Package metrics defines the custom Prometheus metrics of the clients API.
// It is the single source of truth for metric names, labels and help strings.
//
// Metrics are registered with the default registry through promauto when the
// package is first imported. HTTP request metrics come from the echoprometheus
// middleware wired in the router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clients"

// ── Auth metrics ──────────────────────────────────────────────────────────────

// AuthAttemptsTotal counts register and login attempts.
// Labels:
//   - op: "register" or "login"
//   - result: "ok", "conflict", "not_found" or "bad_password"
var AuthAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_attempts_total",
		Help:      "Total number of register and login attempts, by outcome.",
	},
	[]string{"op", "result"},
)

// ── Client metrics ────────────────────────────────────────────────────────────

// ClientMutationsTotal counts successful writes to client records.
// Label:
//   - op: "create", "replace", "patch", "avatar" or "delete"
var ClientMutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "client_mutations_total",
		Help:      "Total number of successful client mutations, by operation.",
	},
	[]string{"op"},
)

// IdempotencyLookupsTotal counts Idempotency-Key checks on client creation.
// Label:
//   - result: "hit", "miss" or "error"
var IdempotencyLookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "idempotency_lookups_total",
		Help:      "Total number of Idempotency-Key lookups, labelled by result.",
	},
	[]string{"result"},
)
