// Package metrics declares the Prometheus collectors of the lending service.
// Collectors are updated from commit hooks, so reverted calls never count as
// originated loans or submitted proofs.
package metrics

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "unempower"

// ─── Vault ──────────────────────────────────────────────────────────────────

var LoansOriginated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "vault",
	Name:      "loans_originated_total",
	Help:      "Total loans disbursed.",
})

var LoansRepaid = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "vault",
	Name:      "loans_repaid_total",
	Help:      "Total loans repaid in full.",
})

var LoansDefaulted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "vault",
	Name:      "loans_defaulted_total",
	Help:      "Total loans marked as defaulted.",
})

var PrincipalDisbursed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "vault",
	Name:      "principal_disbursed_units_total",
	Help:      "Principal paid out to borrowers, in token base units.",
})

var Repayments = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "vault",
	Name:      "repaid_units_total",
	Help:      "Repayments pulled from borrowers, in token base units.",
})

var Liquidity = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "vault",
	Name:      "liquidity_units",
	Help:      "Vault token balance after the last state change, in token base units.",
})

var TotalBorrowed = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "vault",
	Name:      "borrowed_units",
	Help:      "Outstanding principal across active loans, in token base units.",
})

// ─── Ledgers ────────────────────────────────────────────────────────────────

var ProofsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "workproof",
	Name:      "proofs_submitted_total",
	Help:      "Total work proofs recorded.",
})

var AttestationsConsumed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "attestation",
	Name:      "consumed_total",
	Help:      "Total attestation nonces consumed.",
})

var Reverts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "chain",
	Name:      "reverts_total",
	Help:      "Rejected calls by revert reason.",
}, []string{"reason"})

// ─── Indexer ────────────────────────────────────────────────────────────────

var IndexerLag = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "indexer",
	Name:      "last_sequence",
	Help:      "Sequence number of the last mirrored event.",
})

var IndexerErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "indexer",
	Name:      "errors_total",
	Help:      "Indexer poll iterations that failed.",
})

// Units converts a token amount for a float-valued collector. Precision
// loss above 2^53 is acceptable for dashboards.
func Units(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
