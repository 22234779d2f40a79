// Package metrics holds process wide prometheus collectors.
// Collectors register on the default registry, exposed by the /metrics handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "yieldmart"

// Ledger

var LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "entries_total",
	Help:      "Completed ledger entries by kind.",
}, []string{"kind"})

var LedgerReplays = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "replays_total",
	Help:      "Apply calls answered with an existing entry for the same reference.",
})

var LedgerInsufficientFunds = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "insufficient_funds_total",
	Help:      "Debits rejected because the balance would go negative.",
})

// Payouts

var PayoutBoundaries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "payout",
	Name:      "boundaries_total",
	Help:      "Payout boundaries processed by outcome (credited, failed).",
}, []string{"outcome"})

var PayoutInvestmentsCompleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "payout",
	Name:      "investments_completed_total",
	Help:      "Investments moved to COMPLETED after the last payout.",
})

var PayoutTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "payout",
	Name:      "tick_duration_seconds",
	Help:      "Duration of one scheduler tick.",
	Buckets:   prometheus.DefBuckets,
})

// Commissions

var CommissionCredits = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "commission",
	Name:      "credits_total",
	Help:      "Commission credits by ancestor level.",
}, []string{"level"})

var CommissionCascadeStops = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "commission",
	Name:      "cascade_stops_total",
	Help:      "Finished cascades by stop reason (root, max_depth, cycle).",
}, []string{"reason"})

// Jobs

var JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "jobs",
	Name:      "finished_total",
	Help:      "Handled jobs by kind and outcome (succeeded, retried, failed).",
}, []string{"kind", "outcome"})

var JobsExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "jobs",
	Name:      "attempts_exhausted_total",
	Help:      "Jobs failed after using every attempt.",
}, []string{"kind"})

var JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "jobs",
	Name:      "handler_duration_seconds",
	Help:      "Job handler duration.",
	Buckets:   prometheus.DefBuckets,
}, []string{"kind"})

// Campaigns

var CampaignDeliveriesEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "campaigns",
	Name:      "deliveries_enqueued_total",
	Help:      "Delivery jobs enqueued by channel.",
}, []string{"channel"})

var CampaignRecipientsUnresolvable = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "campaigns",
	Name:      "recipients_unresolvable_total",
	Help:      "Recipients marked FAILED because they have no address on the campaign channel.",
})
