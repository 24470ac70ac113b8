package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus metrics. One struct for the whole
// process; subsystems receive it by pointer and may leave it nil in tests.
type Metrics struct {
	VotesCast         prometheus.Counter
	VoteCorrections   prometheus.Counter
	VotesRejected     *prometheus.CounterVec
	NoticesDispatched prometheus.Counter
	SnapshotsFrozen   prometheus.Counter
	TalliesFinalized  prometheus.Counter
	SweepsRun         prometheus.Counter
	ReplayRejections  prometheus.Counter
	SweepDuration     prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		VotesCast: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorum_votes_cast_total",
			Help: "Total number of ballots accepted into the vote ledger",
		}),
		VoteCorrections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorum_vote_corrections_total",
			Help: "Total number of ballots superseding an earlier ballot",
		}),
		VotesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_votes_rejected_total",
			Help: "Total number of rejected ballots by reason code",
		}, []string{"reason"}),
		NoticesDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorum_notices_dispatched_total",
			Help: "Total number of statutory notices dispatched",
		}),
		SnapshotsFrozen: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorum_weight_snapshots_frozen_total",
			Help: "Total number of meetings whose voting weights were frozen",
		}),
		TalliesFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorum_tallies_finalized_total",
			Help: "Total number of finalized meeting tallies",
		}),
		SweepsRun: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorum_scheduler_sweeps_total",
			Help: "Total number of scheduler sweeps executed",
		}),
		ReplayRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorum_replayed_proofs_rejected_total",
			Help: "Total number of signature proofs rejected as replays",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "quorum_scheduler_sweep_duration_seconds",
			Help:    "Latency of scheduler sweeps",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

// IncVotesCast increments the accepted ballot counter; nil-safe for tests.
func (m *Metrics) IncVotesCast() {
	if m != nil {
		m.VotesCast.Inc()
	}
}

func (m *Metrics) IncVoteCorrections() {
	if m != nil {
		m.VoteCorrections.Inc()
	}
}

func (m *Metrics) IncVotesRejected(reason string) {
	if m != nil {
		m.VotesRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncNoticesDispatched() {
	if m != nil {
		m.NoticesDispatched.Inc()
	}
}

func (m *Metrics) IncSnapshotsFrozen() {
	if m != nil {
		m.SnapshotsFrozen.Inc()
	}
}

func (m *Metrics) IncTalliesFinalized() {
	if m != nil {
		m.TalliesFinalized.Inc()
	}
}

func (m *Metrics) IncSweepsRun() {
	if m != nil {
		m.SweepsRun.Inc()
	}
}

func (m *Metrics) IncReplayRejections() {
	if m != nil {
		m.ReplayRejections.Inc()
	}
}

func (m *Metrics) ObserveSweepDuration(seconds float64) {
	if m != nil {
		m.SweepDuration.Observe(seconds)
	}
}
