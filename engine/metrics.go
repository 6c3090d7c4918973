package engine

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
)

// Metrics collects the counters and gauges a Context reports as it runs.
// Every field is a go-kit metrics.Counter/Gauge so callers can wire a real
// backend (Prometheus, statsd, ...) without this package knowing about any
// of them; NopMetrics below is the zero-cost default.
type Metrics struct {
	Height RoundGauge
	Round  RoundGauge

	VotesReceived      metrics.Counter
	DuplicateVotes      metrics.Counter
	EquivocationsCaught metrics.Counter

	TimeoutsScheduled metrics.Counter
	TimeoutsFired     metrics.Counter
	TimeoutsDropped   metrics.Counter

	RoundsAdvanced   metrics.Counter
	BlocksCommitted  metrics.Counter
	ProposalsMade    metrics.Counter
	LockChanges      metrics.Counter
}

// RoundGauge is a narrow alias kept to give the two int64-valued gauges
// (height, round) a distinct name in call sites, matching metrics.Gauge's
// float64 surface underneath.
type RoundGauge = metrics.Gauge

// NopMetrics returns a Metrics whose every field discards its input; the
// default for a Context that was not given an explicit Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Height:              discard.NewGauge(),
		Round:               discard.NewGauge(),
		VotesReceived:       discard.NewCounter(),
		DuplicateVotes:      discard.NewCounter(),
		EquivocationsCaught: discard.NewCounter(),
		TimeoutsScheduled:   discard.NewCounter(),
		TimeoutsFired:       discard.NewCounter(),
		TimeoutsDropped:     discard.NewCounter(),
		RoundsAdvanced:      discard.NewCounter(),
		BlocksCommitted:     discard.NewCounter(),
		ProposalsMade:       discard.NewCounter(),
		LockChanges:         discard.NewCounter(),
	}
}
