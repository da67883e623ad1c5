package model

import "time"

// Stage names the pipeline step an item was dropped at.
type Stage string

const (
	StageUniverse Stage = "universe"
	StageMomentum Stage = "momentum"
	StagePattern  Stage = "pattern"
	StageSizing   Stage = "sizing"
)

// SkipReason explains why a symbol did not make it further.
type SkipReason string

const (
	SkipExchange            SkipReason = "exchange"
	SkipNotTradable         SkipReason = "not_tradable"
	SkipNotMarginable       SkipReason = "not_marginable"
	SkipBlacklisted         SkipReason = "blacklisted"
	SkipBatchFetchFailed    SkipReason = "batch_fetch_failed"
	SkipNoData              SkipReason = "no_data"
	SkipBelowMinPrice       SkipReason = "below_min_price"
	SkipInsufficientHistory SkipReason = "insufficient_history"
	SkipInvalidData         SkipReason = "invalid_data"
	SkipFetchFailed         SkipReason = "fetch_failed"
	SkipEvaluationFailed    SkipReason = "evaluation_failed"
	SkipNoPattern           SkipReason = "no_pattern"
)

// ItemResult records one symbol leaving the pipeline early.
type ItemResult struct {
	Symbol string
	Stage  Stage
	Reason SkipReason
	Detail string
}

// RunStatus is the terminal state of a scan.
type RunStatus string

const (
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// RunSummary aggregates the outcome of one scan.
type RunSummary struct {
	RunID            string
	StartedAt        time.Time
	FinishedAt       time.Time
	Status           RunStatus
	UniverseTotal    int
	UniverseAccepted int
	UniverseRejected int
	Scored           int
	Ranked           int
	Evaluated        int
	Setups           []Setup
	Skips            []ItemResult
	Delivered        int // chunks accepted by the notification sink
	Err              string
}

// SkipCounts groups skips by stage and reason.
func (r *RunSummary) SkipCounts() map[Stage]map[SkipReason]int {
	out := make(map[Stage]map[SkipReason]int)
	for _, s := range r.Skips {
		m, ok := out[s.Stage]
		if !ok {
			m = make(map[SkipReason]int)
			out[s.Stage] = m
		}
		m[s.Reason]++
	}
	return out
}

// Duration returns the wall time of the run.
func (r *RunSummary) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
