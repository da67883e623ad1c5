package recorder

import (
	"time"

	"VCPHunter/internal/model"
)

// RunRecord is the journal row of one finished scan.
type RunRecord struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     model.RunStatus
	Universe   int
	Scored     int
	Evaluated  int
	Setups     int
	Skipped    int
	Delivered  int
	Err        string
}

// Recorder keeps an operational journal of scan runs.
// Setups themselves are never stored.
type Recorder interface {
	RecordRun(s *model.RunSummary) error
	LastRun() (*RunRecord, error)
	// SkipTotals returns a run's skip counts keyed by "stage/reason".
	SkipTotals(runID string) (map[string]int, error)
	Close() error
}
