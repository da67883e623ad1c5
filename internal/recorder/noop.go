package recorder

import "VCPHunter/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(_ *model.RunSummary) error         { return nil }
func (n *NoopRecorder) LastRun() (*RunRecord, error)                { return nil, nil }
func (n *NoopRecorder) SkipTotals(_ string) (map[string]int, error) { return nil, nil }
func (n *NoopRecorder) Close() error                                { return nil }
