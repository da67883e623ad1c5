package model

import (
	"fmt"
	"strings"
)

// DataSourceError means the universe could not be established. Run-fatal.
type DataSourceError struct {
	Source string
	Err    error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("data source %s: %v", e.Source, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// BatchFetchError means one history batch failed. Its symbols are skipped.
type BatchFetchError struct {
	Symbols []string
	Err     error
}

func (e *BatchFetchError) Error() string {
	head := e.Symbols
	if len(head) > 3 {
		head = head[:3]
	}
	return fmt.Sprintf("batch fetch of %d symbols (%s...): %v", len(e.Symbols), strings.Join(head, ","), e.Err)
}

func (e *BatchFetchError) Unwrap() error { return e.Err }

// PerSymbolError means one symbol's fetch or evaluation failed.
type PerSymbolError struct {
	Symbol string
	Err    error
}

func (e *PerSymbolError) Error() string {
	return fmt.Sprintf("symbol %s: %v", e.Symbol, e.Err)
}

func (e *PerSymbolError) Unwrap() error { return e.Err }

// NotificationError means the sink rejected or never received a message.
type NotificationError struct {
	Chunk int
	Err   error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification chunk %d: %v", e.Chunk, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
