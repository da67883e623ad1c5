package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"VCPHunter/internal/model"
)

// SQLiteRecorder persists the run journal to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *zap.Logger) (*SQLiteRecorder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so dashboards can read while a scan writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scan_runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL UNIQUE,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			duration_ms INTEGER,
			status      TEXT NOT NULL,
			universe    INTEGER,
			accepted    INTEGER,
			scored      INTEGER,
			ranked      INTEGER,
			evaluated   INTEGER,
			setups      INTEGER,
			skipped     INTEGER,
			delivered   INTEGER,
			err_msg     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON scan_runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS scan_skips (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id  TEXT NOT NULL,
			stage   TEXT NOT NULL,
			reason  TEXT NOT NULL,
			count   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_skips_run ON scan_skips(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordRun writes the run row and its per-stage skip counts in one transaction.
func (r *SQLiteRecorder) RecordRun(s *model.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO scan_runs
		(run_id, started_at, finished_at, duration_ms, status,
		 universe, accepted, scored, ranked, evaluated, setups, skipped, delivered, err_msg)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.RunID, s.StartedAt.Unix(), s.FinishedAt.Unix(), s.Duration().Milliseconds(), string(s.Status),
		s.UniverseTotal, s.UniverseAccepted, s.Scored, s.Ranked, s.Evaluated,
		len(s.Setups), len(s.Skips), s.Delivered, s.Err,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for stage, reasons := range s.SkipCounts() {
		for reason, n := range reasons {
			if _, err := tx.Exec(`INSERT INTO scan_skips (run_id, stage, reason, count) VALUES (?,?,?,?)`,
				s.RunID, string(stage), string(reason), n); err != nil {
				return fmt.Errorf("insert skips: %w", err)
			}
		}
	}
	return tx.Commit()
}

// LastRun returns the most recent journal entry, or nil when there is none.
func (r *SQLiteRecorder) LastRun() (*RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		rec               RunRecord
		started, finished int64
		status            string
	)
	err := r.db.QueryRow(`SELECT run_id, started_at, finished_at, status,
		universe, scored, evaluated, setups, skipped, delivered, err_msg
		FROM scan_runs ORDER BY id DESC LIMIT 1`).Scan(
		&rec.RunID, &started, &finished, &status,
		&rec.Universe, &rec.Scored, &rec.Evaluated, &rec.Setups, &rec.Skipped, &rec.Delivered, &rec.Err,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last run: %w", err)
	}
	rec.StartedAt = time.Unix(started, 0)
	rec.FinishedAt = time.Unix(finished, 0)
	rec.Status = model.RunStatus(status)
	return &rec, nil
}

func (r *SQLiteRecorder) SkipTotals(runID string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT stage, reason, count FROM scan_skips WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("query skips: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var stage, reason string
		var n int
		if err := rows.Scan(&stage, &reason, &n); err != nil {
			return nil, err
		}
		out[stage+"/"+reason] = n
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite recorder")
	return r.db.Close()
}
