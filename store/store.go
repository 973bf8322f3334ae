// Package store keeps the history of simulation runs in a SQLite database,
// so that runs can be listed, recovered and compared after the fact.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/iti/qsim"
	"github.com/iti/qsim/logging"
)

// Run is a stored simulation run
type Run struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Scheduler   qsim.SchedulerKind     `json:"scheduler"`
	Passed      bool                   `json:"passed"`
	MaxBuffered int                    `json:"max_buffered"`
	EndTime     float64                `json:"end_time"`
	Procedure   string                 `json:"procedure"`
	Config      *qsim.SimulationConfig `json:"config,omitempty"`
	Flows       []qsim.FlowResult      `json:"flows,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

type Store struct {
	db      *sql.DB
	maxRuns int
	logger  *logging.Logger
}

// New opens (creating if needed) the database at dbPath.  When maxRuns is
// positive only the newest maxRuns runs are kept
func New(dbPath string, maxRuns int) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// modernc.org/sqlite requires explicit PRAGMAs (not query-string params)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db, maxRuns: maxRuns, logger: logging.NewLogger("store")}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		scheduler TEXT NOT NULL,
		link_mbps REAL NOT NULL,
		buffer_pkts INTEGER NOT NULL,
		duration_ms REAL NOT NULL,
		passed INTEGER NOT NULL,
		max_buffered INTEGER NOT NULL,
		end_time REAL NOT NULL,
		procedure TEXT NOT NULL,
		config_json TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS flow_results (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		flow_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		color TEXT NOT NULL,
		avg_delay_ms REAL NOT NULL,
		jitter_ms REAL NOT NULL,
		throughput_mbps REAL NOT NULL,
		loss_pct REAL NOT NULL,
		p95_delay_ms REAL NOT NULL,
		max_delay_ms REAL NOT NULL,
		thr_delay_ms REAL NOT NULL,
		thr_jitter_ms REAL NOT NULL,
		thr_loss_pct REAL NOT NULL,
		passed INTEGER NOT NULL,
		delivered_bits INTEGER NOT NULL,
		delivered INTEGER NOT NULL,
		dropped INTEGER NOT NULL,
		generated_count INTEGER NOT NULL,
		expected_arrivals INTEGER NOT NULL,
		PRIMARY KEY (run_id, flow_id)
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`)
	return err
}

// Save stores the run and its per-flow results under a fresh id, which it returns
func (s *Store) Save(rr *qsim.RunResult) (string, error) {
	cfgJSON, err := json.Marshal(rr.Config)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	id := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	cfg := rr.Config
	_, err = tx.Exec(
		`INSERT INTO runs (id, name, scheduler, link_mbps, buffer_pkts, duration_ms, passed,
			max_buffered, end_time, procedure, config_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, cfg.Name, cfg.Scheduler.String(), cfg.LinkRateMbps, cfg.BufferCapacity, cfg.DurationMs,
		rr.Passed(), rr.MaxBuffered, rr.EndTime, rr.Procedure, string(cfgJSON), now,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, fr := range rr.Flows {
		_, err = tx.Exec(
			`INSERT INTO flow_results (run_id, flow_id, name, type, color, avg_delay_ms, jitter_ms,
				throughput_mbps, loss_pct, p95_delay_ms, max_delay_ms, thr_delay_ms, thr_jitter_ms,
				thr_loss_pct, passed, delivered_bits, delivered, dropped, generated_count, expected_arrivals)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, fr.ID, fr.Name, fr.Type, fr.ColorHint, fr.AvgDelayMs, fr.JitterMs,
			fr.ThroughputMbps, fr.LossPct, fr.P95DelayMs, fr.MaxDelayMs, fr.Thresholds.DelayMs,
			fr.Thresholds.JitterMs, fr.Thresholds.LossPct, fr.Passed, fr.Totals.DeliveredBits,
			fr.Totals.Delivered, fr.Totals.Dropped, fr.Totals.Generated, fr.Totals.ExpectedArrivals,
		)
		if err != nil {
			return "", fmt.Errorf("insert flow result %d: %w", fr.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("run stored", logging.F("id", id), logging.F("flows", len(rr.Flows)))

	s.trim()
	return id, nil
}

// Get recovers a run with its configuration and flow results.
// A run that is not present yields nil and no error
func (s *Store) Get(id string) (*Run, error) {
	var r Run
	var scheduler, cfgJSON string
	err := s.db.QueryRow(
		`SELECT id, name, scheduler, passed, max_buffered, end_time, procedure, config_json, created_at
		FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Name, &scheduler, &r.Passed, &r.MaxBuffered, &r.EndTime, &r.Procedure,
		&cfgJSON, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	if r.Scheduler, err = qsim.ParseSchedulerKind(scheduler); err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	r.Config = new(qsim.SimulationConfig)
	if err := json.Unmarshal([]byte(cfgJSON), r.Config); err != nil {
		return nil, fmt.Errorf("decode config of run %s: %w", id, err)
	}

	rows, err := s.db.Query(
		`SELECT flow_id, name, type, color, avg_delay_ms, jitter_ms, throughput_mbps, loss_pct,
			p95_delay_ms, max_delay_ms, thr_delay_ms, thr_jitter_ms, thr_loss_pct, passed,
			delivered_bits, delivered, dropped, generated_count, expected_arrivals
		FROM flow_results WHERE run_id = ? ORDER BY flow_id`, id)
	if err != nil {
		return nil, fmt.Errorf("query flow results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fr qsim.FlowResult
		if err := rows.Scan(&fr.ID, &fr.Name, &fr.Type, &fr.ColorHint, &fr.AvgDelayMs, &fr.JitterMs,
			&fr.ThroughputMbps, &fr.LossPct, &fr.P95DelayMs, &fr.MaxDelayMs, &fr.Thresholds.DelayMs,
			&fr.Thresholds.JitterMs, &fr.Thresholds.LossPct, &fr.Passed, &fr.Totals.DeliveredBits,
			&fr.Totals.Delivered, &fr.Totals.Dropped, &fr.Totals.Generated,
			&fr.Totals.ExpectedArrivals); err != nil {
			return nil, fmt.Errorf("scan flow result: %w", err)
		}
		r.Flows = append(r.Flows, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read flow results: %w", err)
	}
	return &r, nil
}

// List returns summaries of the newest runs, newest first.  Configurations
// and flow results are left out
func (s *Store) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, name, scheduler, passed, max_buffered, end_time, procedure, created_at
		FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var scheduler string
		if err := rows.Scan(&r.ID, &r.Name, &scheduler, &r.Passed, &r.MaxBuffered, &r.EndTime,
			&r.Procedure, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.Scheduler, err = qsim.ParseSchedulerKind(scheduler); err != nil {
			return nil, fmt.Errorf("run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Delete removes a run and its flow results, reporting whether it was present
func (s *Store) Delete(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete run: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// trim keeps only the newest maxRuns runs
func (s *Store) trim() {
	if s.maxRuns <= 0 {
		return
	}
	res, err := s.db.Exec(
		`DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?
		)`, s.maxRuns)
	if err != nil {
		s.logger.Warn("trim failed", logging.Err(err))
	} else if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Info("trimmed to max",
			logging.F("removed", n),
			logging.F("max", s.maxRuns))
	}
}
