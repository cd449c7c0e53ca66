// Package ledger records evolution runs and per-candidate results in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Ledger wraps the SQLite connection. All methods are safe for concurrent use.
type Ledger struct {
	conn *sql.DB
	mu   sync.Mutex
}

type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Config     string
}

// CandidateRecord is one candidate's result in one generation.
type CandidateRecord struct {
	RunID       string
	Generation  int
	CandidateID string
	Fitness     float64
	Score       int
	Steps       int
	Reason      string
	Genome      []byte
}

// GenerationStat summarises one generation.
type GenerationStat struct {
	Generation int
	Candidates int
	Best       float64
	Mean       float64
}

// Open creates or opens the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if path == "" {
		return nil, errors.New("ledger path is required")
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports one writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	l := &Ledger{conn: conn}
	if err := l.initSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) initSchema(ctx context.Context) error {
	schema := `
	PRAGMA journal_mode=WAL;
	PRAGMA synchronous=NORMAL;

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,   -- unix nanos
		finished_at INTEGER,
		config TEXT
	);

	CREATE TABLE IF NOT EXISTS candidates (
		run_id TEXT NOT NULL,
		generation INTEGER NOT NULL,
		candidate_id TEXT NOT NULL,
		fitness REAL NOT NULL,
		score INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		reason TEXT,
		genome BLOB,
		PRIMARY KEY (run_id, generation, candidate_id),
		FOREIGN KEY(run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_candidates_fitness ON candidates(run_id, fitness DESC);
	`
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// StartRun inserts a new run and returns its id.
func (l *Ledger) StartRun(ctx context.Context, config string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := uuid.NewString()
	_, err := l.conn.ExecContext(ctx,
		"INSERT INTO runs (id, started_at, config) VALUES (?, ?, ?)",
		id, time.Now().UnixNano(), config,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

func (l *Ledger) FinishRun(ctx context.Context, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.conn.ExecContext(ctx, "UPDATE runs SET finished_at = ? WHERE id = ?", time.Now().UnixNano(), runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// RecordGeneration stores every candidate of a generation in one transaction.
func (l *Ledger) RecordGeneration(ctx context.Context, records []CandidateRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candidates (run_id, generation, candidate_id, fitness, score, steps, reason, genome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, generation, candidate_id) DO UPDATE SET
			fitness = excluded.fitness,
			score = excluded.score,
			steps = excluded.steps,
			reason = excluded.reason,
			genome = excluded.genome
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare candidate statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.RunID, r.Generation, r.CandidateID, r.Fitness, r.Score, r.Steps, r.Reason, r.Genome); err != nil {
			return fmt.Errorf("failed to insert candidate %s: %w", r.CandidateID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Best returns the fittest candidate recorded for a run.
func (l *Ledger) Best(ctx context.Context, runID string) (CandidateRecord, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var r CandidateRecord
	var reason sql.NullString
	err := l.conn.QueryRowContext(ctx, `
		SELECT run_id, generation, candidate_id, fitness, score, steps, reason, genome
		FROM candidates WHERE run_id = ?
		ORDER BY fitness DESC, generation ASC LIMIT 1
	`, runID).Scan(&r.RunID, &r.Generation, &r.CandidateID, &r.Fitness, &r.Score, &r.Steps, &reason, &r.Genome)
	if errors.Is(err, sql.ErrNoRows) {
		return CandidateRecord{}, false, nil
	}
	if err != nil {
		return CandidateRecord{}, false, err
	}
	r.Reason = reason.String
	return r, true, nil
}

// GenerationStats returns best and mean fitness per generation, in order.
func (l *Ledger) GenerationStats(ctx context.Context, runID string) ([]GenerationStat, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.conn.QueryContext(ctx, `
		SELECT generation, COUNT(*), MAX(fitness), AVG(fitness)
		FROM candidates WHERE run_id = ?
		GROUP BY generation ORDER BY generation
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GenerationStat
	for rows.Next() {
		var s GenerationStat
		if err := rows.Scan(&s.Generation, &s.Candidates, &s.Best, &s.Mean); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Runs lists runs, newest first.
func (l *Ledger) Runs(ctx context.Context) ([]Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.conn.QueryContext(ctx, "SELECT id, started_at, finished_at, config FROM runs ORDER BY started_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
			config   sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &finished, &config); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, started)
		if finished.Valid {
			r.FinishedAt = time.Unix(0, finished.Int64)
		}
		r.Config = config.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *Ledger) Close() error {
	return l.conn.Close()
}
