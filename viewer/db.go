package viewer

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DBCache keeps one in-memory DuckDB with a "steps" view over every
// Parquet batch under the roots, and reopens it periodically so new
// batches show up.
type DBCache struct {
	roots       []string
	refreshRate time.Duration
	log         *slog.Logger

	mu          sync.RWMutex
	db          *sql.DB
	lastRefresh time.Time
}

func NewDBCache(roots []string, refreshRate time.Duration, log *slog.Logger) *DBCache {
	return &DBCache{roots: roots, refreshRate: refreshRate, log: log}
}

// Get returns the cached connection, reopening it once it is stale.
func (c *DBCache) Get() (*sql.DB, error) {
	c.mu.RLock()
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		db := c.db
		c.mu.RUnlock()
		return db, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		return c.db, nil
	}
	return c.refreshLocked()
}

// Refresh reopens the connection now.
func (c *DBCache) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.refreshLocked()
	return err
}

func (c *DBCache) refreshLocked() (*sql.DB, error) {
	start := time.Now()
	newDB, err := openDuckDB(c.roots)
	if err != nil {
		return nil, err
	}
	if c.db != nil {
		_ = c.db.Close()
	}
	c.db = newDB
	c.lastRefresh = time.Now()
	c.log.Debug("duckdb refreshed", "roots", c.roots, "took", time.Since(start))
	return c.db, nil
}

func (c *DBCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

const emptyStepsView = `CREATE OR REPLACE VIEW steps AS
	SELECT * FROM (
		SELECT
			NULL::VARCHAR AS episode_id,
			NULL::VARCHAR AS candidate_id,
			NULL::BIGINT AS seed,
			NULL::INTEGER AS step,
			NULL::INTEGER AS size,
			NULL::REAL[] AS features,
			NULL::INTEGER AS action,
			NULL::REAL AS reward,
			NULL::REAL AS fitness,
			NULL::BOOLEAN AS terminal,
			NULL::INTEGER AS score,
			NULL::INTEGER AS direction,
			NULL::INTEGER AS head_x,
			NULL::INTEGER AS head_y,
			NULL::INTEGER AS food_x,
			NULL::INTEGER AS food_y,
			NULL::INTEGER[] AS body_x,
			NULL::INTEGER[] AS body_y,
			NULL::VARCHAR AS source,
			NULL::VARCHAR AS filename
	) WHERE 1=0`

func openDuckDB(roots []string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, err
	}
	_, _ = db.Exec("PRAGMA threads=4")

	globs := make([]string, 0, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		// read_parquet fails on a glob with no matches, so only keep roots
		// that already hold at least one batch.
		if m, _ := filepath.Glob(filepath.Join(root, "batch_*.parquet")); len(m) == 0 {
			continue
		}
		globs = append(globs, "'"+escapeSQLString(filepath.Join(root, "batch_*.parquet"))+"'")
	}

	sqlText := emptyStepsView
	if len(globs) > 0 {
		sqlText = `CREATE OR REPLACE VIEW steps AS
			SELECT * FROM read_parquet([` + strings.Join(globs, ",") + `], filename=true, union_by_name=true)`
	}
	if _, err := db.Exec(sqlText); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func queryEpisodesTotal(ctx context.Context, db *sql.DB) (int64, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT episode_id) FROM steps`).Scan(&total)
	return total, err
}

// queryEpisodes lists episodes, best fitness first.
func queryEpisodes(ctx context.Context, db *sql.DB, limit, offset int) ([]EpisodeSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			episode_id,
			arg_max(candidate_id, step)::VARCHAR,
			arg_max(source, step)::VARCHAR,
			MAX(size)::INTEGER,
			MAX(step)::INTEGER,
			MAX(score)::INTEGER,
			arg_max(fitness, step)::REAL,
			bool_or(terminal AND reward < 0),
			MIN(filename)::VARCHAR
		FROM steps
		GROUP BY episode_id
		ORDER BY 7 DESC, episode_id
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]EpisodeSummary, 0, limit)
	for rows.Next() {
		var e EpisodeSummary
		if err := rows.Scan(&e.EpisodeID, &e.CandidateID, &e.Source, &e.Size, &e.Steps, &e.Score, &e.Fitness, &e.Died, &e.SourceFile); err != nil {
			return nil, err
		}
		e.SourceFile = filepath.Base(e.SourceFile)
		out = append(out, e)
	}
	return out, rows.Err()
}

// queryEpisodeSteps returns an episode's steps in order. An unknown id
// yields no steps and no error.
func queryEpisodeSteps(ctx context.Context, db *sql.DB, episodeID string) ([]Step, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT step::INTEGER, size::INTEGER, action::INTEGER, reward::REAL, fitness::REAL, terminal,
		       score::INTEGER, direction::INTEGER, food_x::INTEGER, food_y::INTEGER, body_x, body_y, features
		FROM steps
		WHERE episode_id = ?
		ORDER BY step ASC`, episodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := make([]Step, 0, 256)
	for rows.Next() {
		var s Step
		var bodyXAny, bodyYAny, featsAny any
		if err := rows.Scan(&s.Step, &s.Size, &s.Action, &s.Reward, &s.Fitness, &s.Terminal,
			&s.Score, &s.Direction, &s.Food.X, &s.Food.Y, &bodyXAny, &bodyYAny, &featsAny); err != nil {
			return nil, err
		}
		s.Body = zipPoints(asInt32Slice(bodyXAny), asInt32Slice(bodyYAny))
		s.Features = asFloat32Slice(featsAny)
		steps = append(steps, s)
	}
	return steps, rows.Err()
}
