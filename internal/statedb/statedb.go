// Package statedb persists play history in a SQLite database under the
// arcade directory. Each `play` run becomes one row; the stats command
// aggregates them per game and per agent.
package statedb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// DBFileName is the SQLite file under the arcade directory.
const DBFileName = "arcade.db"

// StateDB wraps a SQLite database for play history.
// Thread-safe for concurrent use from multiple goroutines within one process.
// Multiple OS processes can safely read/write via WAL mode + busy timeout.
type StateDB struct {
	db *sql.DB
}

// PlayRow represents one play session.
type PlayRow struct {
	ID           int64
	Agent        string
	Game         string
	StartedAt    time.Time
	DurationSecs int64
	ReadyCount   int // READY edges observed while playing
}

// GameStats aggregates plays for one game.
type GameStats struct {
	Game          string
	PlayCount     int
	TotalPlaySecs int64
	LastPlayed    time.Time
}

// AgentStats aggregates plays for one agent.
type AgentStats struct {
	Agent         string
	PlayCount     int
	TotalPlaySecs int64
	ReadyCount    int
	LastPlayed    time.Time
}

// Open creates or opens a SQLite database at dbPath with WAL mode and busy timeout.
func Open(dbPath string) (*StateDB, error) {
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}

	// WAL mode: allows concurrent readers while writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: wal mode: %w", err)
	}

	// Busy timeout: wait up to 5s if another process holds a lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: busy timeout: %w", err)
	}

	// Foreign keys (for future use)
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: foreign keys: %w", err)
	}

	return &StateDB{db: db}, nil
}

// Close checkpoints WAL and closes the database.
func (s *StateDB) Close() error {
	// Checkpoint WAL to merge it back into the main database file
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB returns the underlying sql.DB for advanced use cases (e.g., testing).
func (s *StateDB) DB() *sql.DB {
	return s.db
}

// Migrate creates tables if they don't exist and runs any pending migrations.
func (s *StateDB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// metadata table
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create metadata: %w", err)
	}

	// plays table
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS plays (
			id            INTEGER PRIMARY KEY,
			agent         TEXT NOT NULL,
			game          TEXT NOT NULL,
			started_at    INTEGER NOT NULL,
			duration_secs INTEGER NOT NULL DEFAULT 0,
			ready_count   INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return fmt.Errorf("statedb: create plays: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_plays_game ON plays(game)
	`); err != nil {
		return fmt.Errorf("statedb: index plays(game): %w", err)
	}
	if _, err := tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_plays_agent ON plays(agent)
	`); err != nil {
		return fmt.Errorf("statedb: index plays(agent): %w", err)
	}

	// Set schema version
	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, fmt.Sprintf("%d", SchemaVersion)); err != nil {
		return fmt.Errorf("statedb: set schema version: %w", err)
	}

	return tx.Commit()
}

// IsEmpty returns true if the plays table has no rows.
func (s *StateDB) IsEmpty() (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM plays").Scan(&count)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// --- Play lifecycle ---

// StartPlay records the beginning of a play session and returns its row id.
func (s *StateDB) StartPlay(agent, game string, startedAt time.Time) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO plays (agent, game, started_at) VALUES (?, ?, ?)
	`, agent, game, startedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("statedb: start play: %w", err)
	}
	return res.LastInsertId()
}

// FinishPlay records duration and ready count for a play started earlier,
// and bumps last_modified so other processes can see plays changed.
func (s *StateDB) FinishPlay(id int64, duration time.Duration, readyCount int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin finish: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	secs := int64(duration / time.Second)
	if secs < 0 {
		secs = 0
	}
	if _, err := tx.Exec(
		"UPDATE plays SET duration_secs = ?, ready_count = ? WHERE id = ?",
		secs, readyCount, id,
	); err != nil {
		return fmt.Errorf("statedb: finish play: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES ('last_modified', ?)",
		fmt.Sprintf("%d", time.Now().UnixNano()),
	); err != nil {
		return fmt.Errorf("statedb: touch: %w", err)
	}

	return tx.Commit()
}

// --- Queries ---

// RecentPlays returns the newest plays, most recent first.
func (s *StateDB) RecentPlays(limit int) ([]*PlayRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT id, agent, game, started_at, duration_secs, ready_count
		FROM plays ORDER BY started_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*PlayRow
	for rows.Next() {
		r := &PlayRow{}
		var startedUnix int64
		if err := rows.Scan(&r.ID, &r.Agent, &r.Game, &startedUnix, &r.DurationSecs, &r.ReadyCount); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(startedUnix, 0)
		result = append(result, r)
	}
	return result, rows.Err()
}

// GameStats aggregates play history per game, most played first.
func (s *StateDB) GameStats() ([]*GameStats, error) {
	rows, err := s.db.Query(`
		SELECT game, COUNT(*), COALESCE(SUM(duration_secs), 0), MAX(started_at)
		FROM plays GROUP BY game ORDER BY COUNT(*) DESC, game
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*GameStats
	for rows.Next() {
		g := &GameStats{}
		var lastUnix int64
		if err := rows.Scan(&g.Game, &g.PlayCount, &g.TotalPlaySecs, &lastUnix); err != nil {
			return nil, err
		}
		g.LastPlayed = time.Unix(lastUnix, 0)
		result = append(result, g)
	}
	return result, rows.Err()
}

// AgentStats aggregates play history per agent, most played first.
func (s *StateDB) AgentStats() ([]*AgentStats, error) {
	rows, err := s.db.Query(`
		SELECT agent, COUNT(*), COALESCE(SUM(duration_secs), 0),
			COALESCE(SUM(ready_count), 0), MAX(started_at)
		FROM plays GROUP BY agent ORDER BY COUNT(*) DESC, agent
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*AgentStats
	for rows.Next() {
		a := &AgentStats{}
		var lastUnix int64
		if err := rows.Scan(&a.Agent, &a.PlayCount, &a.TotalPlaySecs, &a.ReadyCount, &lastUnix); err != nil {
			return nil, err
		}
		a.LastPlayed = time.Unix(lastUnix, 0)
		result = append(result, a)
	}
	return result, rows.Err()
}

// --- Metadata ---

// SetMeta sets a key-value pair in the metadata table.
func (s *StateDB) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta gets a value from the metadata table. Returns "" if not found.
func (s *StateDB) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Touch updates a metadata timestamp that other processes can poll to
// detect changes.
func (s *StateDB) Touch() error {
	return s.SetMeta("last_modified", fmt.Sprintf("%d", time.Now().UnixNano()))
}

// LastModified returns the last_modified timestamp from metadata.
func (s *StateDB) LastModified() (int64, error) {
	val, err := s.GetMeta("last_modified")
	if err != nil || val == "" {
		return 0, err
	}
	var ts int64
	_, err = fmt.Sscanf(val, "%d", &ts)
	return ts, err
}
