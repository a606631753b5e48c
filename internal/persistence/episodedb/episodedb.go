// Package episodedb stores episode bookkeeping and per-tick agent rewards
// in SQLite.
package episodedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound indicates an unknown episode id.
var ErrNotFound = errors.New("episode not found")

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Episode is one simulator run.
type Episode struct {
	ID             string
	Scenario       string
	Seed           int64
	StartedAt      time.Time
	FinishedAt     time.Time
	Ticks          int
	ConsumerReturn float64
	ProducerReturn float64
}

type episodeRow struct {
	ID             string  `db:"id"`
	Scenario       string  `db:"scenario"`
	Seed           int64   `db:"seed"`
	StartedAt      int64   `db:"started_at"`
	FinishedAt     int64   `db:"finished_at"`
	Ticks          int     `db:"ticks"`
	ConsumerReturn float64 `db:"consumer_return"`
	ProducerReturn float64 `db:"producer_return"`
}

func (r episodeRow) episode() Episode {
	e := Episode{
		ID:             r.ID,
		Scenario:       r.Scenario,
		Seed:           r.Seed,
		StartedAt:      time.Unix(0, r.StartedAt).UTC(),
		Ticks:          r.Ticks,
		ConsumerReturn: r.ConsumerReturn,
		ProducerReturn: r.ProducerReturn,
	}
	if r.FinishedAt != 0 {
		e.FinishedAt = time.Unix(0, r.FinishedAt).UTC()
	}
	return e
}

// AgentReturn is one agent's cumulative reward over an episode.
type AgentReturn struct {
	AgentID  int     `db:"agent_id"`
	Consumer float64 `db:"consumer"`
	Producer float64 `db:"producer"`
}

// Open opens or creates a SQLite database at path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS episodes (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		seed INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL DEFAULT 0,
		ticks INTEGER NOT NULL DEFAULT 0,
		consumer_return REAL NOT NULL DEFAULT 0,
		producer_return REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS tick_rewards (
		episode_id TEXT NOT NULL REFERENCES episodes(id),
		tick INTEGER NOT NULL,
		agent_id INTEGER NOT NULL,
		consumer REAL NOT NULL,
		producer REAL NOT NULL,
		PRIMARY KEY (episode_id, tick, agent_id)
	);

	CREATE INDEX IF NOT EXISTS idx_tick_rewards_agent ON tick_rewards(episode_id, agent_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// StartEpisode inserts a new episode row.
func (db *DB) StartEpisode(ctx context.Context, id, scenario string, seed int64, startedAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO episodes (id, scenario, seed, started_at) VALUES (?, ?, ?, ?)",
		id, scenario, seed, startedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("start episode %s: %w", id, err)
	}
	return nil
}

// RecordTick stores every agent's rewards for one tick. Agents present in
// only one role map record zero for the other.
func (db *DB) RecordTick(ctx context.Context, episodeID string, tick int, consumer, producer map[int]float64) error {
	ids := make([]int, 0, len(producer))
	seen := make(map[int]bool, len(producer))
	for _, m := range []map[int]float64{consumer, producer} {
		for id := range m {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Ints(ids)

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx,
		"INSERT OR REPLACE INTO tick_rewards (episode_id, tick, agent_id, consumer, producer) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, episodeID, tick, id, consumer[id], producer[id]); err != nil {
			return fmt.Errorf("record tick %d agent %d: %w", tick, id, err)
		}
	}
	return tx.Commit()
}

// FinishEpisode stamps the end time and tick count and totals the recorded
// rewards.
func (db *DB) FinishEpisode(ctx context.Context, id string, ticks int, finishedAt time.Time) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE episodes SET
			finished_at = ?,
			ticks = ?,
			consumer_return = (SELECT COALESCE(SUM(consumer), 0) FROM tick_rewards WHERE episode_id = ?),
			producer_return = (SELECT COALESCE(SUM(producer), 0) FROM tick_rewards WHERE episode_id = ?)
		WHERE id = ?`,
		finishedAt.UnixNano(), ticks, id, id, id,
	)
	if err != nil {
		return fmt.Errorf("finish episode %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Episode returns one episode.
func (db *DB) Episode(ctx context.Context, id string) (Episode, error) {
	var row episodeRow
	err := db.conn.GetContext(ctx, &row, "SELECT * FROM episodes WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return Episode{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Episode{}, err
	}
	return row.episode(), nil
}

// RecentEpisodes returns up to limit episodes, newest first.
func (db *DB) RecentEpisodes(ctx context.Context, limit int) ([]Episode, error) {
	var rows []episodeRow
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT * FROM episodes ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	out := make([]Episode, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.episode())
	}
	return out, nil
}

// AgentReturns sums each agent's rewards over an episode, ordered by agent id.
func (db *DB) AgentReturns(ctx context.Context, episodeID string) ([]AgentReturn, error) {
	var out []AgentReturn
	err := db.conn.SelectContext(ctx, &out, `
		SELECT agent_id, SUM(consumer) AS consumer, SUM(producer) AS producer
		FROM tick_rewards WHERE episode_id = ?
		GROUP BY agent_id ORDER BY agent_id`, episodeID)
	return out, err
}
