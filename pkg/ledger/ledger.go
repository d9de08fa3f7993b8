// Package ledger records generated splits in a SQL database, so operators
// can see when a problem was last generated and with which settings.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Supported driver names.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS datagen_runs (
	run_id        VARCHAR(36)  NOT NULL,
	problem       VARCHAR(255) NOT NULL,
	split         VARCHAR(16)  NOT NULL,
	num_shards    INT          NOT NULL,
	examples      BIGINT       NOT NULL,
	seed          BIGINT       NOT NULL,
	started_at_ms BIGINT       NOT NULL,
	duration_ms   BIGINT       NOT NULL,
	PRIMARY KEY (run_id, problem, split)
)`

// Entry is one generated split.
type Entry struct {
	RunID     string
	Problem   string
	Split     string
	NumShards int
	Examples  int64
	Seed      uint64
	StartedAt time.Time
	Duration  time.Duration
}

type Ledger struct {
	db    *sql.DB
	runID string
}

// Open connects to the database, creates the table if needed and assigns a
// fresh run id to this process.
func Open(ctx context.Context, driver, dsn string) (*Ledger, error) {
	switch driver {
	case DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s ledger: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("pinging %s ledger: %w", driver, err), db.Close())
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, errors.Join(fmt.Errorf("creating ledger table: %w", err), db.Close())
	}
	return &Ledger{db: db, runID: uuid.NewString()}, nil
}

// RunID identifies the entries recorded by this Ledger.
func (l *Ledger) RunID() string {
	return l.runID
}

// Record inserts e under this ledger's run id.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	_, err := l.db.ExecContext(
		ctx,
		`INSERT INTO datagen_runs
			(run_id, problem, split, num_shards, examples, seed, started_at_ms, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.runID,
		e.Problem,
		e.Split,
		e.NumShards,
		e.Examples,
		int64(e.Seed),
		e.StartedAt.UnixMilli(),
		e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("recording %s/%s: %w", e.Problem, e.Split, err)
	}
	return nil
}

// History returns every entry for problem, newest first.
func (l *Ledger) History(ctx context.Context, problem string) ([]Entry, error) {
	rows, err := l.db.QueryContext(
		ctx,
		`SELECT run_id, problem, split, num_shards, examples, seed, started_at_ms, duration_ms
		FROM datagen_runs WHERE problem = ?
		ORDER BY started_at_ms DESC, split ASC`,
		problem,
	)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			seed       int64
			startedAt  int64
			durationMs int64
		)
		if err := rows.Scan(
			&e.RunID,
			&e.Problem,
			&e.Split,
			&e.NumShards,
			&e.Examples,
			&seed,
			&startedAt,
			&durationMs,
		); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		e.Seed = uint64(seed)
		e.StartedAt = time.UnixMilli(startedAt).UTC()
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ledger rows: %w", err)
	}
	return entries, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}
