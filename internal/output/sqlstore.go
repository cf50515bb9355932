package output

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	label      TEXT NOT NULL DEFAULT '',
	feasible   INTEGER NOT NULL,
	scenarios  INTEGER NOT NULL,
	infeasible_relaxation INTEGER NOT NULL DEFAULT 0,
	body       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS records_created_at ON records(created_at);
`

// Fixed width so that created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned by SQLStore.Load for an unknown record ID.
var ErrNotFound = errors.New("record not found")

// SQLStore keeps records in a SQLite database, one row per record with the
// full JSON body alongside a few query columns.
type SQLStore struct {
	db *sql.DB
}

// OpenSQL opens or creates the database at path. ":memory:" gives a private
// in-memory store.
func OpenSQL(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

// Write stores rec. It satisfies Sink.
func (s *SQLStore) Write(rec *Record) error {
	return s.Save(context.Background(), rec)
}

func (s *SQLStore) Save(ctx context.Context, rec *Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	feasible, total := rec.Feasible()
	infeasible := 0
	if rec.Outcome != nil && rec.Outcome.RelaxationInfeasible {
		infeasible = 1
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, created_at, label, feasible, scenarios, infeasible_relaxation, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Time.UTC().Format(timeLayout), rec.Label, feasible, total, infeasible, string(body))
	if err != nil {
		return fmt.Errorf("insert record %s: %w", rec.ID, err)
	}
	return nil
}

// Summary is the listing form of a stored record.
type Summary struct {
	ID                   string
	Time                 time.Time
	Label                string
	Feasible             int
	Scenarios            int
	RelaxationInfeasible bool
}

// List returns record summaries, oldest first. limit <= 0 means no limit.
func (s *SQLStore) List(ctx context.Context, limit int) ([]Summary, error) {
	q := `SELECT id, created_at, label, feasible, scenarios, infeasible_relaxation
	      FROM records ORDER BY created_at ASC, id ASC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var created string
		var infeasible int
		if err := rows.Scan(&sum.ID, &created, &sum.Label, &sum.Feasible, &sum.Scenarios, &infeasible); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		sum.Time, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("record %s: bad timestamp: %w", sum.ID, err)
		}
		sum.RelaxationInfeasible = infeasible != 0
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Load(ctx context.Context, id string) (*Record, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM records WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", id, err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &rec, nil
}

// Each streams every stored record to fn, oldest first.
func (s *SQLStore) Each(ctx context.Context, fn func(*Record) error) error {
	sums, err := s.List(ctx, 0)
	if err != nil {
		return err
	}
	for _, sum := range sums {
		rec, err := s.Load(ctx, sum.ID)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}
