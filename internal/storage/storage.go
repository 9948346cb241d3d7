package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/maltedev/amazon-catalog-parser/internal/models"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("result not found")

// Summary describes one archived run without its products.
type Summary struct {
	ID           int64     `json:"id"`
	Query        string    `json:"query"`
	Success      bool      `json:"success"`
	TotalResults int       `json:"total_results"`
	ErrorCount   int       `json:"error_count"`
	CostUSD      *float64  `json:"cost_usd,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Result struct {
	Summary
	Envelope models.Envelope `json:"envelope"`
}

// ResultStore archives result envelopes in a local sqlite file.
type ResultStore struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*ResultStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create results directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS results (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			query         TEXT NOT NULL,
			success       INTEGER NOT NULL,
			total_results INTEGER NOT NULL,
			error_count   INTEGER NOT NULL,
			cost_usd      REAL,
			envelope      TEXT NOT NULL,
			created_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_query ON results (query, created_at)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create results table: %w", err)
		}
	}

	return &ResultStore{db: db, now: time.Now}, nil
}

func (s *ResultStore) Save(ctx context.Context, env models.Envelope) (int64, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO results (query, success, total_results, error_count, cost_usd, envelope, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		env.Metadata.Query, env.Success, env.TotalResults(), len(env.Errors),
		env.Metadata.CostUSD, string(data), s.now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save result: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read result id: %w", err)
	}
	return id, nil
}

// Latest returns the newest archived run for query.
func (s *ResultStore) Latest(ctx context.Context, query string) (*Result, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, query, success, total_results, error_count, cost_usd, created_at, envelope
		 FROM results WHERE query = ? ORDER BY created_at DESC, id DESC LIMIT 1`, query)

	var r Result
	var envelope string
	if err := scanSummary(row, &r.Summary, &envelope); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("query %q: %w", query, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load result: %w", err)
	}
	if err := json.Unmarshal([]byte(envelope), &r.Envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return &r, nil
}

// List returns run summaries, newest first.
func (s *ResultStore) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, success, total_results, error_count, cost_usd, created_at
		 FROM results ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := scanSummary(rows, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return summaries, nil
}

func (s *ResultStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner, sum *Summary, extra ...any) error {
	var createdAt int64
	var cost sql.NullFloat64
	dest := append([]any{&sum.ID, &sum.Query, &sum.Success, &sum.TotalResults, &sum.ErrorCount, &cost, &createdAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	if cost.Valid {
		sum.CostUSD = models.Float(cost.Float64)
	}
	sum.CreatedAt = time.Unix(0, createdAt).UTC()
	return nil
}
