// Package db mirrors the current earthquake snapshot into DuckDB for
// summary statistics and ad-hoc read-only SQL.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/joeblew999/quakemap/internal/quake"
	"github.com/joeblew999/quakemap/internal/visual"
)

// Config holds database configuration. An empty DataDir keeps the
// database in memory.
type Config struct {
	DataDir string
	DBName  string
}

const schema = `CREATE TABLE IF NOT EXISTS earthquakes (
	id         VARCHAR,
	mag        DOUBLE,
	depth_km   DOUBLE,
	place      VARCHAR,
	latitude   DOUBLE,
	longitude  DOUBLE,
	time_ms    BIGINT,
	radius     DOUBLE,
	fill_color VARCHAR
)`

var lockdown = []string{
	"SET enable_external_access = false",
	"SET lock_configuration = true",
}

// Store is the DuckDB-backed earthquake mirror.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes snapshot replacement
}

// Open opens (or creates) the database and ensures the schema exists.
func Open(cfg Config) (*Store, error) {
	dsn := ""
	if cfg.DataDir != "" {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		name := cfg.DBName
		if name == "" {
			name = "quakemap"
		}
		dsn = filepath.Join(duckdbDir, name+".duckdb")
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	// Query is reachable over HTTP: no file, network or extension access,
	// and no way to switch it back on.
	for _, stmt := range lockdown {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("locking down duckdb: %w", err)
		}
	}
	return &Store{db: conn}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Replace swaps the mirrored snapshot for events in one transaction.
func (s *Store) Replace(ctx context.Context, events []quake.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM earthquakes"); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO earthquakes
		(id, mag, depth_km, place, latitude, longitude, time_ms, radius, fill_color)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		enc := visual.Encode(ev.Magnitude, ev.DepthKm)
		var ms int64
		if !ev.Time.IsZero() {
			ms = ev.Time.UnixMilli()
		}
		if _, err := stmt.ExecContext(ctx, ev.ID, ev.Magnitude, ev.DepthKm, ev.Place,
			ev.Latitude, ev.Longitude, ms, enc.Radius, string(enc.FillColor)); err != nil {
			return fmt.Errorf("inserting %s: %w", ev.ID, err)
		}
	}

	return tx.Commit()
}

// Stats summarizes the mirrored snapshot.
type Stats struct {
	Count        int                   `json:"count" doc:"Number of earthquakes"`
	MaxMagnitude float64               `json:"maxMagnitude" doc:"Largest magnitude"`
	MaxDepthKm   float64               `json:"maxDepthKm" doc:"Deepest event (km)"`
	ByColor      map[visual.Bucket]int `json:"byColor" doc:"Earthquake count per depth color"`
}

// Stats returns counts per depth color plus magnitude and depth maxima.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByColor: make(map[visual.Bucket]int, len(visual.Buckets))}
	for _, b := range visual.Buckets {
		st.ByColor[b] = 0
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT count(*), coalesce(max(mag), 0), coalesce(max(depth_km), 0) FROM earthquakes")
	if err := row.Scan(&st.Count, &st.MaxMagnitude, &st.MaxDepthKm); err != nil {
		return Stats{}, fmt.Errorf("summary: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT fill_color, count(*) FROM earthquakes GROUP BY fill_color")
	if err != nil {
		return Stats{}, fmt.Errorf("by color: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var color string
		var n int
		if err := rows.Scan(&color, &n); err != nil {
			return Stats{}, err
		}
		st.ByColor[visual.Bucket(color)] = n
	}
	return st, rows.Err()
}

// readOnlyPrefixes are the statement kinds Query accepts.
var readOnlyPrefixes = []string{"SELECT", "WITH", "DESCRIBE", "SUMMARIZE", "SHOW", "EXPLAIN"}

// ErrNotReadOnly is returned by Query for statements that could modify data.
var ErrNotReadOnly = errors.New("only read-only statements are allowed")

// Result is a generic query result.
type Result struct {
	Columns []string         `json:"columns" doc:"Column names"`
	Rows    []map[string]any `json:"rows" doc:"Query results"`
	Count   int              `json:"count" doc:"Number of rows returned"`
}

// Query runs a single read-only statement.
func (s *Store) Query(ctx context.Context, query string) (Result, error) {
	q := strings.TrimSpace(query)
	if strings.Contains(strings.TrimSuffix(q, ";"), ";") || !hasReadOnlyPrefix(q) {
		return Result{}, ErrNotReadOnly
	}

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}

	results := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return Result{}, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	return Result{Columns: columns, Rows: results, Count: len(results)}, nil
}

func hasReadOnlyPrefix(q string) bool {
	upper := strings.ToUpper(q)
	for _, p := range readOnlyPrefixes {
		if strings.HasPrefix(upper, p) {
			return true
		}
	}
	return false
}
