// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history keeps a local log of conversion outcomes in SQLite.
// Every finished session is recorded, successful or not, so "what did I
// convert last week and where did it land" has an answer.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/convert-relay/pkg/types"
)

const defaultLimit = 20

// Store manages the conversion history SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path, creating the
// parent directory and the schema if they do not exist.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversions (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			conversion_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			input_file TEXT NOT NULL,
			output_file TEXT,
			status TEXT NOT NULL,
			error TEXT,
			metadata TEXT,
			submitted_at TEXT,
			finished_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_kind ON conversions(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_status ON conversions(status)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record appends one conversion receipt to the log.
func (s *Store) Record(ctx context.Context, r *types.Receipt) error {
	metadataJSON := ""
	if len(r.Metadata) > 0 {
		b, _ := json.Marshal(r.Metadata)
		metadataJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversions
			(conversion_id, kind, input_file, output_file, status, error, metadata, submitted_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ConversionID, r.Kind, r.InputFile, r.OutputFile,
		string(r.Status), r.Error, metadataJSON,
		formatTime(r.SubmittedAt), formatTime(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("recording conversion: %w", err)
	}
	return nil
}

// Recent returns the latest n receipts, newest first. n <= 0 uses the
// default limit of 20.
func (s *Store) Recent(ctx context.Context, n int) ([]types.Receipt, error) {
	if n <= 0 {
		n = defaultLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT conversion_id, kind, input_file, output_file, status, error, metadata, submitted_at, finished_at
		 FROM conversions ORDER BY rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var receipts []types.Receipt
	for rows.Next() {
		var (
			r                       types.Receipt
			status                  string
			metadataJSON            string
			submittedAt, finishedAt string
		)
		if err := rows.Scan(&r.ConversionID, &r.Kind, &r.InputFile, &r.OutputFile,
			&status, &r.Error, &metadataJSON, &submittedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		r.Status = types.JobStatus(status)
		if metadataJSON != "" {
			json.Unmarshal([]byte(metadataJSON), &r.Metadata)
		}
		r.SubmittedAt = parseTime(submittedAt)
		r.FinishedAt = parseTime(finishedAt)
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// Counts returns how many recorded conversions ended in each status.
func (s *Store) Counts(ctx context.Context) (map[types.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, count(*) FROM conversions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting history: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.JobStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		counts[types.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
