package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrIdempotencyMismatch indicates an idempotency key was replayed with a
// different request payload.
var ErrIdempotencyMismatch = errors.New("idempotency key reused with different request")

// IdempotencyRecord is the stored outcome of a previously processed request.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	StatusCode  int
	Response    []byte
	CreatedAt   time.Time
}

// AuditEntry captures one authenticated gateway request for the audit trail.
type AuditEntry struct {
	RequestID string
	APIKey    string
	Method    string
	Path      string
	CardID    string
	Status    int
	CreatedAt time.Time
}

// SQLiteStore persists idempotency records and the request audit log.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed initialises) the gateway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open gateway database: %w", err)
	}
	db.SetMaxOpenConns(1)
	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	const schema = `
CREATE TABLE IF NOT EXISTS idempotency_keys (
    key TEXT PRIMARY KEY,
    request_hash TEXT NOT NULL,
    status_code INTEGER NOT NULL,
    response_body BLOB NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS audit_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    api_key TEXT NOT NULL,
    method TEXT NOT NULL,
    path TEXT NOT NULL,
    card_id TEXT NOT NULL DEFAULT '',
    status INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_card ON audit_log(card_id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialise gateway schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LookupIdempotency returns the stored record for key, or nil when unseen.
func (s *SQLiteStore) LookupIdempotency(ctx context.Context, key string) (*IdempotencyRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, request_hash, status_code, response_body, created_at FROM idempotency_keys WHERE key = ?`, key)
	var (
		record  IdempotencyRecord
		created int64
	)
	if err := row.Scan(&record.Key, &record.RequestHash, &record.StatusCode, &record.Response, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	record.CreatedAt = time.Unix(created, 0).UTC()
	return &record, nil
}

// SaveIdempotency records the response served for an idempotency key.
func (s *SQLiteStore) SaveIdempotency(ctx context.Context, record IdempotencyRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (key, request_hash, status_code, response_body, created_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(key) DO NOTHING`,
		record.Key, record.RequestHash, record.StatusCode, record.Response, record.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("save idempotency key: %w", err)
	}
	return nil
}

// InsertAuditLog appends an entry to the request audit trail.
func (s *SQLiteStore) InsertAuditLog(ctx context.Context, entry AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (request_id, api_key, method, path, card_id, status, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.APIKey, entry.Method, entry.Path, entry.CardID, entry.Status, entry.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// AuditTrail returns the most recent audit entries for a card, newest first.
func (s *SQLiteStore) AuditTrail(ctx context.Context, cardID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, api_key, method, path, card_id, status, created_at
         FROM audit_log WHERE card_id = ? ORDER BY id DESC LIMIT ?`, cardID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	defer rows.Close()
	var entries []AuditEntry
	for rows.Next() {
		var (
			entry   AuditEntry
			created int64
		)
		if err := rows.Scan(&entry.RequestID, &entry.APIKey, &entry.Method, &entry.Path, &entry.CardID, &entry.Status, &created); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.CreatedAt = time.Unix(created, 0).UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
