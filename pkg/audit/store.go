// Package audit records settled face auth attempts in PostgreSQL.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/teslashibe/go-faceauth/pkg/faceauth"
)

// Entry is a stored attempt.
type Entry struct {
	ID        int64
	RequestID string
	Mode      faceauth.Mode
	UserID    *int
	IsNewUser bool
	Error     string
	ArmedAt   time.Time
	Latency   time.Duration
	CreatedAt time.Time
}

// Succeeded reports whether the attempt produced an identity.
func (e Entry) Succeeded() bool {
	return e.Error == ""
}

// Store manages the PostgreSQL connection. A pgx.Conn is not safe for
// concurrent use, so every query holds mu.
type Store struct {
	mu   sync.Mutex
	conn *pgx.Conn
}

// New connects to the database and ensures the schema exists.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS face_auth_attempts (
			id BIGSERIAL PRIMARY KEY,
			request_id TEXT NOT NULL UNIQUE,
			mode TEXT NOT NULL,
			user_id INT,
			is_new_user BOOLEAN NOT NULL DEFAULT FALSE,
			error TEXT NOT NULL DEFAULT '',
			armed_at TIMESTAMPTZ NOT NULL,
			latency_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS face_auth_attempts_created_at_idx ON face_auth_attempts (created_at DESC);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.Close(ctx)
}

// RecordAttempt saves a settled attempt. Failed attempts have no user.
func (s *Store) RecordAttempt(ctx context.Context, a faceauth.Attempt) error {
	var userID *int
	if a.Error == "" {
		userID = &a.UserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(ctx, `
		INSERT INTO face_auth_attempts (request_id, mode, user_id, is_new_user, error, armed_at, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (request_id) DO NOTHING
	`, a.RequestID, string(a.Mode), userID, a.IsNewUser, a.Error, a.ArmedAt, a.Latency.Milliseconds())
	return err
}

// Recent returns up to limit attempts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.conn.Query(ctx, `
		SELECT id, request_id, mode, user_id, is_new_user, error, armed_at, latency_ms, created_at
		FROM face_auth_attempts
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			mode      string
			latencyMS int64
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &mode, &e.UserID, &e.IsNewUser, &e.Error, &e.ArmedAt, &latencyMS, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Mode = faceauth.Mode(mode)
		e.Latency = time.Duration(latencyMS) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats counts attempts by outcome.
func (s *Store) Stats(ctx context.Context) (total, failed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.conn.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE error <> '')
		FROM face_auth_attempts
	`).Scan(&total, &failed)
	return total, failed, err
}
