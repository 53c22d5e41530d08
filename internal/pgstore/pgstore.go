// Package pgstore records sessions and estimates in PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ayusman/pulsecam/internal/signal"
	"github.com/ayusman/pulsecam/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DefaultTimeout bounds each statement.
const DefaultTimeout = 5 * time.Second

// Store manages a PostgreSQL connection. pgx.Conn is not safe for
// concurrent use, so every statement holds mu.
type Store struct {
	conn    *pgx.Conn
	mu      sync.Mutex
	timeout time.Duration
}

// New establishes a connection to the database and creates the schema.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	s := &Store{conn: conn, timeout: DefaultTimeout}
	if err := s.initSchema(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close terminates the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.conn.Close(ctx)
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			window_size INTEGER NOT NULL,
			buffer_size INTEGER NOT NULL,
			sample_rate_hz DOUBLE PRECISION NOT NULL
		);
		CREATE TABLE IF NOT EXISTS estimates (
			id BIGSERIAL PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			bpm DOUBLE PRECISION NOT NULL,
			channel TEXT NOT NULL,
			red_bpm DOUBLE PRECISION NOT NULL,
			green_bpm DOUBLE PRECISION NOT NULL,
			blue_bpm DOUBLE PRECISION NOT NULL,
			magnitude DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_estimates_session_id ON estimates(session_id);
	`)
	return err
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// BeginSession creates a session and returns its ID.
func (s *Store) BeginSession(windowSize, bufferSize int, sampleRateHz float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.ctx()
	defer cancel()

	id := uuid.New()
	_, err := s.conn.Exec(ctx, `
		INSERT INTO sessions (id, started_at, window_size, buffer_size, sample_rate_hz)
		VALUES ($1, NOW(), $2, $3, $4)
	`, id, windowSize, bufferSize, sampleRateHz)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// RecordEstimate stores est under sessionID.
func (s *Store) RecordEstimate(sessionID string, est signal.Estimate) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("session id: %w", err)
	}
	row := store.FromSignal(sessionID, est)

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.ctx()
	defer cancel()

	_, err = s.conn.Exec(ctx, `
		INSERT INTO estimates (session_id, bpm, channel, red_bpm, green_bpm, blue_bpm, magnitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, row.BPM, row.Channel, row.RedBPM, row.GreenBPM, row.BlueBPM, row.Magnitude)
	return err
}

// EndSession marks sessionID as finished now.
func (s *Store) EndSession(sessionID string) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("session id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.ctx()
	defer cancel()

	tag, err := s.conn.Exec(ctx, `UPDATE sessions SET ended_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListSessions returns sessions, most recent first. A non-positive limit returns all.
func (s *Store) ListSessions(limit int) ([]*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.ctx()
	defer cancel()

	query := `SELECT id, started_at, ended_at, window_size, buffer_size, sample_rate_hz
		FROM sessions ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []*store.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// GetSession returns one session or store.ErrNotFound.
func (s *Store) GetSession(id string) (*store.Session, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, store.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.ctx()
	defer cancel()

	return s.getSession(ctx, uid)
}

func (s *Store) getSession(ctx context.Context, id uuid.UUID) (*store.Session, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT id, started_at, ended_at, window_size, buffer_size, sample_rate_hz
		FROM sessions WHERE id = $1
	`, id)

	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return sess, err
}

// ListEstimates returns a session's estimates, oldest first; with a positive
// limit only the most recent limit rows.
func (s *Store) ListEstimates(sessionID string, limit int) ([]*store.Estimate, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, store.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.ctx()
	defer cancel()

	if _, err := s.getSession(ctx, id); err != nil {
		return nil, err
	}

	query := `SELECT id, session_id, bpm, channel, red_bpm, green_bpm, blue_bpm, magnitude, created_at
		FROM estimates WHERE session_id = $1 ORDER BY id`
	args := []any{id}
	if limit > 0 {
		query = `SELECT * FROM (
			SELECT id, session_id, bpm, channel, red_bpm, green_bpm, blue_bpm, magnitude, created_at
			FROM estimates WHERE session_id = $1 ORDER BY id DESC LIMIT $2
		) recent ORDER BY id`
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	estimates := []*store.Estimate{}
	for rows.Next() {
		var e store.Estimate
		var sid uuid.UUID
		if err := rows.Scan(&e.ID, &sid, &e.BPM, &e.Channel, &e.RedBPM, &e.GreenBPM, &e.BlueBPM, &e.Magnitude, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.SessionID = sid.String()
		estimates = append(estimates, &e)
	}
	return estimates, rows.Err()
}

// Summarize aggregates a session's estimates.
func (s *Store) Summarize(sessionID string) (store.Summary, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return store.Summary{}, store.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.ctx()
	defer cancel()

	var sum store.Summary
	var mean, lo, hi *float64
	err = s.conn.QueryRow(ctx, `
		SELECT COUNT(*), AVG(bpm), MIN(bpm), MAX(bpm) FROM estimates WHERE session_id = $1
	`, id).Scan(&sum.Count, &mean, &lo, &hi)
	if err != nil {
		return store.Summary{}, err
	}
	if mean != nil {
		sum.MeanBPM, sum.MinBPM, sum.MaxBPM = *mean, *lo, *hi
	}
	return sum, nil
}

func scanSession(row pgx.Row) (*store.Session, error) {
	var sess store.Session
	var id uuid.UUID
	if err := row.Scan(&id, &sess.StartedAt, &sess.EndedAt, &sess.WindowSize, &sess.BufferSize, &sess.SampleRateHz); err != nil {
		return nil, err
	}
	sess.ID = id.String()
	return &sess, nil
}
