package store

import (
	"database/sql"
	"time"

	"github.com/ayusman/pulsecam/internal/signal"
)

// Estimate is a stored heart-rate estimate.
type Estimate struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	BPM       float64   `json:"bpm"`
	Channel   string    `json:"channel"`
	RedBPM    float64   `json:"red_bpm"`
	GreenBPM  float64   `json:"green_bpm"`
	BlueBPM   float64   `json:"blue_bpm"`
	Magnitude float64   `json:"magnitude"`
	CreatedAt time.Time `json:"created_at"`
}

// FromSignal converts a pipeline estimate into a row for sessionID.
func FromSignal(sessionID string, est signal.Estimate) *Estimate {
	var magnitude float64
	switch est.Channel {
	case signal.Red:
		magnitude = est.Red.Magnitude
	case signal.Green:
		magnitude = est.Green.Magnitude
	case signal.Blue:
		magnitude = est.Blue.Magnitude
	}

	return &Estimate{
		SessionID: sessionID,
		BPM:       est.BPM,
		Channel:   est.Channel.String(),
		RedBPM:    est.Red.BPM,
		GreenBPM:  est.Green.BPM,
		BlueBPM:   est.Blue.BPM,
		Magnitude: magnitude,
	}
}

// Summary aggregates the estimates of a session.
type Summary struct {
	Count   int     `json:"count"`
	MeanBPM float64 `json:"mean_bpm"`
	MinBPM  float64 `json:"min_bpm"`
	MaxBPM  float64 `json:"max_bpm"`
}

// EstimateRepository provides operations for estimates.
type EstimateRepository struct {
	db *sql.DB
}

// Estimates returns the estimate repository for this store.
func (s *Store) Estimates() *EstimateRepository {
	return &EstimateRepository{db: s.db}
}

// Create inserts an estimate and sets its ID. A zero CreatedAt is replaced
// with the current time.
func (r *EstimateRepository) Create(e *Estimate) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.Exec(
		`INSERT INTO estimates (session_id, bpm, channel, red_bpm, green_bpm, blue_bpm, magnitude, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.BPM, e.Channel, e.RedBPM, e.GreenBPM, e.BlueBPM, e.Magnitude, e.CreatedAt,
	)
	if err != nil {
		return err
	}

	e.ID, err = result.LastInsertId()
	return err
}

// ListBySession returns the estimates of a session, oldest first.
// A non-positive limit returns all; otherwise the most recent limit rows.
func (r *EstimateRepository) ListBySession(sessionID string, limit int) ([]*Estimate, error) {
	query := `SELECT id, session_id, bpm, channel, red_bpm, green_bpm, blue_bpm, magnitude, created_at
		 FROM estimates WHERE session_id = ? ORDER BY id`
	args := []any{sessionID}
	if limit > 0 {
		query = `SELECT * FROM (
			SELECT id, session_id, bpm, channel, red_bpm, green_bpm, blue_bpm, magnitude, created_at
			FROM estimates WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	estimates := []*Estimate{}
	for rows.Next() {
		e := &Estimate{}
		if err := rows.Scan(&e.ID, &e.SessionID, &e.BPM, &e.Channel, &e.RedBPM, &e.GreenBPM, &e.BlueBPM, &e.Magnitude, &e.CreatedAt); err != nil {
			return nil, err
		}
		estimates = append(estimates, e)
	}

	return estimates, rows.Err()
}

// Summarize returns count and BPM statistics for a session.
func (r *EstimateRepository) Summarize(sessionID string) (Summary, error) {
	var s Summary
	var mean, lo, hi sql.NullFloat64

	err := r.db.QueryRow(
		`SELECT COUNT(*), AVG(bpm), MIN(bpm), MAX(bpm) FROM estimates WHERE session_id = ?`,
		sessionID,
	).Scan(&s.Count, &mean, &lo, &hi)
	if err != nil {
		return Summary{}, err
	}

	s.MeanBPM, s.MinBPM, s.MaxBPM = mean.Float64, lo.Float64, hi.Float64
	return s, nil
}
