package store

// History is read access to recorded sessions, implemented by Store and by
// the PostgreSQL store.
type History interface {
	ListSessions(limit int) ([]*Session, error)
	GetSession(id string) (*Session, error)
	ListEstimates(sessionID string, limit int) ([]*Estimate, error)
	Summarize(sessionID string) (Summary, error)
}

// ListSessions returns sessions, most recent first.
func (s *Store) ListSessions(limit int) ([]*Session, error) {
	return s.Sessions().List(limit)
}

// GetSession returns one session or ErrNotFound.
func (s *Store) GetSession(id string) (*Session, error) {
	return s.Sessions().GetByID(id)
}

// ListEstimates returns a session's estimates, oldest first. Unknown
// sessions yield ErrNotFound.
func (s *Store) ListEstimates(sessionID string, limit int) ([]*Estimate, error) {
	if _, err := s.Sessions().GetByID(sessionID); err != nil {
		return nil, err
	}
	return s.Estimates().ListBySession(sessionID, limit)
}

// Summarize aggregates a session's estimates.
func (s *Store) Summarize(sessionID string) (Summary, error) {
	return s.Estimates().Summarize(sessionID)
}
