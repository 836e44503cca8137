package session

import (
	"time"
)

// Session is one bounded interval of play tied to a game. Entries are
// appended to the registry and never mutated except to set EndTime once.
type Session struct {
	GameID    string     `json:"game_id"`
	Timestamp time.Time  `json:"timestamp"`
	EndTime   *time.Time `json:"end_time"`
}

// Active reports whether the session has not been explicitly closed.
func (s *Session) Active() bool {
	return s.EndTime == nil
}

// SessionDuration is a session projected with its computed duration.
type SessionDuration struct {
	GameID          string     `json:"game_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	DurationSeconds float64    `json:"duration_seconds"`
	DurationMinutes float64    `json:"duration_minutes"`
	DurationHours   float64    `json:"duration_hours"`
}

type UpdateSessionRequest struct {
	GameID string `json:"game_id"`
}

type EndSessionRequest struct {
	GameID string `json:"game_id"`
}
