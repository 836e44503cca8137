package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"gamediary/internal/storage"
)

// Sessions not explicitly closed (crash, overlay killed) are attributed at
// most this much play time. Historical data depends on the exact value.
const fallbackDuration = 2 * time.Hour

// ErrNoActiveSession is returned by RecordEnd when no open entry matches.
var ErrNoActiveSession = errors.New("session: no active session to end")

// Registry maintains the append-only session log for one user as a remote
// JSON document. Writes are read-modify-write with no versioning, so
// concurrent writers from separate processes race last-writer-wins.
type Registry struct {
	docs storage.DocumentStore
	key  string
	mu   sync.Mutex
	now  func() time.Time
}

func NewRegistry(docs storage.DocumentStore, username string) *Registry {
	return &Registry{
		docs: docs,
		key:  fmt.Sprintf("SESSION_%s.json", username),
		now:  time.Now,
	}
}

func (r *Registry) load(ctx context.Context) ([]Session, error) {
	body, err := r.docs.GetDocument(ctx, r.key)
	if err != nil {
		if errors.Is(err, storage.ErrNoDocument) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session document: %w", err)
	}
	var sessions []Session
	if err := json.Unmarshal(body, &sessions); err != nil {
		return nil, fmt.Errorf("malformed session document %s: %w", r.key, err)
	}
	return sessions, nil
}

func (r *Registry) store(ctx context.Context, sessions []Session) error {
	body, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	if err := r.docs.PutDocument(ctx, r.key, body); err != nil {
		return fmt.Errorf("failed to write session document: %w", err)
	}
	return nil
}

// RecordStart appends a new open session entry. An existing open entry is
// not closed first; older opens simply become supersede-able.
func (r *Registry) RecordStart(ctx context.Context, gameID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, err := r.load(ctx)
	if err != nil {
		return err
	}
	sessions = append(sessions, Session{
		GameID:    gameID,
		Timestamp: r.now(),
	})
	return r.store(ctx, sessions)
}

// RecordEnd closes the most recent open entry, optionally constrained to
// gameID. Returns ErrNoActiveSession when nothing is open.
func (r *Registry) RecordEnd(ctx context.Context, gameID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, err := r.load(ctx)
	if err != nil {
		return err
	}

	idx := -1
	for i := len(sessions) - 1; i >= 0; i-- {
		if !sessions[i].Active() {
			continue
		}
		if gameID != "" && sessions[i].GameID != gameID {
			continue
		}
		idx = i
		break
	}
	if idx == -1 {
		return ErrNoActiveSession
	}

	end := r.now()
	sessions[idx].EndTime = &end
	return r.store(ctx, sessions)
}

// GetActiveSession returns the most recent open entry, or nil.
func (r *Registry) GetActiveSession(ctx context.Context) (*Session, error) {
	sessions, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := len(sessions) - 1; i >= 0; i-- {
		if sessions[i].Active() {
			s := sessions[i]
			return &s, nil
		}
	}
	return nil, nil
}

// GetLatestSession returns the last entry regardless of end state, or nil.
func (r *Registry) GetLatestSession(ctx context.Context) (*Session, error) {
	sessions, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	s := sessions[len(sessions)-1]
	return &s, nil
}

// Durations computes a duration for every entry. Closed entries use their
// recorded end time. Open entries with a successor get min(fallback,
// time-to-next-start); an open last entry gets exactly the fallback.
func (r *Registry) Durations(ctx context.Context) ([]SessionDuration, error) {
	sessions, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]SessionDuration, 0, len(sessions))
	for i, s := range sessions {
		var d time.Duration
		switch {
		case s.EndTime != nil:
			d = s.EndTime.Sub(s.Timestamp)
		case i+1 < len(sessions):
			toNext := sessions[i+1].Timestamp.Sub(s.Timestamp)
			d = fallbackDuration
			if toNext < d {
				d = toNext
			}
		default:
			d = fallbackDuration
		}

		secs := d.Seconds()
		out = append(out, SessionDuration{
			GameID:          s.GameID,
			StartTime:       s.Timestamp,
			EndTime:         s.EndTime,
			DurationSeconds: secs,
			DurationMinutes: round2(secs / 60),
			DurationHours:   round2(secs / 3600),
		})
	}
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
