package capture

import (
	"errors"
	"time"
)

// State is the lifecycle of one capture stream. Video and audio streams are
// independent state machines that may run concurrently.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateFinalizing:
		return "finalizing"
	}
	return "unknown"
}

var (
	// ErrAlreadyCapturing rejects a start on a stream that is not idle.
	ErrAlreadyCapturing = errors.New("capture: already recording")
	// ErrNotCapturing rejects a stop on a stream that was never started.
	ErrNotCapturing = errors.New("capture: no active recording")
)

// Artifact filenames embed a one-second-resolution timestamp. Two captures
// of the same kind started within the same second collide; the original
// tool has the same gap and it is left unhandled here too.
const timestampLayout = "20060102_150405"

func timestamp(t time.Time) string {
	return t.Format(timestampLayout)
}
