package media

import (
	"time"
)

// Record is the catalog-facing projection of one stored artifact. Records
// are recomputed per query: MediaID is only unique within one response and
// URL is a short-lived signed link, so neither is a durable identifier.
type Record struct {
	MediaID     int       `json:"media_id"`
	Type        string    `json:"type"`
	URL         string    `json:"media_url"`
	Timestamp   time.Time `json:"timestamp"`
	OwnerUserID string    `json:"owner_user_id"`
	GameID      string    `json:"game_id,omitempty"`
}

const (
	TypeVideo      = "video"
	TypeAudio      = "audio"
	TypeScreenshot = "screenshot"
	TypeUnknown    = "unknown"
)
