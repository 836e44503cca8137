package upload

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"gamediary/internal/session"
	"gamediary/internal/storage"
)

// Outcome reports the result of one artifact transfer. A rejected HTTP
// status and a transport failure are distinct reasons; neither aborts
// sibling uploads, and there is no automatic retry at this level.
type Outcome struct {
	Key        string `json:"key"`
	OK         bool   `json:"ok"`
	StatusCode int    `json:"status_code,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// SessionSource resolves the current game context when an artifact carries
// none of its own.
type SessionSource interface {
	GetLatestSession(ctx context.Context) (*session.Session, error)
}

// Pipeline moves finished local artifacts to remote storage through
// time-boxed signed PUT URLs.
type Pipeline struct {
	issuer   storage.URLIssuer
	sessions SessionSource
	client   *http.Client
}

func NewPipeline(issuer storage.URLIssuer, sessions SessionSource) *Pipeline {
	return &Pipeline{
		issuer:   issuer,
		sessions: sessions,
		client:   &http.Client{Timeout: 5 * time.Minute},
	}
}

// Upload transfers one artifact. The object key is
// <owner>/[<game>/]<basename>; the game segment resolves from the
// artifact's own session, then the registry's latest entry, then not at all.
func (p *Pipeline) Upload(ctx context.Context, localPath, owner, sessionRef string) Outcome {
	key := storage.ObjectKey(owner, p.resolveGameID(ctx, sessionRef), filepath.Base(localPath))

	url, err := p.issuer.PresignPut(ctx, key)
	if err != nil {
		return Outcome{Key: key, Reason: fmt.Sprintf("failed to obtain signed URL: %v", err)}
	}

	f, err := os.Open(localPath)
	if err != nil {
		return Outcome{Key: key, Reason: fmt.Sprintf("failed to open artifact: %v", err)}
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return Outcome{Key: key, Reason: fmt.Sprintf("failed to stat artifact: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, f)
	if err != nil {
		return Outcome{Key: key, Reason: fmt.Sprintf("failed to build request: %v", err)}
	}
	req.ContentLength = fi.Size()

	resp, err := p.client.Do(req)
	if err != nil {
		return Outcome{Key: key, Reason: fmt.Sprintf("transport error: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Outcome{
			Key:        key,
			StatusCode: resp.StatusCode,
			Reason:     fmt.Sprintf("upload rejected with status %d", resp.StatusCode),
		}
	}

	return Outcome{Key: key, OK: true, StatusCode: resp.StatusCode}
}

// UploadAll transfers each artifact independently; one failure never blocks
// the rest.
func (p *Pipeline) UploadAll(ctx context.Context, owner, sessionRef string, paths ...string) []Outcome {
	outcomes := make([]Outcome, 0, len(paths))
	for _, path := range paths {
		outcome := p.Upload(ctx, path, owner, sessionRef)
		if !outcome.OK {
			log.Printf("Upload failed for %s: %s", path, outcome.Reason)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// SignedGetURL returns a time-limited download link for an uploaded key.
func (p *Pipeline) SignedGetURL(ctx context.Context, key string) (string, error) {
	return p.issuer.PresignGet(ctx, key)
}

func (p *Pipeline) resolveGameID(ctx context.Context, sessionRef string) string {
	if sessionRef != "" {
		return sessionRef
	}
	if p.sessions == nil {
		return ""
	}
	latest, err := p.sessions.GetLatestSession(ctx)
	if err != nil || latest == nil {
		return ""
	}
	return latest.GameID
}
