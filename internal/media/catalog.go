package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"gamediary/internal/storage"
)

const registryKey = "media.json"

// Catalog produces normalized media listings, either from the static
// registry document or by walking the storage prefix and inferring record
// shape from the object keys themselves.
type Catalog struct {
	docs   storage.DocumentStore
	lister storage.Lister
	issuer storage.URLIssuer
}

func NewCatalog(docs storage.DocumentStore, lister storage.Lister, issuer storage.URLIssuer) *Catalog {
	return &Catalog{docs: docs, lister: lister, issuer: issuer}
}

// ListStatic reads the static media registry and filters it.
func (c *Catalog) ListStatic(ctx context.Context, mediaType, owner string) ([]Record, error) {
	body, err := c.docs.GetDocument(ctx, registryKey)
	if err != nil {
		if errors.Is(err, storage.ErrNoDocument) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("failed to read media registry: %w", err)
	}

	var registry struct {
		Media []Record `json:"media"`
	}
	if err := json.Unmarshal(body, &registry); err != nil {
		return nil, fmt.Errorf("malformed media registry: %w", err)
	}

	return filter(registry.Media, mediaType, owner), nil
}

// ListStorage lists every object under the owner prefix and projects each
// key into a Record. Keys that don't match the expected
// owner/[game]/filename shape degrade to owner-only records.
func (c *Catalog) ListStorage(ctx context.Context, mediaType, owner string) ([]Record, error) {
	keys, err := c.lister.ListKeys(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage: %w", err)
	}

	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		keyOwner, gameID, filename := ParseKey(key)

		url, err := c.issuer.PresignGet(ctx, key)
		if err != nil {
			log.Printf("Failed to sign %s, omitting from catalog: %v", key, err)
			continue
		}

		records = append(records, Record{
			MediaID:     len(records) + 1,
			Type:        InferType(filename),
			URL:         url,
			Timestamp:   parseArtifactTimestamp(filename),
			OwnerUserID: keyOwner,
			GameID:      gameID,
		})
	}

	return renumber(filter(records, mediaType, owner)), nil
}

// ParseKey splits an object key positionally: owner/[game_id/]filename.
// A two-segment key has no game id; anything shorter degrades to an
// owner-only record instead of failing.
func ParseKey(key string) (owner, gameID, filename string) {
	segments := strings.Split(strings.Trim(key, "/"), "/")
	switch {
	case len(segments) >= 3:
		return segments[0], segments[1], segments[len(segments)-1]
	case len(segments) == 2:
		return segments[0], "", segments[1]
	default:
		return segments[0], "", segments[0]
	}
}

// InferType maps a filename extension to a media type.
func InferType(filename string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(filename), ".")) {
	case "mp4", "mov", "mkv":
		return TypeVideo
	case "mp3", "wav":
		return TypeAudio
	case "jpg", "jpeg", "png":
		return TypeScreenshot
	default:
		return TypeUnknown
	}
}

// parseArtifactTimestamp recovers the capture time embedded in artifact
// filenames (<kind>_<YYYYMMDD_HHMMSS>.<ext>). Unparseable names get the
// zero time rather than an error.
func parseArtifactTimestamp(filename string) time.Time {
	stem := strings.TrimSuffix(filename, path.Ext(filename))
	parts := strings.Split(stem, "_")
	if len(parts) < 2 {
		return time.Time{}
	}
	raw := strings.Join(parts[len(parts)-2:], "_")
	ts, err := time.ParseInLocation("20060102_150405", raw, time.Local)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func filter(records []Record, mediaType, owner string) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if mediaType != "" && r.Type != mediaType {
			continue
		}
		if owner != "" && r.OwnerUserID != owner {
			continue
		}
		out = append(out, r)
	}
	return out
}

func renumber(records []Record) []Record {
	for i := range records {
		records[i].MediaID = i + 1
	}
	return records
}
