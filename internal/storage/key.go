package storage

import (
	"context"
	"path"
)

// URLIssuer is the signed-URL issuing contract consumed by the upload
// pipeline and the media catalog.
type URLIssuer interface {
	PresignPut(ctx context.Context, key string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
}

// DocumentStore persists small JSON registry documents.
type DocumentStore interface {
	GetDocument(ctx context.Context, key string) ([]byte, error)
	PutDocument(ctx context.Context, key string, body []byte) error
}

// Lister enumerates object keys under a prefix.
type Lister interface {
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// ObjectKey shapes the storage key for a captured artifact:
// <owner>/<filename>, nested under the game id when one is known.
func ObjectKey(owner, gameID, filename string) string {
	if gameID != "" {
		return path.Join(owner, gameID, filename)
	}
	return path.Join(owner, filename)
}
