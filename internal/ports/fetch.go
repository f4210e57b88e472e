// Package ports defines the interfaces (contracts) that adapters must
// implement. These are the boundaries of the hexagonal architecture: domain
// logic depends only on these interfaces, never on concrete implementations.
package ports

import "context"

// Fetcher retrieves one remote JSON document. Implementations must reject
// payloads whose declared content type is not JSON, so an HTML error page
// is reported as a fetch failure instead of a parse failure downstream.
//
// Fetches are one-shot, best-effort: no retries. A failed fetch excludes
// that one document and never aborts the batch.
type Fetcher interface {
	// FetchJSON returns the raw body of the document at url.
	FetchJSON(ctx context.Context, url string) ([]byte, error)
}

// DocumentCache exposes the persisted fetch cache for inspection and
// maintenance. The cache itself decorates a Fetcher: successful responses
// are stored, and a stored copy is served when the origin is unreachable.
type DocumentCache interface {
	// Stats summarizes the cache contents.
	Stats() (CacheStats, error)

	// Clear removes every cached document. Idempotent.
	Clear() error
}

// CacheStats summarizes cached documents.
type CacheStats struct {
	Entries    int   `json:"entries"`
	TotalBytes int64 `json:"totalBytes"`
}
