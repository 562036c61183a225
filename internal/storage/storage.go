// Package storage abstracts the durable object store holding job inputs
// and backend artifacts. The gateway needs only a key/value blob surface:
// write, read, bounded prefix listing, and time-limited download links.
// The production implementation is S3; tests substitute in-memory fakes.
package storage

import (
	"context"
	"time"
)

// Object describes one listed artifact.
type Object struct {
	Key          string
	LastModified time.Time
}

// Store is the narrow object-store capability consumed by the job services.
// Implementations must be safe for concurrent use. Listings are eventually
// consistent: a just-written object may be absent from a subsequent List.
type Store interface {
	// Put writes body at key with the given content type.
	Put(ctx context.Context, key string, body []byte, contentType string) error

	// Get reads the full object at key.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns up to max objects under prefix.
	List(ctx context.Context, prefix string, max int) ([]Object, error)

	// PresignGet returns a self-authenticating download URL for key,
	// valid for ttl.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Location renders the store-native URI for key (e.g. s3://bucket/key),
	// the form the compute backend expects as an input reference.
	Location(key string) string
}
