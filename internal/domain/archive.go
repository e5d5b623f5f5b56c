package domain

import (
	"context"
	"io"
	"time"
)

// Archiver moves settled history rows older than a cutoff out of the primary
// store into cold storage and reports how many rows moved.
type Archiver interface {
	ArchiveHistory(ctx context.Context, before time.Time) (int64, error)
}

// Object paths below are relative to the configured archive prefix, e.g.
// "2026-09/20261016T030000Z.jsonl".

// BlobInfo is one listed archive object.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType,omitempty"`
	LastModified time.Time `json:"lastModified"`
}

// BlobWriter stores archive objects. An empty contentType means JSONL.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader reads archive objects back. Get wraps ErrNotFound for a
// missing path.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}
