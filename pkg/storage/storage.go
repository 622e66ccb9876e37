package storage

import (
	"context"
	"io"
)

// BlobStore holds uploaded audio files under storage-relative keys for the
// duration of an ingestion cycle.
type BlobStore interface {
	Save(ctx context.Context, key string, r io.Reader, size int64) error
	Read(ctx context.Context, key string) ([]byte, error)
	// Size returns the stored size in bytes. Implementations may be unable
	// to determine it; callers treat a Size error as non-fatal.
	Size(ctx context.Context, key string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}
