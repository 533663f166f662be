// Package storage keeps the bytes of uploaded files. Metadata lives in the entity store; a blob is
// addressed only by its key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	ErrNotFound = errors.New("blob not found")
	ErrTooLarge = errors.New("file exceeds maximum allowed size")
	ErrEmpty    = errors.New("file is empty")
)

// DefaultMaxSize bounds uploads when no limit is configured (100 MB).
const DefaultMaxSize int64 = 100 * 1024 * 1024

// Object describes a stored blob.
type Object struct {
	Key         string
	ContentType string
	Size        int64
	Pages       int
}

// BlobStore defines the contract for blob storage backends.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, content io.Reader) (Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, Object, error)
	Delete(ctx context.Context, key string) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// readLimited reads content fully, failing once more than maxSize bytes arrive.
func readLimited(content io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	data, err := io.ReadAll(io.LimitReader(content, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	return data, nil
}
