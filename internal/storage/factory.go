package storage

import (
	"context"
	"fmt"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendS3     = "s3"
)

// Config selects and configures a blob backend.
type Config struct {
	Type    string
	MaxSize int64
	S3      S3Config
}

// New builds the configured blob store.
func New(ctx context.Context, cfg Config) (BlobStore, error) {
	switch cfg.Type {
	case BackendMemory, "":
		return NewMemoryStore(cfg.MaxSize), nil
	case BackendS3:
		s3cfg := cfg.S3
		s3cfg.MaxSize = cfg.MaxSize
		store, err := NewS3Store(ctx, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
