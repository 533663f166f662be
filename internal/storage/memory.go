package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
)

type storedBlob struct {
	object  Object
	content []byte
}

// MemoryStore is a thread-safe, in-memory BlobStore for tests and development.
type MemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string]*storedBlob
	maxSize int64
}

// NewMemoryStore returns a ready-to-use MemoryStore. maxSize <= 0 uses DefaultMaxSize.
func NewMemoryStore(maxSize int64) *MemoryStore {
	return &MemoryStore{
		blobs:   make(map[string]*storedBlob),
		maxSize: maxSize,
	}
}

// Put reads the content, counts its pages and keeps it under key.
func (s *MemoryStore) Put(_ context.Context, key, contentType string, content io.Reader) (Object, error) {
	data, err := readLimited(content, s.maxSize)
	if err != nil {
		return Object{}, err
	}

	obj := Object{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Pages:       CountPages(contentType, data),
	}

	s.mu.Lock()
	s.blobs[key] = &storedBlob{object: obj, content: data}
	s.mu.Unlock()

	return obj, nil
}

// Get returns a reader over the blob content.
func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, Object, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()

	if !ok {
		return nil, Object{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(blob.content)), blob.object, nil
}

// Delete removes a blob. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.blobs, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
