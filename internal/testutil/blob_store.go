package testutil

import (
	"context"
	"sync"

	pkgerrors "github.com/turtacn/ChemPredict/pkg/errors"
)

// MemBlobStore is an in-memory artifact store.  It satisfies
// mechanism.BlobStore without importing it.
type MemBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	// PutErr, when set, is returned by every Put.
	PutErr error
}

// NewMemBlobStore returns an empty store.
func NewMemBlobStore() *MemBlobStore {
	return &MemBlobStore{blobs: make(map[string][]byte)}
}

func (s *MemBlobStore) Put(_ context.Context, name string, data []byte) error {
	if s.PutErr != nil {
		return s.PutErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.mu.Lock()
	s.blobs[name] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemBlobStore) Get(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[name]
	if !ok {
		return nil, pkgerrors.ArtifactMissing(name)
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}

func (s *MemBlobStore) Exists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[name]
	return ok, nil
}

// Delete removes a blob.
func (s *MemBlobStore) Delete(name string) {
	s.mu.Lock()
	delete(s.blobs, name)
	s.mu.Unlock()
}

// Corrupt overwrites a blob with bytes that do not decode.
func (s *MemBlobStore) Corrupt(name string) {
	s.mu.Lock()
	s.blobs[name] = []byte("{not json")
	s.mu.Unlock()
}
