// Package blob is the contract with the external binary store. The engine
// only moves references; bytes never flow through core operations.
package blob

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/platform/sentinel"
)

// Store puts and gets opaque blobs by reference.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, fileRef string) ([]byte, error)
}

// InMemoryStore holds blobs in a map. Dev mode and tests; production
// deployments point the upload path at an object store and hand the
// engine the resulting references.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[string][]byte)}
}

func (s *InMemoryStore) Put(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := fmt.Sprintf("blob://%s", uuid.NewString())
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[ref] = cp
	return ref, nil
}

func (s *InMemoryStore) Get(_ context.Context, fileRef string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.blobs[fileRef]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}
