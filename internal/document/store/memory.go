package store

import (
	"context"
	"sync"
	"time"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/platform/sentinel"
)

// InMemoryStore keeps documents in a map. Used by unit tests and dev mode
// when no DATABASE_URL is configured.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[domain.DocumentID]*models.Document
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{docs: make(map[domain.DocumentID]*models.Document)}
}

func (s *InMemoryStore) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, exists := s.docs[id]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID domain.UserID) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Document
	for _, doc := range s.docs {
		if doc.UserID == userID {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListAll(_ context.Context) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		cp := *doc
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, id domain.DocumentID, status models.Status, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[id]
	if !exists {
		return sentinel.ErrNotFound
	}
	doc.Status = status
	doc.UpdatedAt = updatedAt
	return nil
}

func (s *InMemoryStore) UpdatePrivacy(_ context.Context, id domain.DocumentID, privacy models.Privacy, sharedWith []domain.UserID, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[id]
	if !exists {
		return sentinel.ErrNotFound
	}
	doc.Privacy = privacy
	doc.SharedWith = append([]domain.UserID(nil), sharedWith...)
	doc.UpdatedAt = updatedAt
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id domain.DocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[id]; !exists {
		return sentinel.ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

func (s *InMemoryStore) CountByStatus(_ context.Context) (map[models.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.Status]int)
	for _, doc := range s.docs {
		counts[doc.Status]++
	}
	return counts, nil
}
