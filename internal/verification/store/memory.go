package store

import (
	"context"
	"sort"
	"sync"
	"time"

	docmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/platform/sentinel"
)

// InMemoryStore keeps verification requests in a map. Conditional
// transitions run under the write lock, which makes them atomic
// check-and-set operations.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[domain.RequestID]*models.VerificationRequest
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{requests: make(map[domain.RequestID]*models.VerificationRequest)}
}

func (s *InMemoryStore) Create(_ context.Context, req *models.VerificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return sentinel.ErrConflict
	}
	// Mirrors the partial unique index on the SQL store: a document holds
	// at most one request in an open state.
	if !req.Status.IsTerminal() {
		for _, other := range s.requests {
			if other.DocumentID == req.DocumentID && !other.Status.IsTerminal() {
				return sentinel.ErrConflict
			}
		}
	}
	cp := cloneRequest(req)
	s.requests[req.ID] = cp
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.RequestID) (*models.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, exists := s.requests[id]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return cloneRequest(req), nil
}

func (s *InMemoryStore) ListByDocument(_ context.Context, docID domain.DocumentID) ([]*models.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.VerificationRequest
	for _, req := range s.requests {
		if req.DocumentID == docID {
			out = append(out, cloneRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	return out, nil
}

func (s *InMemoryStore) ListAll(_ context.Context) ([]*models.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.VerificationRequest, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, cloneRequest(req))
	}
	return out, nil
}

func (s *InMemoryStore) OpenForDocument(_ context.Context, docID domain.DocumentID) (*models.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, req := range s.requests {
		if req.DocumentID == docID && !req.Status.IsTerminal() {
			return cloneRequest(req), nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) Claim(_ context.Context, id domain.RequestID, at time.Time) (*models.VerificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, exists := s.requests[id]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	if req.Status != models.StatusPending {
		return nil, sentinel.ErrInvalidState
	}
	req.Status = models.StatusInProgress
	started := at
	if started.Before(req.RequestedAt) {
		started = req.RequestedAt
	}
	req.StartedAt = &started
	return cloneRequest(req), nil
}

func (s *InMemoryStore) Finalize(_ context.Context, id domain.RequestID, to models.Status, at time.Time, resultStatus *docmodels.Status, metadata map[string]any) (*models.VerificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, exists := s.requests[id]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	if !models.CanTransition(req.Status, to) || !to.IsTerminal() {
		return nil, sentinel.ErrInvalidState
	}
	req.Status = to
	req.CompletedAt = &at
	req.ResultStatus = resultStatus
	if len(metadata) > 0 {
		if req.Metadata == nil {
			req.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			req.Metadata[k] = v
		}
	}
	return cloneRequest(req), nil
}

func (s *InMemoryStore) Cancel(_ context.Context, id domain.RequestID, at time.Time) (*models.VerificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, exists := s.requests[id]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	if req.Status.IsTerminal() {
		return nil, sentinel.ErrInvalidState
	}
	req.Status = models.StatusCancelled
	req.CompletedAt = &at
	return cloneRequest(req), nil
}

func (s *InMemoryStore) DeleteByDocument(_ context.Context, docID domain.DocumentID, purgeCompleted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, req := range s.requests {
		if req.DocumentID != docID {
			continue
		}
		if req.Status == models.StatusCompleted && !purgeCompleted {
			continue
		}
		delete(s.requests, id)
	}
	return nil
}

func cloneRequest(req *models.VerificationRequest) *models.VerificationRequest {
	cp := *req
	if req.Metadata != nil {
		cp.Metadata = make(map[string]any, len(req.Metadata))
		for k, v := range req.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
