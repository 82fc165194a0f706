package store

import (
	"context"
	"sync"
	"time"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/entitlement/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
)

// InMemoryStore keeps subscriptions in a map keyed by user. The write lock
// makes IncrementUsage an atomic check-and-increment.
type InMemoryStore struct {
	mu       sync.RWMutex
	subs     map[domain.UserID]*models.Subscription
	freePlan models.Plan
}

// NewMemory builds the store; freePlan is installed for users who submit
// without an explicit subscription.
func NewMemory(freePlan models.Plan) *InMemoryStore {
	return &InMemoryStore{
		subs:     make(map[domain.UserID]*models.Subscription),
		freePlan: freePlan,
	}
}

func (s *InMemoryStore) GetActiveByUser(_ context.Context, userID domain.UserID, now time.Time) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, exists := s.subs[userID]
	if !exists || !sub.ActiveAt(now) {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (s *InMemoryStore) IncrementUsage(_ context.Context, userID domain.UserID, now time.Time) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, exists := s.subs[userID]
	if !exists || !sub.ActiveAt(now) {
		sub = s.newFreeSubscription(userID, now)
		s.subs[userID] = sub
	}
	if remaining, bounded := sub.Remaining(); bounded && remaining <= 0 {
		return nil, ErrQuotaExhausted
	}
	sub.VerificationsUsed++
	sub.UpdatedAt = now
	cp := *sub
	return &cp, nil
}

func (s *InMemoryStore) Upsert(_ context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sub
	s.subs[sub.UserID] = &cp
	return nil
}

func (s *InMemoryStore) newFreeSubscription(userID domain.UserID, now time.Time) *models.Subscription {
	return &models.Subscription{
		ID:                 domain.NewSubscriptionID(),
		UserID:             userID,
		Plan:               s.freePlan,
		Status:             models.SubscriptionActive,
		VerificationsUsed:  0,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
