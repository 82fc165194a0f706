// Package service implements the entitlement gate: every verification
// submission passes Admit before any request record exists.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/entitlement/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/entitlement/store"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
	derrors "github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain-errors"
)

type Store = store.Store

type Service struct {
	store    Store
	freePlan models.Plan
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides time lookup for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(st Store, freePlan models.Plan, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("subscription store is required")
	}

	svc := &Service{
		store:    st,
		freePlan: freePlan,
		logger:   slog.Default(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Admit consumes one verification from the user's active subscription,
// admitting free-tier users under the implicit free plan. The increment is
// atomic in the store; by the time Admit returns nil the slot is spent, so
// the dispatcher creates the request after admission (increment first,
// never the other way around).
func (s *Service) Admit(ctx context.Context, userID domain.UserID) (*models.Subscription, error) {
	if userID.IsNil() {
		return nil, derrors.New(derrors.CodeValidation, "user id is required")
	}

	sub, err := s.store.IncrementUsage(ctx, userID, s.now())
	if err != nil {
		if errors.Is(err, store.ErrQuotaExhausted) {
			s.logger.InfoContext(ctx, "verification denied by entitlement gate",
				"user_id", userID,
			)
			return nil, derrors.New(derrors.CodeQuotaExceeded, "verification quota exceeded for current billing cycle")
		}
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to consume verification quota")
	}
	return sub, nil
}

// Remaining reports how many verifications the user has left in the
// current cycle. Unbounded plans return (0, false).
func (s *Service) Remaining(ctx context.Context, userID domain.UserID) (int, bool, error) {
	sub, err := s.store.GetActiveByUser(ctx, userID, s.now())
	if err != nil {
		return 0, false, derrors.Wrap(err, derrors.CodeInternal, "failed to resolve subscription")
	}
	if sub == nil {
		// Free tier, untouched this cycle.
		free := models.Subscription{Plan: s.freePlan}
		remaining, bounded := free.Remaining()
		return remaining, bounded, nil
	}
	remaining, bounded := sub.Remaining()
	return remaining, bounded, nil
}

// SetPlan installs a subscription for the user starting at periodStart for
// the given duration.
func (s *Service) SetPlan(ctx context.Context, userID domain.UserID, plan models.Plan, periodStart time.Time, period time.Duration) (*models.Subscription, error) {
	if userID.IsNil() {
		return nil, derrors.New(derrors.CodeValidation, "user id is required")
	}
	if period <= 0 {
		return nil, derrors.New(derrors.CodeValidation, "billing period must be positive")
	}

	now := s.now()
	sub := &models.Subscription{
		ID:                 domain.NewSubscriptionID(),
		UserID:             userID,
		Plan:               plan,
		Status:             models.SubscriptionActive,
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodStart.Add(period),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.Upsert(ctx, sub); err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to install subscription")
	}
	return sub, nil
}
