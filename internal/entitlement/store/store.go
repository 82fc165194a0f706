package store

import (
	"context"
	"errors"
	"time"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/entitlement/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
)

// ErrQuotaExhausted signals that an atomic increment was refused because
// the subscription's verification limit is already spent. The gate maps it
// to the quota_exceeded domain error.
var ErrQuotaExhausted = errors.New("quota exhausted")

// Store persists subscriptions. IncrementUsage is the quota boundary: it
// must be an atomic check-and-increment, never a read-then-write, so two
// racing admits cannot both pass the last slot.
type Store interface {
	// GetActiveByUser returns the user's subscription active at now, or
	// nil when the user is on the implicit free tier and has never
	// submitted.
	GetActiveByUser(ctx context.Context, userID domain.UserID, now time.Time) (*models.Subscription, error)
	// IncrementUsage atomically consumes one verification from the active
	// subscription, creating an implicit free-tier subscription when the
	// user has none. Returns ErrQuotaExhausted when nothing remains.
	IncrementUsage(ctx context.Context, userID domain.UserID, now time.Time) (*models.Subscription, error)
	// Upsert installs or replaces a user's active subscription (plan
	// change, billing renewal). One active subscription per user.
	Upsert(ctx context.Context, sub *models.Subscription) error
}
