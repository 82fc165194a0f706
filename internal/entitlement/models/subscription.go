package models

import (
	"time"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
)

// Plan is a pricing plan's entitlement surface. A nil VerificationLimit
// means unlimited.
type Plan struct {
	Name              string
	VerificationLimit *int
}

// SubscriptionStatus tracks billing lifecycle; only active subscriptions
// admit verification work.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// Subscription binds a user to a plan for one billing cycle.
// Invariant: VerificationsUsed never exceeds the plan limit when the limit
// is non-nil; the store enforces this with a conditional increment.
type Subscription struct {
	ID                 domain.SubscriptionID
	UserID             domain.UserID
	Plan               Plan
	Status             SubscriptionStatus
	VerificationsUsed  int
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ActiveAt reports whether the subscription admits work at now: status
// active and now inside [start, end).
func (s *Subscription) ActiveAt(now time.Time) bool {
	return s.Status == SubscriptionActive &&
		!now.Before(s.CurrentPeriodStart) &&
		now.Before(s.CurrentPeriodEnd)
}

// Remaining returns how many verifications are left, and whether the plan
// is bounded at all.
func (s *Subscription) Remaining() (int, bool) {
	if s.Plan.VerificationLimit == nil {
		return 0, false
	}
	return *s.Plan.VerificationLimit - s.VerificationsUsed, true
}

// FreePlan is the implicit plan for users without an active subscription.
func FreePlan(limit int) Plan {
	return Plan{Name: "free", VerificationLimit: &limit}
}
