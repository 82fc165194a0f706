package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/entitlement/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
)

// PostgresStore persists subscriptions in PostgreSQL. The quota boundary is
// a single conditional UPDATE, so concurrent admits serialize on the row.
//
// Expected schema:
//
//	CREATE TABLE subscriptions (
//	    id UUID PRIMARY KEY,
//	    user_id UUID NOT NULL,
//	    plan_name TEXT NOT NULL,
//	    verification_limit INT,
//	    status TEXT NOT NULL,
//	    verifications_used INT NOT NULL DEFAULT 0,
//	    current_period_start TIMESTAMPTZ NOT NULL,
//	    current_period_end TIMESTAMPTZ NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE UNIQUE INDEX subscriptions_one_active_per_user
//	    ON subscriptions (user_id) WHERE status = 'active';
type PostgresStore struct {
	db       *sql.DB
	freePlan models.Plan
}

// NewPostgres constructs a PostgreSQL-backed subscription store.
func NewPostgres(db *sql.DB, freePlan models.Plan) *PostgresStore {
	return &PostgresStore{db: db, freePlan: freePlan}
}

const subscriptionColumns = `id, user_id, plan_name, verification_limit, status,
	verifications_used, current_period_start, current_period_end, created_at, updated_at`

func (s *PostgresStore) GetActiveByUser(ctx context.Context, userID domain.UserID, now time.Time) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND status = 'active'
		  AND current_period_start <= $2 AND current_period_end > $2
	`
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, uuid.UUID(userID), now))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get active subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) IncrementUsage(ctx context.Context, userID domain.UserID, now time.Time) (*models.Subscription, error) {
	// Two passes: the conditional increment, then an implicit free-tier
	// insert if the user had no active subscription. The insert races are
	// settled by the partial unique index, after which the increment is
	// retried once.
	for attempt := 0; attempt < 2; attempt++ {
		sub, err := s.tryIncrement(ctx, userID, now)
		if err != nil || sub != nil {
			return sub, err
		}

		active, err := s.GetActiveByUser(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		if active != nil {
			// Active subscription exists but refused the increment: spent.
			return nil, ErrQuotaExhausted
		}
		if err := s.insertFree(ctx, userID, now); err != nil {
			return nil, err
		}
	}
	return nil, ErrQuotaExhausted
}

func (s *PostgresStore) tryIncrement(ctx context.Context, userID domain.UserID, now time.Time) (*models.Subscription, error) {
	query := `
		UPDATE subscriptions
		SET verifications_used = verifications_used + 1, updated_at = $2
		WHERE user_id = $1 AND status = 'active'
		  AND current_period_start <= $2 AND current_period_end > $2
		  AND (verification_limit IS NULL OR verifications_used < verification_limit)
		RETURNING ` + subscriptionColumns + `
	`
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, uuid.UUID(userID), now))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("increment subscription usage: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) insertFree(ctx context.Context, userID domain.UserID, now time.Time) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, 'active', 0, $5, $6, $5, $5)
		ON CONFLICT (user_id) WHERE status = 'active' DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New(),
		uuid.UUID(userID),
		s.freePlan.Name,
		s.freePlan.VerificationLimit,
		now,
		now.AddDate(0, 1, 0),
	)
	if err != nil {
		return fmt.Errorf("insert free subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) WHERE status = 'active' DO UPDATE SET
			plan_name = EXCLUDED.plan_name,
			verification_limit = EXCLUDED.verification_limit,
			status = EXCLUDED.status,
			verifications_used = EXCLUDED.verifications_used,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(sub.ID),
		uuid.UUID(sub.UserID),
		sub.Plan.Name,
		sub.Plan.VerificationLimit,
		string(sub.Status),
		sub.VerificationsUsed,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("active subscription already exists for user %s", sub.UserID)
		}
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func scanSubscription(row *sql.Row) (*models.Subscription, error) {
	var (
		sub           models.Subscription
		subID, userID uuid.UUID
		limit         sql.NullInt64
		status        string
	)
	err := row.Scan(
		&subID, &userID, &sub.Plan.Name, &limit, &status,
		&sub.VerificationsUsed, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.ID = domain.SubscriptionID(subID)
	sub.UserID = domain.UserID(userID)
	sub.Status = models.SubscriptionStatus(status)
	if limit.Valid {
		n := int(limit.Int64)
		sub.Plan.VerificationLimit = &n
	}
	return &sub, nil
}
