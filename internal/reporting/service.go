// Package reporting computes fleet-wide statistics for operators. Pure
// read side; nothing here mutates state.
package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	docmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/models"
	vmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/models"
	derrors "github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain-errors"
)

// RequestSource lists the verification corpus.
type RequestSource interface {
	ListAll(ctx context.Context) ([]*vmodels.VerificationRequest, error)
}

// ActiveUserSource counts distinct users seen since a cutoff. Losing it is
// not fatal; stats degrade to zero active users.
type ActiveUserSource interface {
	CountActiveSince(ctx context.Context, since time.Time) (int, error)
}

// ActiveUserWindow is the trailing window for the active-user count.
const ActiveUserWindow = 30 * 24 * time.Hour

// Stats is the operator dashboard aggregate.
type Stats struct {
	TotalVerifications int `json:"total_verifications"`
	VerifiedCount      int `json:"verified_count"`
	PendingCount       int `json:"pending_count"`
	SuspiciousCount    int `json:"suspicious_count"`
	FailedCount        int `json:"failed_count"`
	ActiveUsers        int `json:"active_users"`
	// ActiveUsersDegraded reports that the activity source was down and
	// ActiveUsers is a fallback value, not a measurement.
	ActiveUsersDegraded bool `json:"active_users_degraded,omitempty"`
}

type Service struct {
	requests RequestSource
	activity ActiveUserSource
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithActivitySource installs the active-user lookup. Without one, stats
// always report zero active users.
func WithActivitySource(src ActiveUserSource) Option {
	return func(s *Service) { s.activity = src }
}

func New(requests RequestSource, opts ...Option) (*Service, error) {
	if requests == nil {
		return nil, fmt.Errorf("request source is required")
	}

	svc := &Service{
		requests: requests,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// ComputeStats aggregates every verification request by the document
// status it produced. Open requests count as pending; cancelled requests
// count toward the total only. An empty corpus yields all zeros.
func (s *Service) ComputeStats(ctx context.Context, asOf time.Time) (Stats, error) {
	requests, err := s.requests.ListAll(ctx)
	if err != nil {
		return Stats{}, derrors.Wrap(err, derrors.CodeInternal, "failed to load verification corpus")
	}

	var stats Stats
	stats.TotalVerifications = len(requests)
	for _, req := range requests {
		switch req.Status {
		case vmodels.StatusPending, vmodels.StatusInProgress:
			stats.PendingCount++
		case vmodels.StatusFailed:
			stats.FailedCount++
		case vmodels.StatusCompleted:
			if req.ResultStatus == nil {
				continue
			}
			switch *req.ResultStatus {
			case docmodels.StatusVerified:
				stats.VerifiedCount++
			case docmodels.StatusPartialVerified:
				stats.SuspiciousCount++
			case docmodels.StatusFailed:
				stats.FailedCount++
			}
		}
	}

	if s.activity != nil {
		active, err := s.activity.CountActiveSince(ctx, asOf.Add(-ActiveUserWindow))
		if err != nil {
			s.logger.WarnContext(ctx, "active-user source unavailable, degrading to zero",
				"error", err,
			)
			stats.ActiveUsersDegraded = true
		} else {
			stats.ActiveUsers = active
		}
	}

	return stats, nil
}
