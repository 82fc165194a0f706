// Package dispatcher drives verification work: it admits submissions
// through the entitlement gate, opens and claims requests on the state
// machine, and reconciles analyzer results, synchronous or asynchronous.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	docmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/models"
	entmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/entitlement/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/platform/metrics"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/analyzer"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/statemachine"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
	derrors "github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain-errors"
)

// Gate is the entitlement check consumed before any request is created.
type Gate interface {
	Admit(ctx context.Context, userID domain.UserID) (*entmodels.Subscription, error)
}

// DocumentReader resolves submission targets.
type DocumentReader interface {
	Get(ctx context.Context, id domain.DocumentID) (*docmodels.Document, error)
}

type Service struct {
	documents DocumentReader
	machine   *statemachine.Machine
	gate      Gate
	analyzer  analyzer.Client
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// async dispatches analyzer calls on background goroutines; Submit
	// returns as soon as the request is claimed.
	async        bool
	retryBackoff time.Duration

	group    *errgroup.Group
	mu       sync.Mutex
	inFlight map[domain.RequestID]context.CancelFunc
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAsync makes Submit return before analysis resolves; results land
// through the background goroutine or the analyzer callback.
func WithAsync() Option {
	return func(s *Service) { s.async = true }
}

// WithRetryBackoff overrides the delay before the single transient retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Service) { s.retryBackoff = d }
}

func New(documents DocumentReader, machine *statemachine.Machine, gate Gate, client analyzer.Client, opts ...Option) (*Service, error) {
	if documents == nil || machine == nil || gate == nil || client == nil {
		return nil, fmt.Errorf("document reader, state machine, gate, and analyzer client are required")
	}

	svc := &Service{
		documents:    documents,
		machine:      machine,
		gate:         gate,
		analyzer:     client,
		logger:       slog.Default(),
		retryBackoff: 2 * time.Second,
		group:        &errgroup.Group{},
		inFlight:     make(map[domain.RequestID]context.CancelFunc),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Submit creates and dispatches one verification request for the document.
// Admission order is deliberate: the quota increment lands before the
// request record exists, so a crash in between costs one quota slot rather
// than granting an unmetered verification.
func (s *Service) Submit(ctx context.Context, principal domain.Principal, documentID domain.DocumentID, kind models.RequestKind) (*models.VerificationRequest, error) {
	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeNotFound, "document not found")
	}
	if doc.UserID != principal.UserID && !principal.Capabilities().Has(domain.CapWriteAll) {
		return nil, derrors.New(derrors.CodeForbidden, "document is not owned by the caller")
	}

	// Duplicate submits should not spend quota. The check here is advisory;
	// the transactional check in Open still closes the race window.
	if open, err := s.machine.InFlight(ctx, documentID); err == nil && open != nil {
		s.countSubmission("in_flight")
		return nil, derrors.New(derrors.CodeRequestInFlight, "a verification request is already in flight for this document")
	}

	if _, err := s.gate.Admit(ctx, principal.UserID); err != nil {
		if derrors.Is(err, derrors.CodeQuotaExceeded) {
			s.countSubmission("quota_denied")
			if s.metrics != nil {
				s.metrics.QuotaDenials.Inc()
			}
		}
		return nil, err
	}

	req := &models.VerificationRequest{
		ID:          domain.NewRequestID(),
		DocumentID:  documentID,
		UserID:      principal.UserID,
		Kind:        kind,
		Status:      models.StatusPending,
		RequestedAt: time.Now(),
	}
	if err := s.machine.Open(ctx, req); err != nil {
		if derrors.Is(err, derrors.CodeRequestInFlight) {
			s.countSubmission("in_flight")
			return nil, err
		}
		// Quota was already spent. Bounded, acceptable loss; surfaced as
		// a reconciliation discrepancy rather than rolled back.
		s.logger.ErrorContext(ctx, "quota consumed but request creation failed",
			"user_id", principal.UserID,
			"document_id", documentID,
			"error", err,
		)
		return nil, err
	}

	claimed, err := s.machine.Claim(ctx, req.ID)
	if err != nil {
		// Someone cancelled between open and claim; the request record
		// stands, so report acceptance with its current state.
		s.logger.WarnContext(ctx, "request claimed away before dispatch",
			"request_id", req.ID,
			"error", err,
		)
		return req, nil
	}

	s.countSubmission("admitted")

	if s.async {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.track(claimed.ID, cancel)
		s.group.Go(func() error {
			defer s.untrack(claimed.ID)
			s.resolve(runCtx, claimed.ID, doc.FileRef)
			return nil
		})
		return claimed, nil
	}

	s.resolve(ctx, claimed.ID, doc.FileRef)
	// The terminal state is what the caller sees on the record; Submit
	// itself reports acceptance.
	final, err := s.machine.Get(ctx, claimed.ID)
	if err != nil {
		return claimed, nil
	}
	return final, nil
}

// resolve runs the analyzer and applies the terminal transition. Exactly
// one retry is permitted for transient transport errors.
func (s *Service) resolve(ctx context.Context, id domain.RequestID, fileRef string) {
	started := time.Now()
	outcome, err := s.analyzer.Analyze(ctx, fileRef)
	if s.metrics != nil {
		s.metrics.ObserveAnalyzer(time.Since(started))
	}
	if err != nil && analyzer.IsTransient(err) && ctx.Err() == nil {
		if s.metrics != nil {
			s.metrics.AnalyzerRetries.Inc()
		}
		s.logger.WarnContext(ctx, "transient analyzer error, retrying once",
			"request_id", id,
			"error", err,
		)
		select {
		case <-time.After(s.retryBackoff):
		case <-ctx.Done():
		}
		if ctx.Err() == nil {
			outcome, err = s.analyzer.Analyze(ctx, fileRef)
		}
	}

	if err != nil {
		s.failSafe(ctx, id, err.Error())
		return
	}

	if _, err := s.machine.Complete(ctx, id, outcome); err != nil {
		if derrors.Is(err, derrors.CodeInvalidTransition) {
			// Cancelled while the analyzer ran; result is logged, not applied.
			s.logger.InfoContext(ctx, "dropping analyzer result for terminal request",
				"request_id", id,
				"determination", outcome.Determination,
			)
			return
		}
		s.logger.ErrorContext(ctx, "failed to apply analyzer outcome",
			"request_id", id,
			"error", err,
		)
		s.failSafe(ctx, id, "failed to apply analyzer outcome: "+err.Error())
	}
}

// failSafe drives the request to failed. No request may sit in a
// non-terminal state indefinitely, so errors here are logged, never
// propagated into another non-terminal outcome.
func (s *Service) failSafe(ctx context.Context, id domain.RequestID, cause string) {
	if _, err := s.machine.Fail(ctx, id, cause); err != nil {
		if derrors.Is(err, derrors.CodeInvalidTransition) {
			return
		}
		s.logger.ErrorContext(ctx, "failed to fail verification request",
			"request_id", id,
			"cause", cause,
			"error", err,
		)
	}
}

// Cancel cancels a request on behalf of its owner or an operator.
// Cancelling an already-terminal request is a no-op returning the existing
// state. An in-progress analyzer call is interrupted best-effort; a result
// arriving later is dropped by the state machine.
func (s *Service) Cancel(ctx context.Context, principal domain.Principal, id domain.RequestID) (*models.VerificationRequest, error) {
	req, err := s.machine.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != principal.UserID && !principal.Capabilities().Has(domain.CapWriteAll) {
		return nil, derrors.New(derrors.CodeForbidden, "request is not owned by the caller")
	}

	cancelled, err := s.machine.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if cancel, ok := s.inFlight[id]; ok {
		cancel()
	}
	s.mu.Unlock()

	return cancelled, nil
}

// HandleAnalyzerResult ingests an asynchronous analyzer callback. The
// outcome is validated before it touches any state; late results for
// requests that already reached a terminal state are dropped.
func (s *Service) HandleAnalyzerResult(ctx context.Context, id domain.RequestID, outcome models.Outcome) error {
	if err := outcome.Validate(); err != nil {
		return derrors.Wrap(err, derrors.CodeValidation, "invalid analyzer outcome")
	}
	if _, err := s.machine.Complete(ctx, id, outcome); err != nil {
		if derrors.Is(err, derrors.CodeInvalidTransition) {
			s.logger.InfoContext(ctx, "dropping late analyzer callback for terminal request",
				"request_id", id,
			)
			return nil
		}
		return err
	}
	return nil
}

// Close waits for background analyzer work to settle.
func (s *Service) Close() error {
	return s.group.Wait()
}

func (s *Service) track(id domain.RequestID, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight[id] = cancel
}

func (s *Service) untrack(id domain.RequestID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

func (s *Service) countSubmission(outcome string) {
	if s.metrics != nil {
		s.metrics.VerificationsSubmitted.WithLabelValues(outcome).Inc()
	}
}
