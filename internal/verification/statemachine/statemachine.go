// Package statemachine owns the verification request lifecycle. Every
// transition in the system goes through the Machine, which pairs the
// request update with the derived document status update so readers never
// see a terminal request against a stale document.
package statemachine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	docmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/events"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/platform/metrics"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
	derrors "github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain-errors"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/platform/sentinel"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/platform/tx"
)

// RequestStore is what the machine needs from the verification store.
type RequestStore interface {
	Create(ctx context.Context, req *models.VerificationRequest) error
	Get(ctx context.Context, id domain.RequestID) (*models.VerificationRequest, error)
	ListByDocument(ctx context.Context, docID domain.DocumentID) ([]*models.VerificationRequest, error)
	OpenForDocument(ctx context.Context, docID domain.DocumentID) (*models.VerificationRequest, error)
	Claim(ctx context.Context, id domain.RequestID, at time.Time) (*models.VerificationRequest, error)
	Finalize(ctx context.Context, id domain.RequestID, to models.Status, at time.Time, resultStatus *docmodels.Status, metadata map[string]any) (*models.VerificationRequest, error)
	Cancel(ctx context.Context, id domain.RequestID, at time.Time) (*models.VerificationRequest, error)
}

// DocumentStore is what the machine needs from the document store.
type DocumentStore interface {
	Get(ctx context.Context, id domain.DocumentID) (*docmodels.Document, error)
	UpdateStatus(ctx context.Context, id domain.DocumentID, status docmodels.Status, updatedAt time.Time) error
}

// Emitter receives committed transition events.
type Emitter interface {
	Emit(event events.Event)
}

type Machine struct {
	requests  RequestStore
	documents DocumentStore
	runner    tx.Runner
	threshold float64
	emitter   Emitter
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Machine)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = metrics }
}

func WithEmitter(emitter Emitter) Option {
	return func(m *Machine) { m.emitter = emitter }
}

// WithClock overrides time lookup for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// New builds a Machine. threshold is the minimum analyzer confidence for a
// positive determination to yield a verified document.
func New(requests RequestStore, documents DocumentStore, runner tx.Runner, threshold float64, opts ...Option) (*Machine, error) {
	if requests == nil || documents == nil || runner == nil {
		return nil, fmt.Errorf("request store, document store, and tx runner are required")
	}

	m := &Machine{
		requests:  requests,
		documents: documents,
		runner:    runner,
		threshold: threshold,
		logger:    slog.Default(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Open records a new pending request and moves the parent document to
// pending. It enforces at-most-one-in-flight inside the transaction: a
// document with an outstanding request refuses a second one. Open assumes
// quota admission already happened.
func (m *Machine) Open(ctx context.Context, req *models.VerificationRequest) error {
	err := m.runner.RunInTx(ctx, func(ctx context.Context) error {
		open, err := m.requests.OpenForDocument(ctx, req.DocumentID)
		if err != nil {
			return err
		}
		if open != nil {
			return sentinel.ErrConflict
		}
		if err := m.documents.UpdateStatus(ctx, req.DocumentID, docmodels.StatusPending, m.now()); err != nil {
			return err
		}
		return m.requests.Create(ctx, req)
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return derrors.New(derrors.CodeNotFound, "document not found")
		case errors.Is(err, sentinel.ErrConflict):
			return derrors.New(derrors.CodeRequestInFlight, "a verification request is already in flight for this document")
		}
		return derrors.Wrap(err, derrors.CodeInternal, "failed to open verification request")
	}
	m.emit(events.KindDocument, req.DocumentID.String(), string(docmodels.StatusPending))
	m.emit(events.KindVerificationRequest, req.ID.String(), string(models.StatusPending))
	return nil
}

// InFlight returns the document's open request, if any. Callers use it as
// an advisory check; Open's transactional check remains authoritative.
func (m *Machine) InFlight(ctx context.Context, docID domain.DocumentID) (*models.VerificationRequest, error) {
	open, err := m.requests.OpenForDocument(ctx, docID)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to check open requests")
	}
	return open, nil
}

// Get returns a request by id.
func (m *Machine) Get(ctx context.Context, id domain.RequestID) (*models.VerificationRequest, error) {
	req, err := m.requests.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, derrors.New(derrors.CodeNotFound, "verification request not found")
		}
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to load verification request")
	}
	return req, nil
}

// Claim moves a pending request to in_progress. The store's conditional
// update is the serialization point: exactly one caller wins.
func (m *Machine) Claim(ctx context.Context, id domain.RequestID) (*models.VerificationRequest, error) {
	var claimed *models.VerificationRequest
	err := m.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		claimed, err = m.requests.Claim(ctx, id, m.now())
		return err
	})
	if err != nil {
		return nil, m.translate(err, "claim")
	}
	m.observeTransition(models.StatusPending, models.StatusInProgress)
	m.emit(events.KindVerificationRequest, id.String(), string(models.StatusInProgress))
	return claimed, nil
}

// Complete applies an analyzer outcome: the request goes to completed and
// the parent document takes the status the outcome determines.
func (m *Machine) Complete(ctx context.Context, id domain.RequestID, outcome models.Outcome) (*models.VerificationRequest, error) {
	docStatus := models.DocumentStatusFor(outcome, m.threshold)
	metadata := map[string]any{
		"determination": string(outcome.Determination),
		"confidence":    outcome.Confidence,
		"explanation":   outcome.Explanation,
	}
	if len(outcome.ExtractedFields) > 0 {
		metadata["extracted_fields"] = outcome.ExtractedFields
	}

	var (
		finalized *models.VerificationRequest
		docID     domain.DocumentID
	)
	err := m.runner.RunInTx(ctx, func(ctx context.Context) error {
		current, err := m.requests.Get(ctx, id)
		if err != nil {
			return err
		}
		if !models.CanTransition(current.Status, models.StatusCompleted) {
			return sentinel.ErrInvalidState
		}
		docID = current.DocumentID
		// Document first: a reader observing the completed request must
		// already see the derived document status.
		if err := m.documents.UpdateStatus(ctx, current.DocumentID, docStatus, m.now()); err != nil {
			return err
		}
		finalized, err = m.requests.Finalize(ctx, id, models.StatusCompleted, m.now(), &docStatus, metadata)
		return err
	})
	if err != nil {
		return nil, m.translate(err, "complete")
	}
	m.observeTransition(models.StatusInProgress, models.StatusCompleted)
	m.emit(events.KindDocument, docID.String(), string(docStatus))
	m.emit(events.KindVerificationRequest, id.String(), string(models.StatusCompleted))
	return finalized, nil
}

// Fail moves an in_progress request to failed, capturing the cause in
// metadata, and reverts the parent document.
func (m *Machine) Fail(ctx context.Context, id domain.RequestID, cause string) (*models.VerificationRequest, error) {
	metadata := map[string]any{"error": cause}

	var (
		finalized *models.VerificationRequest
		docID     domain.DocumentID
		docStatus docmodels.Status
	)
	err := m.runner.RunInTx(ctx, func(ctx context.Context) error {
		current, err := m.requests.Get(ctx, id)
		if err != nil {
			return err
		}
		if !models.CanTransition(current.Status, models.StatusFailed) {
			return sentinel.ErrInvalidState
		}
		docID = current.DocumentID
		docStatus, err = m.revertedStatus(ctx, current)
		if err != nil {
			return err
		}
		if err := m.documents.UpdateStatus(ctx, current.DocumentID, docStatus, m.now()); err != nil {
			return err
		}
		finalized, err = m.requests.Finalize(ctx, id, models.StatusFailed, m.now(), nil, metadata)
		return err
	})
	if err != nil {
		return nil, m.translate(err, "fail")
	}
	m.observeTransition(models.StatusInProgress, models.StatusFailed)
	m.emit(events.KindDocument, docID.String(), string(docStatus))
	m.emit(events.KindVerificationRequest, id.String(), string(models.StatusFailed))
	return finalized, nil
}

// Cancel moves a pending or in_progress request to cancelled and reverts
// the parent document. Cancelling an already-terminal request is a no-op
// returning the existing state.
func (m *Machine) Cancel(ctx context.Context, id domain.RequestID) (*models.VerificationRequest, error) {
	var (
		cancelled *models.VerificationRequest
		from      models.Status
		docID     domain.DocumentID
		docStatus docmodels.Status
		noop      bool
	)
	err := m.runner.RunInTx(ctx, func(ctx context.Context) error {
		current, err := m.requests.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			cancelled = current
			noop = true
			return nil
		}
		from = current.Status
		docID = current.DocumentID
		docStatus, err = m.revertedStatus(ctx, current)
		if err != nil {
			return err
		}
		if err := m.documents.UpdateStatus(ctx, current.DocumentID, docStatus, m.now()); err != nil {
			return err
		}
		cancelled, err = m.requests.Cancel(ctx, id, m.now())
		return err
	})
	if err != nil {
		return nil, m.translate(err, "cancel")
	}
	if noop {
		return cancelled, nil
	}
	m.observeTransition(from, models.StatusCancelled)
	m.emit(events.KindDocument, docID.String(), string(docStatus))
	m.emit(events.KindVerificationRequest, id.String(), string(models.StatusCancelled))
	return cancelled, nil
}

// revertedStatus computes the document status after req leaves the open
// set: the latest completed request's result if one exists, pending if
// some other request is still outstanding, uploaded otherwise.
func (m *Machine) revertedStatus(ctx context.Context, req *models.VerificationRequest) (docmodels.Status, error) {
	siblings, err := m.requests.ListByDocument(ctx, req.DocumentID)
	if err != nil {
		return "", err
	}
	var latest *models.VerificationRequest
	otherOpen := false
	for _, sibling := range siblings {
		if sibling.ID == req.ID {
			continue
		}
		if !sibling.Status.IsTerminal() {
			otherOpen = true
		}
		if sibling.Status == models.StatusCompleted && sibling.ResultStatus != nil {
			if latest == nil || completedAfter(sibling, latest) {
				latest = sibling
			}
		}
	}
	switch {
	case latest != nil:
		return *latest.ResultStatus, nil
	case otherOpen:
		return docmodels.StatusPending, nil
	default:
		return docmodels.StatusUploaded, nil
	}
}

func completedAfter(a, b *models.VerificationRequest) bool {
	if a.CompletedAt == nil || b.CompletedAt == nil {
		return false
	}
	return a.CompletedAt.After(*b.CompletedAt)
}

func (m *Machine) translate(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return derrors.New(derrors.CodeNotFound, "verification request not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return derrors.Newf(derrors.CodeInvalidTransition, "request cannot %s from its current state", op)
	default:
		return derrors.Wrap(err, derrors.CodeInternal, "failed to apply transition")
	}
}

func (m *Machine) observeTransition(from, to models.Status) {
	if m.metrics != nil {
		m.metrics.ObserveTransition(string(from), string(to))
	}
}

func (m *Machine) emit(kind events.EntityKind, id, state string) {
	if m.emitter == nil {
		return
	}
	m.emitter.Emit(events.Event{
		EntityKind: kind,
		EntityID:   id,
		NewState:   state,
		At:         m.now(),
	})
}
