package store

import (
	"context"
	"time"

	docmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
)

// Store persists verification requests. The conditional transition methods
// (Claim, Finalize, Cancel) are the serialization points of the state
// machine: they succeed for exactly one caller per edge and return
// sentinel.ErrInvalidState for everyone else.
type Store interface {
	Create(ctx context.Context, req *models.VerificationRequest) error
	Get(ctx context.Context, id domain.RequestID) (*models.VerificationRequest, error)
	// ListByDocument returns a document's requests, highest priority
	// first, then most recent.
	ListByDocument(ctx context.Context, docID domain.DocumentID) ([]*models.VerificationRequest, error)
	ListAll(ctx context.Context) ([]*models.VerificationRequest, error)
	// OpenForDocument returns the document's non-terminal request, or nil
	// when none is outstanding.
	OpenForDocument(ctx context.Context, docID domain.DocumentID) (*models.VerificationRequest, error)
	// Claim moves a pending request to in_progress and stamps started_at.
	Claim(ctx context.Context, id domain.RequestID, at time.Time) (*models.VerificationRequest, error)
	// Finalize moves an in_progress request to the given terminal state,
	// stamping completed_at, recording the document status it produced
	// and merging metadata.
	Finalize(ctx context.Context, id domain.RequestID, to models.Status, at time.Time, resultStatus *docmodels.Status, metadata map[string]any) (*models.VerificationRequest, error)
	// Cancel moves a pending or in_progress request to cancelled.
	Cancel(ctx context.Context, id domain.RequestID, at time.Time) (*models.VerificationRequest, error)
	// DeleteByDocument removes a document's requests. Completed requests
	// are retained for audit unless purgeCompleted is set.
	DeleteByDocument(ctx context.Context, docID domain.DocumentID, purgeCompleted bool) error
}
