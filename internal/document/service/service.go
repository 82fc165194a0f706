// Package service owns document CRUD. Status is never written here beyond
// the initial uploaded state; derived trust statuses belong to the state
// machine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/access"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/blob"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/store"
	vmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
	derrors "github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain-errors"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/platform/sentinel"
)

// RequestStore is the slice of the verification store the document service
// needs: listing a document's requests and cascading deletion.
type RequestStore interface {
	ListByDocument(ctx context.Context, docID domain.DocumentID) ([]*vmodels.VerificationRequest, error)
	OpenForDocument(ctx context.Context, docID domain.DocumentID) (*vmodels.VerificationRequest, error)
	DeleteByDocument(ctx context.Context, docID domain.DocumentID, purgeCompleted bool) error
}

type Service struct {
	documents store.Store
	requests  RequestStore
	authz     *access.Service
	blobs     blob.Store
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides time lookup for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBlobStore enables inline uploads: content handed to Upload is placed
// in the blob store and the resulting reference recorded. Without one,
// callers must supply a reference to an already-stored file.
func WithBlobStore(blobs blob.Store) Option {
	return func(s *Service) { s.blobs = blobs }
}

func New(documents store.Store, requests RequestStore, authz *access.Service, opts ...Option) (*Service, error) {
	if documents == nil || requests == nil || authz == nil {
		return nil, fmt.Errorf("document store, request store, and access service are required")
	}

	svc := &Service{
		documents: documents,
		requests:  requests,
		authz:     authz,
		logger:    slog.Default(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// UploadInput is the metadata recorded for an artifact already placed in
// the blob store.
type UploadInput struct {
	Name          string
	Kind          models.Kind
	Issuer        string
	InstitutionID *domain.UserID
	FileRef       string
	// Content is the raw file, stored through the blob store when no
	// FileRef is given. Exactly one of Content and FileRef is expected.
	Content    []byte
	FileSize   int64
	FileType   string
	ExpiryDate *time.Time
	Privacy    models.Privacy
	Metadata   map[string]any
}

// Upload records document metadata for the principal. The file itself
// must already live in the blob store; only its reference is kept.
func (s *Service) Upload(ctx context.Context, principal domain.Principal, input UploadInput) (*models.Document, error) {
	if principal.IsAnonymous() {
		return nil, derrors.New(derrors.CodeUnauthorized, "authentication required")
	}
	if input.Name == "" {
		return nil, derrors.New(derrors.CodeValidation, "document name is required")
	}
	if input.FileRef == "" && len(input.Content) > 0 && s.blobs != nil {
		ref, err := s.blobs.Put(ctx, input.Content)
		if err != nil {
			return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to store file content")
		}
		input.FileRef = ref
		if input.FileSize == 0 {
			input.FileSize = int64(len(input.Content))
		}
	}
	if input.FileRef == "" {
		return nil, derrors.New(derrors.CodeValidation, "file reference is required")
	}
	if _, err := models.ParseKind(string(input.Kind)); err != nil {
		return nil, derrors.Wrap(err, derrors.CodeValidation, "invalid document kind")
	}
	privacy := input.Privacy
	if privacy == "" {
		privacy = models.PrivacyPrivate
	}
	if _, err := models.ParsePrivacy(string(privacy)); err != nil {
		return nil, derrors.Wrap(err, derrors.CodeValidation, "invalid privacy setting")
	}

	now := s.now()
	doc := &models.Document{
		ID:            domain.NewDocumentID(),
		UserID:        principal.UserID,
		Name:          input.Name,
		Kind:          input.Kind,
		Issuer:        input.Issuer,
		InstitutionID: input.InstitutionID,
		FileRef:       input.FileRef,
		FileSize:      input.FileSize,
		FileType:      input.FileType,
		UploadedAt:    now,
		ExpiryDate:    input.ExpiryDate,
		Status:        models.StatusUploaded,
		Privacy:       privacy,
		Metadata:      input.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to create document")
	}
	return s.withEffectiveStatus(doc), nil
}

// Get returns a document the principal may read. Private documents read as
// not found for strangers.
func (s *Service) Get(ctx context.Context, principal domain.Principal, id domain.DocumentID) (*models.Document, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.AuthorizeRead(principal, doc); err != nil {
		return nil, err
	}
	return s.withEffectiveStatus(doc), nil
}

// List returns the principal's own documents, or every document when the
// principal holds read-all.
func (s *Service) List(ctx context.Context, principal domain.Principal) ([]*models.Document, error) {
	if principal.IsAnonymous() {
		return nil, derrors.New(derrors.CodeUnauthorized, "authentication required")
	}
	var (
		docs []*models.Document
		err  error
	)
	if principal.Capabilities().Has(domain.CapReadAll) {
		docs, err = s.documents.ListAll(ctx)
	} else {
		docs, err = s.documents.ListByUser(ctx, principal.UserID)
	}
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to list documents")
	}
	out := make([]*models.Document, len(docs))
	for i, doc := range docs {
		out[i] = s.withEffectiveStatus(doc)
	}
	return out, nil
}

// Portfolio returns a user's public documents for the unauthenticated
// read-only view.
func (s *Service) Portfolio(ctx context.Context, owner domain.UserID) ([]*models.Document, error) {
	docs, err := s.documents.ListByUser(ctx, owner)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to list documents")
	}
	var out []*models.Document
	for _, doc := range docs {
		if doc.Privacy == models.PrivacyPublic {
			out = append(out, s.withEffectiveStatus(doc))
		}
	}
	return out, nil
}

// ListRequests returns a document's verification requests for a principal
// who may read the document.
func (s *Service) ListRequests(ctx context.Context, principal domain.Principal, id domain.DocumentID) ([]*vmodels.VerificationRequest, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.AuthorizeRead(principal, doc); err != nil {
		return nil, err
	}
	requests, err := s.requests.ListByDocument(ctx, id)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to list verification requests")
	}
	return requests, nil
}

// SetPrivacy updates visibility and the shared designee list.
func (s *Service) SetPrivacy(ctx context.Context, principal domain.Principal, id domain.DocumentID, privacy models.Privacy, sharedWith []domain.UserID) (*models.Document, error) {
	if _, err := models.ParsePrivacy(string(privacy)); err != nil {
		return nil, derrors.Wrap(err, derrors.CodeValidation, "invalid privacy setting")
	}
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.AuthorizeWrite(principal, doc); err != nil {
		return nil, err
	}
	if err := s.documents.UpdatePrivacy(ctx, id, privacy, sharedWith, s.now()); err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to update privacy")
	}
	return s.Get(ctx, principal, id)
}

// Delete removes a document and cascades to its verification requests.
// Completed requests are retained for audit unless purgeCompleted is set.
// A document with an open request cannot be deleted; cancel it first.
func (s *Service) Delete(ctx context.Context, principal domain.Principal, id domain.DocumentID, purgeCompleted bool) error {
	doc, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authz.AuthorizeWrite(principal, doc); err != nil {
		return err
	}
	open, err := s.requests.OpenForDocument(ctx, id)
	if err != nil {
		return derrors.Wrap(err, derrors.CodeInternal, "failed to check outstanding requests")
	}
	if open != nil {
		return derrors.New(derrors.CodeRequestInFlight, "document has an outstanding verification request")
	}
	if err := s.requests.DeleteByDocument(ctx, id, purgeCompleted); err != nil {
		return derrors.Wrap(err, derrors.CodeInternal, "failed to delete verification requests")
	}
	if err := s.documents.Delete(ctx, id); err != nil {
		return derrors.Wrap(err, derrors.CodeInternal, "failed to delete document")
	}
	return nil
}

func (s *Service) load(ctx context.Context, id domain.DocumentID) (*models.Document, error) {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, derrors.New(derrors.CodeNotFound, "document not found")
		}
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to load document")
	}
	return doc, nil
}

// withEffectiveStatus applies read-time expiry derivation without writing
// anything back.
func (s *Service) withEffectiveStatus(doc *models.Document) *models.Document {
	cp := *doc
	cp.Status = doc.EffectiveStatus(s.now())
	return &cp
}
