package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/access"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/blob"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/models"
	docstore "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/store"
	vmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/models"
	vstore "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/store"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
	derrors "github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite

	ctx       context.Context
	documents *docstore.InMemoryStore
	requests  *vstore.InMemoryStore
	blobs     *blob.InMemoryStore
	service   *Service
	now       time.Time

	owner domain.Principal
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.documents = docstore.NewMemory()
	s.requests = vstore.NewMemory()
	s.now = time.Date(2026, 4, 15, 9, 0, 0, 0, time.UTC)

	authz, err := access.New(access.NewMemoryDirectory())
	s.Require().NoError(err)

	s.blobs = blob.NewMemory()
	svc, err := New(s.documents, s.requests, authz,
		WithClock(func() time.Time { return s.now }),
		WithBlobStore(s.blobs))
	s.Require().NoError(err)
	s.service = svc

	s.owner = domain.Principal{UserID: domain.NewUserID(), Role: domain.RoleJobSeeker}
}

func (s *ServiceSuite) upload(input UploadInput) *models.Document {
	doc, err := s.service.Upload(s.ctx, s.owner, input)
	s.Require().NoError(err)
	return doc
}

func validInput() UploadInput {
	return UploadInput{
		Name:     "MSc Data Science",
		Kind:     models.KindDegree,
		Issuer:   "TU Delft",
		FileRef:  "blob://msc",
		FileSize: 240_000,
		FileType: "application/pdf",
	}
}

func (s *ServiceSuite) TestUpload() {
	doc := s.upload(validInput())

	s.Equal(models.StatusUploaded, doc.Status)
	s.Equal(models.PrivacyPrivate, doc.Privacy)
	s.Equal(s.owner.UserID, doc.UserID)
	s.Equal(s.now, doc.UploadedAt)
}

func (s *ServiceSuite) TestUploadInlineContent() {
	input := validInput()
	input.FileRef = ""
	input.FileSize = 0
	input.Content = []byte("%PDF-1.7 fake degree")

	doc := s.upload(input)
	s.NotEmpty(doc.FileRef)
	s.Equal(int64(len(input.Content)), doc.FileSize)

	stored, err := s.blobs.Get(s.ctx, doc.FileRef)
	s.Require().NoError(err)
	s.Equal(input.Content, stored)
}

func (s *ServiceSuite) TestUploadValidation() {
	s.Run("anonymous", func() {
		_, err := s.service.Upload(s.ctx, domain.Anonymous(), validInput())
		s.True(derrors.Is(err, derrors.CodeUnauthorized))
	})

	s.Run("missing name", func() {
		input := validInput()
		input.Name = ""
		_, err := s.service.Upload(s.ctx, s.owner, input)
		s.True(derrors.Is(err, derrors.CodeValidation))
	})

	s.Run("missing file ref", func() {
		input := validInput()
		input.FileRef = ""
		_, err := s.service.Upload(s.ctx, s.owner, input)
		s.True(derrors.Is(err, derrors.CodeValidation))
	})

	s.Run("unknown kind", func() {
		input := validInput()
		input.Kind = "diploma"
		_, err := s.service.Upload(s.ctx, s.owner, input)
		s.True(derrors.Is(err, derrors.CodeValidation))
	})

	s.Run("unknown privacy", func() {
		input := validInput()
		input.Privacy = "hidden"
		_, err := s.service.Upload(s.ctx, s.owner, input)
		s.True(derrors.Is(err, derrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestGetDerivesExpiry() {
	input := validInput()
	expiry := s.now.Add(-time.Hour)
	input.ExpiryDate = &expiry
	doc := s.upload(input)

	got, err := s.service.Get(s.ctx, s.owner, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, got.Status)

	// The stored record keeps its persisted status.
	stored, err := s.documents.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusUploaded, stored.Status)
}

func (s *ServiceSuite) TestGetPrivateHiddenFromStranger() {
	doc := s.upload(validInput())

	stranger := domain.Principal{UserID: domain.NewUserID(), Role: domain.RoleEmployer}
	_, err := s.service.Get(s.ctx, stranger, doc.ID)
	s.Require().Error(err)
	s.True(derrors.Is(err, derrors.CodeNotFound))
}

func (s *ServiceSuite) TestListScopedToOwner() {
	s.upload(validInput())
	s.upload(validInput())

	other := domain.Principal{UserID: domain.NewUserID(), Role: domain.RoleJobSeeker}
	otherInput := validInput()
	_, err := s.service.Upload(s.ctx, other, otherInput)
	s.Require().NoError(err)

	docs, err := s.service.List(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Len(docs, 2)

	admin := domain.Principal{UserID: domain.NewUserID(), Role: domain.RoleAdmin}
	docs, err = s.service.List(s.ctx, admin)
	s.Require().NoError(err)
	s.Len(docs, 3)
}

func (s *ServiceSuite) TestPortfolioOnlyPublic() {
	s.upload(validInput())

	public := validInput()
	public.Privacy = models.PrivacyPublic
	pubDoc := s.upload(public)

	docs, err := s.service.Portfolio(s.ctx, s.owner.UserID)
	s.Require().NoError(err)
	s.Require().Len(docs, 1)
	s.Equal(pubDoc.ID, docs[0].ID)
}

func (s *ServiceSuite) TestSetPrivacy() {
	doc := s.upload(validInput())
	designee := domain.NewUserID()

	updated, err := s.service.SetPrivacy(s.ctx, s.owner, doc.ID, models.PrivacyShared, []domain.UserID{designee})
	s.Require().NoError(err)
	s.Equal(models.PrivacyShared, updated.Privacy)
	s.True(updated.SharedWithUser(designee))

	// The designee can now read it.
	reader := domain.Principal{UserID: designee, Role: domain.RoleEmployer}
	_, err = s.service.Get(s.ctx, reader, doc.ID)
	s.NoError(err)
}

func (s *ServiceSuite) TestSetPrivacyForbiddenForStranger() {
	doc := s.upload(validInput())

	stranger := domain.Principal{UserID: domain.NewUserID(), Role: domain.RoleEmployer}
	_, err := s.service.SetPrivacy(s.ctx, stranger, doc.ID, models.PrivacyPublic, nil)
	s.Require().Error(err)
	s.True(derrors.Is(err, derrors.CodeForbidden))
}

func (s *ServiceSuite) TestDeleteCascades() {
	doc := s.upload(validInput())

	completed := &vmodels.VerificationRequest{
		ID:          domain.NewRequestID(),
		DocumentID:  doc.ID,
		UserID:      s.owner.UserID,
		Status:      vmodels.StatusPending,
		RequestedAt: s.now,
	}
	s.Require().NoError(s.requests.Create(s.ctx, completed))
	_, err := s.requests.Claim(s.ctx, completed.ID, s.now)
	s.Require().NoError(err)
	verified := models.StatusVerified
	_, err = s.requests.Finalize(s.ctx, completed.ID, vmodels.StatusCompleted, s.now, &verified, nil)
	s.Require().NoError(err)

	s.Require().NoError(s.service.Delete(s.ctx, s.owner, doc.ID, false))

	_, err = s.service.Get(s.ctx, s.owner, doc.ID)
	s.True(derrors.Is(err, derrors.CodeNotFound))

	// Completed request survives for audit when purge is off.
	_, err = s.requests.Get(s.ctx, completed.ID)
	s.NoError(err)
}

func (s *ServiceSuite) TestDeleteRefusedWhileRequestOpen() {
	doc := s.upload(validInput())

	open := &vmodels.VerificationRequest{
		ID:          domain.NewRequestID(),
		DocumentID:  doc.ID,
		UserID:      s.owner.UserID,
		Status:      vmodels.StatusPending,
		RequestedAt: s.now,
	}
	s.Require().NoError(s.requests.Create(s.ctx, open))

	err := s.service.Delete(s.ctx, s.owner, doc.ID, false)
	s.Require().Error(err)
	s.True(derrors.Is(err, derrors.CodeRequestInFlight))
}

func (s *ServiceSuite) TestListRequestsRequiresReadAccess() {
	doc := s.upload(validInput())

	stranger := domain.Principal{UserID: domain.NewUserID(), Role: domain.RoleEmployer}
	_, err := s.service.ListRequests(s.ctx, stranger, doc.ID)
	s.Require().Error(err)
	s.True(derrors.Is(err, derrors.CodeNotFound))

	requests, err := s.service.ListRequests(s.ctx, s.owner, doc.ID)
	s.Require().NoError(err)
	s.Empty(requests)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
