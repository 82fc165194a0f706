package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	docmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/models"
	docstore "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/store"
	entmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/entitlement/models"
	entservice "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/entitlement/service"
	entstore "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/entitlement/store"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/analyzer"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/statemachine"
	vstore "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/store"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
	derrors "github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain-errors"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/platform/tx"
)

// stubAnalyzer returns scripted results in order, then repeats the last.
type stubAnalyzer struct {
	mu      sync.Mutex
	results []stubResult
	calls   int
}

type stubResult struct {
	outcome models.Outcome
	err     error
}

func (a *stubAnalyzer) Analyze(_ context.Context, _ string) (models.Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.calls
	if i >= len(a.results) {
		i = len(a.results) - 1
	}
	a.calls++
	r := a.results[i]
	return r.outcome, r.err
}

func (a *stubAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func positive(confidence float64) stubResult {
	return stubResult{outcome: models.Outcome{
		Determination: models.DeterminationPositive,
		Confidence:    confidence,
	}}
}

type DispatcherSuite struct {
	suite.Suite

	ctx       context.Context
	documents *docstore.InMemoryStore
	requests  *vstore.InMemoryStore
	machine   *statemachine.Machine
	gate      *entservice.Service

	owner domain.Principal
	doc   *docmodels.Document
}

func (s *DispatcherSuite) SetupTest() {
	s.ctx = context.Background()
	s.documents = docstore.NewMemory()
	s.requests = vstore.NewMemory()

	machine, err := statemachine.New(s.requests, s.documents, &tx.MutexRunner{}, 0.80)
	s.Require().NoError(err)
	s.machine = machine

	plan := entmodels.FreePlan(100)
	gate, err := entservice.New(entstore.NewMemory(plan), plan)
	s.Require().NoError(err)
	s.gate = gate

	ownerID := domain.NewUserID()
	s.owner = domain.Principal{UserID: ownerID, Role: domain.RoleJobSeeker}
	s.doc = &docmodels.Document{
		ID:      domain.NewDocumentID(),
		UserID:  ownerID,
		Name:    "PMP Certificate",
		Kind:    docmodels.KindCertificate,
		FileRef: "blob://pmp",
		Status:  docmodels.StatusUploaded,
		Privacy: docmodels.PrivacyPrivate,
	}
	s.Require().NoError(s.documents.Create(s.ctx, s.doc))
}

func (s *DispatcherSuite) newService(client analyzer.Client, opts ...Option) *Service {
	opts = append([]Option{WithRetryBackoff(time.Millisecond)}, opts...)
	svc, err := New(s.documents, s.machine, s.gate, client, opts...)
	s.Require().NoError(err)
	return svc
}

func (s *DispatcherSuite) TestSubmitSyncCompletes() {
	svc := s.newService(&stubAnalyzer{results: []stubResult{positive(0.92)}})

	req, err := svc.Submit(s.ctx, s.owner, s.doc.ID, models.KindAIAnalysis)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, req.Status)

	doc, err := s.documents.Get(s.ctx, s.doc.ID)
	s.Require().NoError(err)
	s.Equal(docmodels.StatusVerified, doc.Status)
}

func (s *DispatcherSuite) TestSubmitRejectsForeignDocument() {
	svc := s.newService(&stubAnalyzer{results: []stubResult{positive(0.92)}})
	stranger := domain.Principal{UserID: domain.NewUserID(), Role: domain.RoleJobSeeker}

	_, err := svc.Submit(s.ctx, stranger, s.doc.ID, models.KindAIAnalysis)
	s.Require().Error(err)
	s.True(derrors.Is(err, derrors.CodeForbidden))
}

func (s *DispatcherSuite) TestSubmitUnknownDocument() {
	svc := s.newService(&stubAnalyzer{results: []stubResult{positive(0.92)}})

	_, err := svc.Submit(s.ctx, s.owner, domain.NewDocumentID(), models.KindAIAnalysis)
	s.Require().Error(err)
	s.True(derrors.Is(err, derrors.CodeNotFound))
}

func (s *DispatcherSuite) TestSubmitRejectsSecondInFlight() {
	// Async so the first request stays open while the second submits.
	blocker := make(chan struct{})
	client := &blockingAnalyzer{release: blocker}
	svc := s.newService(client, WithAsync())

	first, err := svc.Submit(s.ctx, s.owner, s.doc.ID, models.KindAIAnalysis)
	s.Require().NoError(err)
	s.Equal(models.StatusInProgress, first.Status)

	_, err = svc.Submit(s.ctx, s.owner, s.doc.ID, models.KindAIAnalysis)
	s.Require().Error(err)
	s.True(derrors.Is(err, derrors.CodeRequestInFlight))

	close(blocker)
	s.Require().NoError(svc.Close())
}

func (s *DispatcherSuite) TestTransientErrorRetriesOnce() {
	client := &stubAnalyzer{results: []stubResult{
		{err: &analyzer.Error{Transient: true, Status: 503, Message: "unavailable"}},
		positive(0.92),
	}}
	svc := s.newService(client)

	req, err := svc.Submit(s.ctx, s.owner, s.doc.ID, models.KindAIAnalysis)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, req.Status)
	s.Equal(2, client.callCount())
}

func (s *DispatcherSuite) TestTransientErrorTwiceFailsRequest() {
	client := &stubAnalyzer{results: []stubResult{
		{err: &analyzer.Error{Transient: true, Status: 503, Message: "unavailable"}},
	}}
	svc := s.newService(client)

	req, err := svc.Submit(s.ctx, s.owner, s.doc.ID, models.KindAIAnalysis)
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, req.Status)
	s.Equal(2, client.callCount())

	// The document reverted; the user may submit again.
	doc, err := s.documents.Get(s.ctx, s.doc.ID)
	s.Require().NoError(err)
	s.Equal(docmodels.StatusUploaded, doc.Status)
}

func (s *DispatcherSuite) TestPermanentErrorFailsWithoutRetry() {
	client := &stubAnalyzer{results: []stubResult{
		{err: &analyzer.Error{Transient: false, Status: 422, Message: "unreadable file"}},
	}}
	svc := s.newService(client)

	req, err := svc.Submit(s.ctx, s.owner, s.doc.ID, models.KindAIAnalysis)
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, req.Status)
	s.Equal(1, client.callCount())
}

func (s *DispatcherSuite) TestCancelDropsLateResult() {
	blocker := make(chan struct{})
	client := &blockingAnalyzer{release: blocker}
	svc := s.newService(client, WithAsync())

	req, err := svc.Submit(s.ctx, s.owner, s.doc.ID, models.KindAIAnalysis)
	s.Require().NoError(err)

	cancelled, err := svc.Cancel(s.ctx, s.owner, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCancelled, cancelled.Status)

	// Let the analyzer finish; its result must not resurrect the request.
	close(blocker)
	s.Require().NoError(svc.Close())

	final, err := s.machine.Get(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCancelled, final.Status)

	doc, err := s.documents.Get(s.ctx, s.doc.ID)
	s.Require().NoError(err)
	s.Equal(docmodels.StatusUploaded, doc.Status)
}

func (s *DispatcherSuite) TestCancelForeignRequestForbidden() {
	svc := s.newService(&stubAnalyzer{results: []stubResult{positive(0.92)}})

	req, err := svc.Submit(s.ctx, s.owner, s.doc.ID, models.KindAIAnalysis)
	s.Require().NoError(err)

	stranger := domain.Principal{UserID: domain.NewUserID(), Role: domain.RoleJobSeeker}
	_, err = svc.Cancel(s.ctx, stranger, req.ID)
	s.Require().Error(err)
	s.True(derrors.Is(err, derrors.CodeForbidden))
}

func (s *DispatcherSuite) TestHandleAnalyzerResultDropsLate() {
	svc := s.newService(&stubAnalyzer{results: []stubResult{positive(0.92)}})

	req, err := svc.Submit(s.ctx, s.owner, s.doc.ID, models.KindAIAnalysis)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, req.Status)

	// A duplicate callback for a settled request is acknowledged, not applied.
	err = svc.HandleAnalyzerResult(s.ctx, req.ID, models.Outcome{
		Determination: models.DeterminationNegative,
		Confidence:    0.99,
	})
	s.Require().NoError(err)

	doc, err := s.documents.Get(s.ctx, s.doc.ID)
	s.Require().NoError(err)
	s.Equal(docmodels.StatusVerified, doc.Status)
}

func (s *DispatcherSuite) TestHandleAnalyzerResultRejectsMalformedOutcome() {
	blocker := make(chan struct{})
	client := &blockingAnalyzer{release: blocker}
	svc := s.newService(client, WithAsync())

	req, err := svc.Submit(s.ctx, s.owner, s.doc.ID, models.KindAIAnalysis)
	s.Require().NoError(err)
	s.Equal(models.StatusInProgress, req.Status)

	// Neither an out-of-enum determination nor an out-of-range confidence
	// may reach a transition.
	err = svc.HandleAnalyzerResult(s.ctx, req.ID, models.Outcome{
		Determination: "alien-verdict",
		Confidence:    7.5,
	})
	s.Require().Error(err)
	s.True(derrors.Is(err, derrors.CodeValidation))

	current, err := s.machine.Get(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusInProgress, current.Status)

	close(blocker)
	s.Require().NoError(svc.Close())
}

func (s *DispatcherSuite) TestDuplicateSubmitDoesNotConsumeQuota() {
	plan := entmodels.FreePlan(2)
	gate, err := entservice.New(entstore.NewMemory(plan), plan)
	s.Require().NoError(err)
	s.gate = gate

	blocker := make(chan struct{})
	client := &blockingAnalyzer{release: blocker}
	svc := s.newService(client, WithAsync())

	_, err = svc.Submit(s.ctx, s.owner, s.doc.ID, models.KindAIAnalysis)
	s.Require().NoError(err)

	_, err = svc.Submit(s.ctx, s.owner, s.doc.ID, models.KindAIAnalysis)
	s.Require().Error(err)
	s.True(derrors.Is(err, derrors.CodeRequestInFlight))

	// The rejected duplicate must not have burned the second slot.
	remaining, bounded, err := s.gate.Remaining(s.ctx, s.owner.UserID)
	s.Require().NoError(err)
	s.True(bounded)
	s.Equal(1, remaining)

	close(blocker)
	s.Require().NoError(svc.Close())
}

func (s *DispatcherSuite) TestQuotaDenied() {
	plan := entmodels.FreePlan(1)
	gate, err := entservice.New(entstore.NewMemory(plan), plan)
	s.Require().NoError(err)
	s.gate = gate

	client := &stubAnalyzer{results: []stubResult{positive(0.92)}}
	svc := s.newService(client)

	_, err = svc.Submit(s.ctx, s.owner, s.doc.ID, models.KindAIAnalysis)
	s.Require().NoError(err)

	_, err = svc.Submit(s.ctx, s.owner, s.doc.ID, models.KindAIAnalysis)
	s.Require().Error(err)
	s.True(derrors.Is(err, derrors.CodeQuotaExceeded))
}

// blockingAnalyzer parks until released, then reports a confident positive.
type blockingAnalyzer struct {
	release <-chan struct{}
}

func (a *blockingAnalyzer) Analyze(ctx context.Context, _ string) (models.Outcome, error) {
	select {
	case <-a.release:
	case <-ctx.Done():
	}
	return models.Outcome{Determination: models.DeterminationPositive, Confidence: 0.95}, nil
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}
