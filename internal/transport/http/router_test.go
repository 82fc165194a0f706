package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/access"
	docservice "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/service"
	docstore "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/store"
	entmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/entitlement/models"
	entservice "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/entitlement/service"
	entstore "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/entitlement/store"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/identity"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/platform/metrics"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/reporting"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/dispatcher"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/statemachine"
	vstore "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/store"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/platform/tx"
)

const callbackSeed = "test-seed"

// scriptedAnalyzer serves one fixed outcome.
type scriptedAnalyzer struct {
	outcome models.Outcome
	err     error
}

func (a *scriptedAnalyzer) Analyze(context.Context, string) (models.Outcome, error) {
	return a.outcome, a.err
}

type RouterSuite struct {
	suite.Suite

	server    *httptest.Server
	validator *identity.Validator
	directory *access.InMemoryDirectory
	analyzer  *scriptedAnalyzer

	user  domain.UserID
	token string
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	documents := docstore.NewMemory()
	requests := vstore.NewMemory()

	machine, err := statemachine.New(requests, documents, &tx.MutexRunner{}, 0.80,
		statemachine.WithLogger(logger))
	s.Require().NoError(err)

	plan := entmodels.FreePlan(3)
	gate, err := entservice.New(entstore.NewMemory(plan), plan, entservice.WithLogger(logger))
	s.Require().NoError(err)

	s.directory = access.NewMemoryDirectory()
	authz, err := access.New(s.directory, access.WithLogger(logger))
	s.Require().NoError(err)

	s.analyzer = &scriptedAnalyzer{outcome: models.Outcome{
		Determination: models.DeterminationPositive,
		Confidence:    0.93,
	}}
	dispatch, err := dispatcher.New(documents, machine, gate, s.analyzer,
		dispatcher.WithLogger(logger))
	s.Require().NoError(err)

	docs, err := docservice.New(documents, requests, authz, docservice.WithLogger(logger))
	s.Require().NoError(err)

	reporter, err := reporting.New(requests, reporting.WithLogger(logger))
	s.Require().NoError(err)

	s.validator = identity.New("router-test-key", identity.WithLogger(logger))
	m := metrics.New(prometheus.NewRegistry())

	handler := New(docs, dispatch, reporter, authz, s.validator, m, logger, callbackSeed)
	s.server = httptest.NewServer(NewRouter(handler))

	s.user = domain.NewUserID()
	s.token = s.issueToken(s.user, domain.RoleJobSeeker)
}

func (s *RouterSuite) TearDownTest() {
	s.server.Close()
}

func (s *RouterSuite) issueToken(userID domain.UserID, role domain.Role) string {
	token, err := s.validator.IssueToken(userID, role, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *RouterSuite) do(method, path, token string, body any) *http.Response {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *RouterSuite) decode(resp *http.Response, out any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
}

func (s *RouterSuite) uploadDocument(token string) documentResponse {
	resp := s.do(http.MethodPost, "/documents", token, uploadDocumentRequest{
		Name:     "AWS Solutions Architect",
		Kind:     "certificate",
		Issuer:   "AWS",
		FileRef:  "blob://aws-cert",
		FileSize: 12345,
		FileType: "application/pdf",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var doc documentResponse
	s.decode(resp, &doc)
	return doc
}

func (s *RouterSuite) TestHealth() {
	resp, err := http.Get(s.server.URL + "/healthz")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *RouterSuite) TestUploadRequiresAuth() {
	resp := s.do(http.MethodPost, "/documents", "", uploadDocumentRequest{Name: "x"})
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *RouterSuite) TestUploadAndGet() {
	doc := s.uploadDocument(s.token)
	s.Equal("uploaded", doc.Status)
	s.Equal("private", doc.Privacy)

	resp := s.do(http.MethodGet, "/documents/"+doc.ID, s.token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var got documentResponse
	s.decode(resp, &got)
	s.Equal(doc.ID, got.ID)
}

func (s *RouterSuite) TestPrivateDocumentHiddenFromStranger() {
	doc := s.uploadDocument(s.token)

	stranger := s.issueToken(domain.NewUserID(), domain.RoleEmployer)
	resp := s.do(http.MethodGet, "/documents/"+doc.ID, stranger, nil)
	defer resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)

	// Anonymous readers see the same thing.
	resp = s.do(http.MethodGet, "/documents/"+doc.ID, "", nil)
	defer resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *RouterSuite) TestPortfolioListsOnlyPublic() {
	s.uploadDocument(s.token)

	resp := s.do(http.MethodPost, "/documents", s.token, uploadDocumentRequest{
		Name:    "Public Badge",
		Kind:    "certificate",
		FileRef: "blob://badge",
		Privacy: "public",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(http.MethodGet, "/portfolio/"+s.user.String(), "", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var docs []documentResponse
	s.decode(resp, &docs)
	s.Require().Len(docs, 1)
	s.Equal("Public Badge", docs[0].Name)
}

func (s *RouterSuite) TestSetPrivacySharesWithDesignee() {
	doc := s.uploadDocument(s.token)
	designee := domain.NewUserID()

	resp := s.do(http.MethodPut, "/documents/"+doc.ID+"/privacy", s.token, setPrivacyRequest{
		Privacy:    "shared",
		SharedWith: []string{designee.String()},
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	readerToken := s.issueToken(designee, domain.RoleEmployer)
	resp = s.do(http.MethodGet, "/documents/"+doc.ID, readerToken, nil)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *RouterSuite) TestSubmitVerificationVerifiesDocument() {
	doc := s.uploadDocument(s.token)

	resp := s.do(http.MethodPost, "/documents/"+doc.ID+"/verifications", s.token,
		submitVerificationRequest{Kind: "ai_analysis"})
	s.Require().Equal(http.StatusAccepted, resp.StatusCode)
	var req verificationResponse
	s.decode(resp, &req)
	s.Equal("completed", req.Status)
	s.Equal("verified", req.ResultStatus)

	resp = s.do(http.MethodGet, "/documents/"+doc.ID, s.token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var got documentResponse
	s.decode(resp, &got)
	s.Equal("verified", got.Status)
}

func (s *RouterSuite) TestSubmitVerificationQuota() {
	// Quota is 3 per cycle. Spread submissions over distinct documents so
	// the in-flight guard never interferes.
	for i := 0; i < 3; i++ {
		doc := s.uploadDocument(s.token)
		resp := s.do(http.MethodPost, "/documents/"+doc.ID+"/verifications", s.token,
			submitVerificationRequest{Kind: "ai_analysis"})
		s.Require().Equal(http.StatusAccepted, resp.StatusCode)
		resp.Body.Close()
	}

	doc := s.uploadDocument(s.token)
	resp := s.do(http.MethodPost, "/documents/"+doc.ID+"/verifications", s.token,
		submitVerificationRequest{Kind: "ai_analysis"})
	defer resp.Body.Close()
	s.Equal(http.StatusPaymentRequired, resp.StatusCode)
}

func (s *RouterSuite) TestSubmitVerificationUnknownKind() {
	doc := s.uploadDocument(s.token)

	resp := s.do(http.MethodPost, "/documents/"+doc.ID+"/verifications", s.token,
		submitVerificationRequest{Kind: "vibes"})
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *RouterSuite) TestCancelVerification() {
	doc := s.uploadDocument(s.token)
	resp := s.do(http.MethodPost, "/documents/"+doc.ID+"/verifications", s.token,
		submitVerificationRequest{Kind: "ai_analysis"})
	s.Require().Equal(http.StatusAccepted, resp.StatusCode)
	var req verificationResponse
	s.decode(resp, &req)

	// The synchronous dispatcher already completed it; cancel is a no-op.
	resp = s.do(http.MethodPost, "/verifications/"+req.ID+"/cancel", s.token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var got verificationResponse
	s.decode(resp, &got)
	s.Equal("completed", got.Status)
}

func (s *RouterSuite) TestListVerifications() {
	doc := s.uploadDocument(s.token)
	resp := s.do(http.MethodPost, "/documents/"+doc.ID+"/verifications", s.token,
		submitVerificationRequest{Kind: "ai_analysis"})
	s.Require().Equal(http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(http.MethodGet, "/documents/"+doc.ID+"/verifications", s.token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var reqs []verificationResponse
	s.decode(resp, &reqs)
	s.Require().Len(reqs, 1)
	s.Equal("completed", reqs[0].Status)
}

func (s *RouterSuite) TestStatsRequiresAdmin() {
	resp := s.do(http.MethodGet, "/admin/stats", s.token, nil)
	defer resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *RouterSuite) TestStatsForAdmin() {
	doc := s.uploadDocument(s.token)
	resp := s.do(http.MethodPost, "/documents/"+doc.ID+"/verifications", s.token,
		submitVerificationRequest{Kind: "ai_analysis"})
	s.Require().Equal(http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	adminID := domain.NewUserID()
	s.directory.Grant(adminID)
	adminToken := s.issueToken(adminID, domain.RoleJobSeeker)

	resp = s.do(http.MethodGet, "/admin/stats", adminToken, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var stats reporting.Stats
	s.decode(resp, &stats)
	s.Equal(1, stats.TotalVerifications)
	s.Equal(1, stats.VerifiedCount)
}

func (s *RouterSuite) TestAnalyzerCallbackChecksum() {
	reqID := domain.NewRequestID().String()

	s.Run("bad checksum rejected", func() {
		resp := s.do(http.MethodPost, "/internal/analyzer/callback", "", analyzerCallbackRequest{
			RequestID:     reqID,
			Checksum:      "deadbeef",
			Determination: "positive",
			Confidence:    0.9,
		})
		defer resp.Body.Close()
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	s.Run("valid checksum for settled request is acknowledged", func() {
		doc := s.uploadDocument(s.token)
		resp := s.do(http.MethodPost, "/documents/"+doc.ID+"/verifications", s.token,
			submitVerificationRequest{Kind: "ai_analysis"})
		s.Require().Equal(http.StatusAccepted, resp.StatusCode)
		var req verificationResponse
		s.decode(resp, &req)

		sum := sha256.Sum256([]byte(req.ID + callbackSeed))
		resp = s.do(http.MethodPost, "/internal/analyzer/callback", "", analyzerCallbackRequest{
			RequestID:     req.ID,
			Checksum:      hex.EncodeToString(sum[:]),
			Determination: "negative",
			Confidence:    0.9,
		})
		defer resp.Body.Close()
		s.Equal(http.StatusOK, resp.StatusCode)

		// The late result was dropped; the document stays verified.
		resp = s.do(http.MethodGet, "/documents/"+doc.ID, s.token, nil)
		s.Require().Equal(http.StatusOK, resp.StatusCode)
		var got documentResponse
		s.decode(resp, &got)
		s.Equal("verified", got.Status)
	})
}

func (s *RouterSuite) TestAnalyzerCallbackRejectsMalformedOutcome() {
	doc := s.uploadDocument(s.token)
	resp := s.do(http.MethodPost, "/documents/"+doc.ID+"/verifications", s.token,
		submitVerificationRequest{Kind: "ai_analysis"})
	s.Require().Equal(http.StatusAccepted, resp.StatusCode)
	var req verificationResponse
	s.decode(resp, &req)

	// A valid checksum does not excuse a payload outside the analyzer
	// contract; nothing may change state.
	sum := sha256.Sum256([]byte(req.ID + callbackSeed))
	checksum := hex.EncodeToString(sum[:])

	s.Run("unknown determination", func() {
		resp := s.do(http.MethodPost, "/internal/analyzer/callback", "", analyzerCallbackRequest{
			RequestID:     req.ID,
			Checksum:      checksum,
			Determination: "alien-verdict",
			Confidence:    0.9,
		})
		defer resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("confidence out of range", func() {
		resp := s.do(http.MethodPost, "/internal/analyzer/callback", "", analyzerCallbackRequest{
			RequestID:     req.ID,
			Checksum:      checksum,
			Determination: "positive",
			Confidence:    7.5,
		})
		defer resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	resp = s.do(http.MethodGet, "/documents/"+doc.ID, s.token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var got documentResponse
	s.decode(resp, &got)
	s.Equal("verified", got.Status)
}

func (s *RouterSuite) TestCallbackDisabledWithoutSeed() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	documents := docstore.NewMemory()
	requests := vstore.NewMemory()

	machine, err := statemachine.New(requests, documents, &tx.MutexRunner{}, 0.80)
	s.Require().NoError(err)

	plan := entmodels.FreePlan(3)
	gate, err := entservice.New(entstore.NewMemory(plan), plan)
	s.Require().NoError(err)

	authz, err := access.New(access.NewMemoryDirectory())
	s.Require().NoError(err)

	dispatch, err := dispatcher.New(documents, machine, gate, s.analyzer)
	s.Require().NoError(err)

	docs, err := docservice.New(documents, requests, authz)
	s.Require().NoError(err)

	reporter, err := reporting.New(requests)
	s.Require().NoError(err)

	handler := New(docs, dispatch, reporter, authz, s.validator,
		metrics.New(prometheus.NewRegistry()), logger, "")
	server := httptest.NewServer(NewRouter(handler))
	defer server.Close()

	payload, err := json.Marshal(analyzerCallbackRequest{
		RequestID:     domain.NewRequestID().String(),
		Determination: "positive",
		Confidence:    0.9,
	})
	s.Require().NoError(err)
	resp, err := http.Post(server.URL+"/internal/analyzer/callback",
		"application/json", bytes.NewReader(payload))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *RouterSuite) TestDeleteDocument() {
	doc := s.uploadDocument(s.token)

	resp := s.do(http.MethodDelete, "/documents/"+doc.ID, s.token, nil)
	defer resp.Body.Close()
	s.Equal(http.StatusNoContent, resp.StatusCode)

	resp = s.do(http.MethodGet, "/documents/"+doc.ID, s.token, nil)
	defer resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}
