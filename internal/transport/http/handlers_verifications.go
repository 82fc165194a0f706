package httpapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	vmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
	derrors "github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain-errors"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/transport/http/shared"
)

type submitVerificationRequest struct {
	Kind string `json:"kind"`
}

type verificationResponse struct {
	ID           string         `json:"id"`
	DocumentID   string         `json:"document_id"`
	UserID       string         `json:"user_id"`
	Kind         string         `json:"kind"`
	Status       string         `json:"status"`
	Priority     int            `json:"priority"`
	RequestedAt  time.Time      `json:"requested_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	ResultStatus string         `json:"result_status,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func toVerificationResponse(req *vmodels.VerificationRequest) verificationResponse {
	out := verificationResponse{
		ID:          req.ID.String(),
		DocumentID:  req.DocumentID.String(),
		UserID:      req.UserID.String(),
		Kind:        string(req.Kind),
		Status:      string(req.Status),
		Priority:    req.Priority,
		RequestedAt: req.RequestedAt,
		StartedAt:   req.StartedAt,
		CompletedAt: req.CompletedAt,
		Metadata:    req.Metadata,
	}
	if req.ResultStatus != nil {
		out.ResultStatus = string(*req.ResultStatus)
	}
	return out
}

func (h *Handler) handleSubmitVerification(w http.ResponseWriter, r *http.Request) {
	principal, err := h.requirePrincipal(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	docID, err := domain.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.WriteError(w, derrors.New(derrors.CodeValidation, "invalid document id"))
		return
	}

	var req submitVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, derrors.New(derrors.CodeValidation, "invalid request body"))
		return
	}
	kind, err := vmodels.ParseRequestKind(req.Kind)
	if err != nil {
		shared.WriteError(w, derrors.Wrap(err, derrors.CodeValidation, "invalid request kind"))
		return
	}

	created, err := h.dispatcher.Submit(r.Context(), principal, docID, kind)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusAccepted, toVerificationResponse(created))
}

func (h *Handler) handleCancelVerification(w http.ResponseWriter, r *http.Request) {
	principal, err := h.requirePrincipal(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	reqID, err := domain.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		shared.WriteError(w, derrors.New(derrors.CodeValidation, "invalid request id"))
		return
	}

	cancelled, err := h.dispatcher.Cancel(r.Context(), principal, reqID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toVerificationResponse(cancelled))
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	principal, err := h.principal(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	docID, err := domain.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.WriteError(w, derrors.New(derrors.CodeValidation, "invalid document id"))
		return
	}

	requests, err := h.documents.ListRequests(r.Context(), principal, docID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]verificationResponse, len(requests))
	for i, req := range requests {
		out[i] = toVerificationResponse(req)
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

type analyzerCallbackRequest struct {
	RequestID       string            `json:"request_id"`
	Checksum        string            `json:"checksum"`
	Determination   string            `json:"determination"`
	Confidence      float64           `json:"confidence"`
	ExtractedFields map[string]string `json:"extracted_fields,omitempty"`
	Explanation     string            `json:"explanation,omitempty"`
}

// handleAnalyzerCallback accepts asynchronous results pushed by the
// analyzer. Callers prove they were handed the request by echoing a
// checksum derived from the request id and a deployment seed.
func (h *Handler) handleAnalyzerCallback(w http.ResponseWriter, r *http.Request) {
	var req analyzerCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, derrors.New(derrors.CodeValidation, "invalid request body"))
		return
	}
	reqID, err := domain.ParseRequestID(req.RequestID)
	if err != nil {
		shared.WriteError(w, derrors.New(derrors.CodeValidation, "invalid request id"))
		return
	}
	if !h.verifyCallbackChecksum(req.RequestID, req.Checksum) {
		h.logger.Warn("analyzer callback rejected", slog.String("request_id", req.RequestID))
		shared.WriteError(w, derrors.New(derrors.CodeUnauthorized, "invalid checksum"))
		return
	}

	outcome := vmodels.Outcome{
		Determination:   vmodels.Determination(req.Determination),
		Confidence:      req.Confidence,
		ExtractedFields: req.ExtractedFields,
		Explanation:     req.Explanation,
	}
	if err := h.dispatcher.HandleAnalyzerResult(r.Context(), reqID, outcome); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (h *Handler) verifyCallbackChecksum(requestID, got string) bool {
	sum := sha256.Sum256([]byte(requestID + h.callbackSeed))
	want := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
