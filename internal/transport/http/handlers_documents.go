package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	docmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/models"
	docservice "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/service"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
	derrors "github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain-errors"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/transport/http/shared"
)

type uploadDocumentRequest struct {
	Name          string         `json:"name"`
	Kind          string         `json:"kind"`
	Issuer        string         `json:"issuer"`
	InstitutionID string         `json:"institution_id,omitempty"`
	FileRef       string         `json:"file_ref,omitempty"`
	Content       []byte         `json:"content,omitempty"`
	FileSize      int64          `json:"file_size"`
	FileType      string         `json:"file_type"`
	ExpiryDate    *time.Time     `json:"expiry_date,omitempty"`
	Privacy       string         `json:"privacy,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type documentResponse struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Name       string         `json:"name"`
	Kind       string         `json:"kind"`
	Issuer     string         `json:"issuer,omitempty"`
	FileRef    string         `json:"file_ref"`
	FileSize   int64          `json:"file_size"`
	FileType   string         `json:"file_type,omitempty"`
	UploadedAt time.Time      `json:"uploaded_at"`
	ExpiryDate *time.Time     `json:"expiry_date,omitempty"`
	Status     string         `json:"status"`
	Privacy    string         `json:"privacy"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func toDocumentResponse(doc *docmodels.Document) documentResponse {
	return documentResponse{
		ID:         doc.ID.String(),
		UserID:     doc.UserID.String(),
		Name:       doc.Name,
		Kind:       string(doc.Kind),
		Issuer:     doc.Issuer,
		FileRef:    doc.FileRef,
		FileSize:   doc.FileSize,
		FileType:   doc.FileType,
		UploadedAt: doc.UploadedAt,
		ExpiryDate: doc.ExpiryDate,
		Status:     string(doc.Status),
		Privacy:    string(doc.Privacy),
		Metadata:   doc.Metadata,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

func toDocumentListResponse(docs []*docmodels.Document) []documentResponse {
	out := make([]documentResponse, len(docs))
	for i, doc := range docs {
		out[i] = toDocumentResponse(doc)
	}
	return out
}

func (h *Handler) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	principal, err := h.requirePrincipal(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req uploadDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, derrors.New(derrors.CodeValidation, "invalid request body"))
		return
	}

	input := docservice.UploadInput{
		Name:       req.Name,
		Kind:       docmodels.Kind(req.Kind),
		Issuer:     req.Issuer,
		FileRef:    req.FileRef,
		Content:    req.Content,
		FileSize:   req.FileSize,
		FileType:   req.FileType,
		ExpiryDate: req.ExpiryDate,
		Privacy:    docmodels.Privacy(req.Privacy),
		Metadata:   req.Metadata,
	}
	if req.InstitutionID != "" {
		instID, err := domain.ParseUserID(req.InstitutionID)
		if err != nil {
			shared.WriteError(w, derrors.New(derrors.CodeValidation, "invalid institution id"))
			return
		}
		input.InstitutionID = &instID
	}

	doc, err := h.documents.Upload(r.Context(), principal, input)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	principal, err := h.requirePrincipal(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	docs, err := h.documents.List(r.Context(), principal)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toDocumentListResponse(docs))
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
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

	doc, err := h.documents.Get(r.Context(), principal, docID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *Handler) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	owner, err := domain.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, derrors.New(derrors.CodeValidation, "invalid user id"))
		return
	}

	docs, err := h.documents.Portfolio(r.Context(), owner)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toDocumentListResponse(docs))
}

type setPrivacyRequest struct {
	Privacy    string   `json:"privacy"`
	SharedWith []string `json:"shared_with,omitempty"`
}

func (h *Handler) handleSetPrivacy(w http.ResponseWriter, r *http.Request) {
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

	var req setPrivacyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, derrors.New(derrors.CodeValidation, "invalid request body"))
		return
	}
	sharedWith := make([]domain.UserID, 0, len(req.SharedWith))
	for _, raw := range req.SharedWith {
		id, err := domain.ParseUserID(raw)
		if err != nil {
			shared.WriteError(w, derrors.New(derrors.CodeValidation, "invalid shared_with entry"))
			return
		}
		sharedWith = append(sharedWith, id)
	}

	doc, err := h.documents.SetPrivacy(r.Context(), principal, docID, docmodels.Privacy(req.Privacy), sharedWith)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
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

	purge := r.URL.Query().Get("purge") == "true"
	if err := h.documents.Delete(r.Context(), principal, docID, purge); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
