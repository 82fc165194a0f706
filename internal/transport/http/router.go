// Package httpapi is the thin HTTP layer. Handlers delegate to domain
// services; transport concerns stay here.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/access"
	docservice "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/service"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/platform/metrics"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/platform/middleware"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/reporting"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/dispatcher"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
	derrors "github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain-errors"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/transport/http/shared"
)

type Handler struct {
	logger       *slog.Logger
	documents    *docservice.Service
	dispatcher   *dispatcher.Service
	reporter     *reporting.Service
	authz        *access.Service
	metrics      *metrics.Metrics
	validator    middleware.TokenValidator
	callbackSeed string
}

func New(
	documents *docservice.Service,
	dispatch *dispatcher.Service,
	reporter *reporting.Service,
	authz *access.Service,
	validator middleware.TokenValidator,
	m *metrics.Metrics,
	logger *slog.Logger,
	callbackSeed string,
) *Handler {
	return &Handler{
		logger:       logger,
		documents:    documents,
		dispatcher:   dispatch,
		reporter:     reporter,
		authz:        authz,
		metrics:      m,
		validator:    validator,
		callbackSeed: callbackSeed,
	}
}

// NewRouter wires all endpoints behind the standard middleware chain.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.Latency(h.metrics))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Public read-only portfolio; auth attached when present so shared
	// documents resolve for designees.
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(h.validator))
		r.Get("/portfolio/{userID}", h.handlePortfolio)
		r.Get("/documents/{documentID}", h.handleGetDocument)
		r.Get("/documents/{documentID}/verifications", h.handleListRequests)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Post("/documents", h.handleUploadDocument)
		r.Get("/documents", h.handleListDocuments)
		r.Put("/documents/{documentID}/privacy", h.handleSetPrivacy)
		r.Delete("/documents/{documentID}", h.handleDeleteDocument)
		r.Post("/documents/{documentID}/verifications", h.handleSubmitVerification)
		r.Post("/verifications/{requestID}/cancel", h.handleCancelVerification)
		r.Get("/admin/stats", h.handleStats)
	})

	// Analyzer callback authenticates with a payload checksum, not a
	// bearer token. Without a seed the checksum is forgeable, so the
	// endpoint is not served at all.
	if h.callbackSeed != "" {
		r.Post("/internal/analyzer/callback", h.handleAnalyzerCallback)
	} else {
		h.logger.Warn("analyzer callback seed unset, callback endpoint disabled")
	}

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// principal resolves the caller, consulting the admin directory per call.
func (h *Handler) principal(r *http.Request) (domain.Principal, error) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		return domain.Anonymous(), nil
	}
	return h.authz.ResolvePrincipal(r.Context(), claims.UserID, claims.Role)
}

// requirePrincipal is principal for endpoints behind RequireAuth.
func (h *Handler) requirePrincipal(r *http.Request) (domain.Principal, error) {
	p, err := h.principal(r)
	if err != nil {
		return domain.Principal{}, err
	}
	if p.IsAnonymous() {
		return domain.Principal{}, derrors.New(derrors.CodeUnauthorized, "authentication required")
	}
	return p, nil
}
