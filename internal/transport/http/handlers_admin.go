package httpapi

import (
	"net/http"
	"time"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/transport/http/shared"
)

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	principal, err := h.requirePrincipal(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.authz.AuthorizeStats(principal); err != nil {
		shared.WriteError(w, err)
		return
	}

	stats, err := h.reporter.ComputeStats(r.Context(), time.Now().UTC())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, stats)
}
