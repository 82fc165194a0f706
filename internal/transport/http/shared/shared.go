// Package shared holds response helpers used by every handler so error
// envelopes stay consistent across the API surface.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	derrors "github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain-errors"
)

// WriteJSON writes a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteError translates a domain error into the HTTP envelope. Unknown
// errors collapse to a bare internal code; their detail stays in logs.
func WriteError(w http.ResponseWriter, err error) {
	var de *derrors.Error
	if !errors.As(err, &de) {
		WriteJSON(w, http.StatusInternalServerError, errorEnvelope{Error: string(derrors.CodeInternal)})
		return
	}
	WriteJSON(w, derrors.ToHTTPStatus(de.Code), errorEnvelope{
		Error:   string(de.Code),
		Message: de.Message,
	})
}
