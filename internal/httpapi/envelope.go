package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
)

// envelope is the uniform response shape every webhook endpoint returns,
// per spec.md §6. Success responses set Data; error responses set Error.
type envelope struct {
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	RequestID string      `json:"request_id"`
	Data      any         `json:"data,omitempty"`
	Error     *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Kind      apperr.Kind `json:"kind"`
	Message   string      `json:"message"`
	RequestID string      `json:"request_id"`
}

func writeData(w http.ResponseWriter, requestID string, data any) {
	writeJSON(w, http.StatusOK, envelope{Status: "ok", RequestID: requestID, Data: data})
}

// writeError maps err to its apperr.Kind's HTTP status and writes the
// error envelope spec.md §6 specifies.
func writeError(w http.ResponseWriter, requestID string, err error) {
	kind := apperr.KindOf(err)
	writeJSON(w, kind.HTTPStatus(), envelope{
		Status:    "error",
		RequestID: requestID,
		Error:     &errorBody{Kind: kind, Message: err.Error(), RequestID: requestID},
	})
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
