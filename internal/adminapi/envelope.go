package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
)

type envelope struct {
	Status string      `json:"status"`
	Data   any         `json:"data,omitempty"`
	Error  *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Status: "ok", Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	writeJSON(w, kind.HTTPStatus(), envelope{Status: "error", Error: &errorBody{Kind: kind, Message: err.Error()}})
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
