package security

import (
	"encoding/json"
	"net/http"
)

type ErrorResponse struct {
	Error         string      `json:"error"`
	Message       string      `json:"message,omitempty"`
	Fields        interface{} `json:"fields,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

func WriteJSONError(w http.ResponseWriter, r *http.Request, status int, code string) {
	WriteJSONErrorDetail(w, r, status, ErrorResponse{Error: code})
}

// WriteJSONErrorDetail writes body with the request's correlation id filled in.
func WriteJSONErrorDetail(w http.ResponseWriter, r *http.Request, status int, body ErrorResponse) {
	cid := CorrelationIDFromContext(r.Context())
	if cid != "" {
		w.Header().Set(CorrelationIDHeader, cid)
	}
	body.CorrelationID = cid

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
