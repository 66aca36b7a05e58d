package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/coop-ledger/internal/ledger"
	"github.com/example/coop-ledger/internal/security"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	cid := security.CorrelationIDFromContext(r.Context())
	if cid != "" {
		w.Header().Set(security.CorrelationIDHeader, cid)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeLedgerError maps a ledger error to its HTTP status and error code.
// Persistence failures never expose their cause.
func writeLedgerError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var (
		dup       *ledger.DuplicateError
		misconf   *ledger.MisconfiguredProductError
		invalid   *ledger.InvalidRequestError
		inUse     *ledger.AccountInUseError
		badStatus *ledger.InvalidStatusTransitionError
		self      *ledger.SelfVerificationError
	)

	switch {
	case errors.As(err, &dup):
		security.WriteJSONErrorDetail(w, r, http.StatusConflict, security.ErrorResponse{
			Error: "duplicate_account", Message: dup.Error(), Fields: dup.Collisions,
		})
	case errors.As(err, &misconf):
		security.WriteJSONErrorDetail(w, r, http.StatusUnprocessableEntity, security.ErrorResponse{
			Error: "misconfigured_product", Message: misconf.Error(),
		})
	case errors.As(err, &invalid):
		security.WriteJSONErrorDetail(w, r, http.StatusBadRequest, security.ErrorResponse{
			Error: "validation_error", Message: invalid.Message, Fields: []string{invalid.Field},
		})
	case errors.As(err, &inUse):
		security.WriteJSONErrorDetail(w, r, http.StatusConflict, security.ErrorResponse{
			Error: "account_in_use", Message: inUse.Error(),
		})
	case errors.As(err, &badStatus):
		security.WriteJSONErrorDetail(w, r, http.StatusConflict, security.ErrorResponse{
			Error: "invalid_status_transition", Message: badStatus.Error(),
		})
	case errors.As(err, &self):
		security.WriteJSONErrorDetail(w, r, http.StatusConflict, security.ErrorResponse{
			Error: "self_verification", Message: self.Error(),
		})
	case errors.Is(err, ledger.ErrNotFound):
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	default:
		log.Error("request failed",
			zap.String("cid", security.CorrelationIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		security.WriteJSONErrorDetail(w, r, http.StatusInternalServerError, security.ErrorResponse{
			Error: "persistence_error", Message: "the request could not be completed",
		})
	}
}
