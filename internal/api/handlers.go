package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/coop-ledger/internal/auth"
	"github.com/example/coop-ledger/internal/ledger"
	"github.com/example/coop-ledger/internal/security"
)

type handlers struct {
	ledger Provisioner
	log    *zap.Logger
}

type openAccountRequest struct {
	AccountType      string              `json:"account_type"`
	ProductID        int64               `json:"product_id"`
	AccountNo        string              `json:"account_no"`
	Suffix           int64               `json:"suffix"`
	Name             string              `json:"name"`
	MemberID         int64               `json:"member_id"`
	OpenedOn         string              `json:"opened_on"`
	Ownership        ledger.OwnershipSet `json:"ownership"`
	OpeningAmount    decimal.Decimal     `json:"opening_amount"`
	EntryType        string              `json:"entry_type"`
	FundingAccountID int64               `json:"funding_account_id"`
	Narration        string              `json:"narration"`
}

type openAccountResponse struct {
	CorrelationID string `json:"correlation_id"`
	*ledger.OpenAccountResult
}

type accountResponse struct {
	CorrelationID string          `json:"correlation_id"`
	Account       *ledger.Account `json:"account"`
}

type voucherResponse struct {
	CorrelationID string          `json:"correlation_id"`
	Voucher       *ledger.Voucher `json:"voucher"`
}

type consistencyResponse struct {
	CorrelationID string                     `json:"correlation_id"`
	BranchID      int64                      `json:"branch_id"`
	Consistent    bool                       `json:"consistent"`
	Results       []*ledger.ValidationResult `json:"results"`
}

func (h *handlers) openAccount(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	var req openAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	openReq := ledger.OpenAccountRequest{
		Type:             ledger.AccountType(req.AccountType),
		ProductID:        req.ProductID,
		AccountNo:        req.AccountNo,
		Suffix:           req.Suffix,
		Name:             req.Name,
		MemberID:         req.MemberID,
		Ownership:        req.Ownership,
		OpeningAmount:    req.OpeningAmount,
		EntryType:        ledger.EntryType(req.EntryType),
		FundingAccountID: req.FundingAccountID,
		Narration:        req.Narration,
	}
	if req.OpenedOn != "" {
		d, err := time.Parse(time.DateOnly, req.OpenedOn)
		if err != nil {
			security.WriteJSONErrorDetail(w, r, http.StatusBadRequest, security.ErrorResponse{
				Error: "validation_error", Message: "opened_on is not a calendar date", Fields: []string{"opened_on"},
			})
			return
		}
		openReq.OpenedOn = d
	}

	res, err := h.ledger.Open(r.Context(), actor, openReq)
	if err != nil {
		writeLedgerError(w, r, h.log, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, openAccountResponse{
		CorrelationID:     security.CorrelationIDFromContext(r.Context()),
		OpenAccountResult: res,
	})
}

func (h *handlers) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := auth.ActorFromContext(r.Context())

	acc, err := h.ledger.GetAccount(r.Context(), actor, id)
	if err != nil {
		writeLedgerError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, http.StatusOK, accountResponse{
		CorrelationID: security.CorrelationIDFromContext(r.Context()),
		Account:       acc,
	})
}

func (h *handlers) replaceOwnership(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := auth.ActorFromContext(r.Context())

	var set ledger.OwnershipSet
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	acc, err := h.ledger.ReplaceOwnership(r.Context(), actor, id, set)
	if err != nil {
		writeLedgerError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, http.StatusOK, accountResponse{
		CorrelationID: security.CorrelationIDFromContext(r.Context()),
		Account:       acc,
	})
}

func (h *handlers) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := auth.ActorFromContext(r.Context())

	if err := h.ledger.DeleteAccount(r.Context(), actor, id); err != nil {
		writeLedgerError(w, r, h.log, err)
		return
	}
	w.Header().Set(security.CorrelationIDHeader, security.CorrelationIDFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) getVoucher(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := auth.ActorFromContext(r.Context())

	v, err := h.ledger.GetVoucher(r.Context(), actor, id)
	if err != nil {
		writeLedgerError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, http.StatusOK, voucherResponse{
		CorrelationID: security.CorrelationIDFromContext(r.Context()),
		Voucher:       v,
	})
}

func (h *handlers) verifyVoucher(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := auth.ActorFromContext(r.Context())

	v, err := h.ledger.VerifyVoucher(r.Context(), actor, id)
	if err != nil {
		writeLedgerError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, http.StatusOK, voucherResponse{
		CorrelationID: security.CorrelationIDFromContext(r.Context()),
		Voucher:       v,
	})
}

func (h *handlers) consistency(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	results, err := h.ledger.ValidateBranch(r.Context(), actor)
	if err != nil {
		writeLedgerError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, http.StatusOK, consistencyResponse{
		CorrelationID: security.CorrelationIDFromContext(r.Context()),
		BranchID:      actor.BranchID,
		Consistent:    ledger.AllValid(results),
		Results:       results,
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		security.WriteJSONErrorDetail(w, r, http.StatusBadRequest, security.ErrorResponse{
			Error: "invalid_request", Message: "id must be a positive integer",
		})
		return 0, false
	}
	return id, true
}
