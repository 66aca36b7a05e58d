package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/coop-ledger/internal/logger"
)

const tracerName = "github.com/example/coop-ledger/internal/ledger"

// Recorder receives operation outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveOperation(operation, outcome string, d time.Duration)
	IncrementVouchersPosted(status string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string, time.Duration) {}
func (nopRecorder) IncrementVouchersPosted(string)                  {}

// OpenAccountRequest represents the request to open an account
type OpenAccountRequest struct {
	Type      AccountType  `json:"account_type"`
	ProductID int64        `json:"product_id"`
	AccountNo string       `json:"account_no"`
	Suffix    int64        `json:"suffix"`
	Name      string       `json:"name"`
	MemberID  int64        `json:"member_id"`
	OpenedOn  time.Time    `json:"opened_on"`
	Ownership OwnershipSet `json:"ownership"`

	OpeningAmount    decimal.Decimal `json:"opening_amount"`
	EntryType        EntryType       `json:"entry_type"`
	FundingAccountID int64           `json:"funding_account_id"`
	Narration        string          `json:"narration"`
}

// OpenAccountResult is what a committed opening produced. Voucher and
// OpeningBalance are nil when no opening amount was posted.
type OpenAccountResult struct {
	Account        *Account        `json:"account"`
	Voucher        *Voucher        `json:"voucher,omitempty"`
	OpeningBalance *OpeningBalance `json:"opening_balance,omitempty"`
}

// ProvisioningService orchestrates account opening and its ledger posting
// as a single unit of work.
type ProvisioningService struct {
	store    Store
	guard    *DuplicateGuard
	resolver *PostingHeadResolver
	engine   *PostingEngine
	log      *zap.Logger
	metrics  Recorder
	tracer   trace.Tracer
	now      func() time.Time
}

// NewProvisioningService wires the provisioning components over store.
// A nil logger or recorder disables that concern.
func NewProvisioningService(store Store, log *zap.Logger, recorder Recorder) *ProvisioningService {
	if log == nil {
		log = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &ProvisioningService{
		store:    store,
		guard:    NewDuplicateGuard(store),
		resolver: NewPostingHeadResolver(store),
		engine:   NewPostingEngine(NewVoucherSequencer()),
		log:      log,
		metrics:  recorder,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
}

// Open creates an account, its ownership records and, for a positive opening
// amount, the opening balance with its balanced voucher. Either everything
// commits or nothing does.
func (s *ProvisioningService) Open(ctx context.Context, actor Actor, req OpenAccountRequest) (res *OpenAccountResult, err error) {
	ctx, span := s.tracer.Start(ctx, "ledger.OpenAccount", trace.WithAttributes(
		attribute.Int64("branch_id", actor.BranchID),
		attribute.Int64("product_id", req.ProductID),
		attribute.String("account_type", string(req.Type)),
	))
	start := time.Now()
	defer func() { s.finish(ctx, span, "open_account", start, err) }()

	if err := ValidateOpenRequest(actor, req); err != nil {
		return nil, err
	}

	dupCtx, dupSpan := s.tracer.Start(ctx, "ledger.CheckDuplicates")
	dupQuery, err := s.guard.Check(dupCtx, DuplicateQuery{
		BranchID:  actor.BranchID,
		ProductID: req.ProductID,
		Type:      req.Type,
		AccountNo: req.AccountNo,
		Suffix:    req.Suffix,
		Name:      req.Name,
	})
	endSpan(dupSpan, err)
	if err != nil {
		return nil, err
	}

	var fundingID int64
	if req.OpeningAmount.IsPositive() {
		fundingID = req.FundingAccountID
	}
	headCtx, headSpan := s.tracer.Start(ctx, "ledger.ResolveHeads")
	heads, err := s.resolver.Resolve(headCtx, actor.BranchID, req.ProductID, fundingID)
	endSpan(headSpan, err)
	if err != nil {
		return nil, err
	}
	if heads.Product.Type != req.Type {
		return nil, &InvalidRequestError{
			Field:   "product_id",
			Message: fmt.Sprintf("product %d opens %s accounts, not %s", req.ProductID, heads.Product.Type, req.Type),
		}
	}

	now := s.now().UTC()
	openedOn := req.OpenedOn
	if openedOn.IsZero() {
		openedOn = now
	}
	account := &Account{
		BranchID:  actor.BranchID,
		Type:      req.Type,
		ProductID: req.ProductID,
		HeadID:    heads.Product.PrincipalHeadID,
		HeadCode:  heads.Product.PrincipalHeadCode,
		AccountNo: strings.TrimSpace(req.AccountNo),
		Suffix:    req.Suffix,
		Name:      strings.TrimSpace(req.Name),
		MemberID:  req.MemberID,
		OpenedOn:  DateOnly(openedOn),
		CreatedBy: actor.UserID,
		CreatedAt: now,
	}

	res = &OpenAccountResult{Account: account}
	txCtx, txSpan := s.tracer.Start(ctx, "ledger.PersistAccount")
	err = s.store.RunInTx(txCtx, func(ctx context.Context, tx Tx) error {
		if err := s.guard.CheckTx(ctx, tx, dupQuery); err != nil {
			return err
		}
		id, err := tx.InsertAccount(ctx, account)
		if err != nil {
			return fmt.Errorf("failed to insert account: %w", err)
		}
		account.ID = id

		records := stampOwnership(req.Ownership.Records(), actor.BranchID, id)
		if len(records) > 0 {
			if err := tx.InsertOwnership(ctx, records); err != nil {
				return fmt.Errorf("failed to insert ownership records: %w", err)
			}
		}
		account.Ownership = records

		if !req.OpeningAmount.IsPositive() {
			return nil
		}
		voucher, ob, err := s.engine.Post(ctx, tx, OpeningPosting{
			Actor:     actor,
			Account:   account,
			Funding:   heads.Funding,
			Amount:    req.OpeningAmount,
			EntryType: req.EntryType,
			Date:      openedOn,
			Narration: req.Narration,
		})
		if err != nil {
			return err
		}
		res.Voucher = voucher
		res.OpeningBalance = ob
		return nil
	})
	endSpan(txSpan, err)
	if err != nil {
		return nil, txError("open account", err)
	}

	if res.Voucher != nil {
		s.metrics.IncrementVouchersPosted(string(res.Voucher.Status))
	}
	logger.WithContext(ctx, s.log).Info("account opened",
		zap.Int64("branch_id", actor.BranchID),
		zap.Int64("account_id", account.ID),
		zap.Int64("user_id", actor.UserID),
		zap.Bool("posted", res.Voucher != nil),
	)
	return res, nil
}

// ReplaceOwnership swaps the whole ownership set of an account in one transaction.
func (s *ProvisioningService) ReplaceOwnership(ctx context.Context, actor Actor, accountID int64, set OwnershipSet) (acc *Account, err error) {
	ctx, span := s.tracer.Start(ctx, "ledger.ReplaceOwnership", trace.WithAttributes(
		attribute.Int64("branch_id", actor.BranchID),
		attribute.Int64("account_id", accountID),
	))
	start := time.Now()
	defer func() { s.finish(ctx, span, "replace_ownership", start, err) }()

	if err := ValidateActor(actor); err != nil {
		return nil, err
	}
	if err := ValidateOwnership(set); err != nil {
		return nil, err
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockAccount(ctx, actor.BranchID, accountID); err != nil {
			return err
		}
		if _, err := tx.DeleteOwnership(ctx, accountID); err != nil {
			return fmt.Errorf("failed to delete ownership records: %w", err)
		}
		records := stampOwnership(set.Records(), actor.BranchID, accountID)
		if len(records) == 0 {
			return nil
		}
		if err := tx.InsertOwnership(ctx, records); err != nil {
			return fmt.Errorf("failed to insert ownership records: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, txError("replace ownership", err)
	}
	return s.GetAccount(ctx, actor, accountID)
}

// DeleteAccount removes an account with its ownership records and opening
// balance, in that order. Accounts referenced by voucher lines are refused.
func (s *ProvisioningService) DeleteAccount(ctx context.Context, actor Actor, accountID int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "ledger.DeleteAccount", trace.WithAttributes(
		attribute.Int64("branch_id", actor.BranchID),
		attribute.Int64("account_id", accountID),
	))
	start := time.Now()
	defer func() { s.finish(ctx, span, "delete_account", start, err) }()

	if err := ValidateActor(actor); err != nil {
		return err
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockAccount(ctx, actor.BranchID, accountID); err != nil {
			return err
		}
		lines, err := tx.CountLinesForAccount(ctx, accountID)
		if err != nil {
			return fmt.Errorf("failed to count voucher lines: %w", err)
		}
		if lines > 0 {
			return &AccountInUseError{AccountID: accountID, Lines: lines}
		}
		if _, err := tx.DeleteOwnership(ctx, accountID); err != nil {
			return fmt.Errorf("failed to delete ownership records: %w", err)
		}
		if err := tx.DeleteOpeningBalance(ctx, accountID); err != nil {
			return fmt.Errorf("failed to delete opening balance: %w", err)
		}
		if err := tx.DeleteAccount(ctx, actor.BranchID, accountID); err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}
		return nil
	})
	if err != nil {
		return txError("delete account", err)
	}
	logger.WithContext(ctx, s.log).Info("account deleted",
		zap.Int64("branch_id", actor.BranchID),
		zap.Int64("account_id", accountID),
		zap.Int64("user_id", actor.UserID),
	)
	return nil
}

// GetAccount returns an account of the actor's branch with its ownership set.
func (s *ProvisioningService) GetAccount(ctx context.Context, actor Actor, accountID int64) (*Account, error) {
	if err := ValidateActor(actor); err != nil {
		return nil, err
	}
	acc, err := s.store.GetAccount(ctx, actor.BranchID, accountID)
	if err != nil {
		return nil, readError("account", err)
	}
	return acc, nil
}

// GetVoucher returns a voucher of the actor's branch with labelled lines.
func (s *ProvisioningService) GetVoucher(ctx context.Context, actor Actor, voucherID int64) (*Voucher, error) {
	if err := ValidateActor(actor); err != nil {
		return nil, err
	}
	v, err := s.store.GetVoucher(ctx, actor.BranchID, voucherID)
	if err != nil {
		return nil, readError("voucher", err)
	}
	for i := range v.Lines {
		label, err := s.store.HeadLabel(ctx, actor.BranchID, v.Lines[i].HeadCode)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, readError("head label", err)
		}
		v.Lines[i].HeadLabel = label
	}
	return v, nil
}

// ValidateBranch runs the consistency checks over the actor's branch.
func (s *ProvisioningService) ValidateBranch(ctx context.Context, actor Actor) ([]*ValidationResult, error) {
	if err := ValidateActor(actor); err != nil {
		return nil, err
	}
	return NewValidator(s.store).ValidateBranch(ctx, actor.BranchID)
}

func (s *ProvisioningService) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	outcome := Outcome(err)
	s.metrics.ObserveOperation(op, outcome, time.Since(start))
	span.SetAttributes(attribute.String("outcome", outcome))
	endSpan(span, err)

	if err == nil {
		return
	}
	log := logger.WithContext(ctx, s.log).With(zap.String("operation", op), zap.String("outcome", outcome))
	var perr *PersistenceError
	if errors.As(err, &perr) {
		log.Error("ledger operation failed", zap.String("detail", perr.Detail()), zap.Error(err))
		return
	}
	log.Info("ledger operation rejected", zap.Error(err))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func stampOwnership(records []OwnershipRecord, branchID, accountID int64) []OwnershipRecord {
	for i := range records {
		records[i].ID = 0
		records[i].BranchID = branchID
		records[i].AccountID = accountID
	}
	return records
}

// txError keeps domain rejections raised inside a transaction as they are and
// wraps everything else as a persistence failure.
func txError(op string, err error) error {
	var (
		dup       *DuplicateError
		inUse     *AccountInUseError
		badStatus *InvalidStatusTransitionError
		self      *SelfVerificationError
	)
	switch {
	case errors.Is(err, ErrNotFound),
		errors.As(err, &dup),
		errors.As(err, &inUse),
		errors.As(err, &badStatus),
		errors.As(err, &self):
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func readError(what string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}
