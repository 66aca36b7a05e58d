package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OpeningPosting is the input of a single opening-balance posting.
type OpeningPosting struct {
	Actor     Actor
	Account   *Account
	Funding   *Account
	Amount    decimal.Decimal
	EntryType EntryType
	Date      time.Time
	Narration string
}

// PostingEngine turns an opening balance into a balanced two-line voucher.
type PostingEngine struct {
	sequencer *VoucherSequencer
	now       func() time.Time
}

// NewPostingEngine creates a posting engine numbering through sequencer.
func NewPostingEngine(sequencer *VoucherSequencer) *PostingEngine {
	return &PostingEngine{
		sequencer: sequencer,
		now:       time.Now,
	}
}

// BuildVoucher returns the unnumbered voucher for p. A Cr opening credits the
// new account and debits the funding account; Dr is the mirror image. With
// autoVerify the maker is recorded as verifier.
func (e *PostingEngine) BuildVoucher(p OpeningPosting, autoVerify bool) (*Voucher, error) {
	if p.Account == nil || p.Funding == nil {
		return nil, errors.New("posting requires both the new and the funding account")
	}
	if !p.Amount.IsPositive() {
		return nil, fmt.Errorf("posting amount must be positive, got %s", p.Amount)
	}
	if !p.EntryType.IsValid() {
		return nil, fmt.Errorf("unknown entry type %q", p.EntryType)
	}

	now := e.now().UTC()
	date := p.Date
	if date.IsZero() {
		date = now
	}
	narration := strings.TrimSpace(p.Narration)
	if narration == "" {
		narration = fmt.Sprintf("Opening balance of account %s", accountLabel(p.Account))
	}

	v := &Voucher{
		BranchID:    p.Actor.BranchID,
		VoucherDate: DateOnly(date),
		Narration:   narration,
		Status:      StatusAwaitingVerification,
		Type:        VoucherTypeJournal,
		SubType:     VoucherSubTypeAccountOpen,
		CreatedBy:   p.Actor.UserID,
		CreatedAt:   now,
	}
	if autoVerify {
		verifier := p.Actor.UserID
		v.Status = StatusVerified
		v.VerifiedBy = &verifier
		v.VerifiedAt = &now
	}

	amount := p.Amount.Round(2)
	v.Lines = []VoucherLine{
		{
			Seq:       1,
			AccountID: p.Account.ID,
			HeadID:    p.Account.HeadID,
			HeadCode:  p.Account.HeadCode,
			Amount:    amount,
			Indicator: p.EntryType,
		},
		{
			Seq:       2,
			AccountID: p.Funding.ID,
			HeadID:    p.Funding.HeadID,
			HeadCode:  p.Funding.HeadCode,
			Amount:    amount,
			Indicator: p.EntryType.Opposite(),
		},
	}
	return v, nil
}

// Post builds the voucher, numbers it and writes it together with the
// opening balance row through tx. It never commits.
func (e *PostingEngine) Post(ctx context.Context, tx Tx, p OpeningPosting) (*Voucher, *OpeningBalance, error) {
	autoVerify, err := tx.AutoVerify(ctx, p.Actor.BranchID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read auto-verification policy: %w", err)
	}
	v, err := e.BuildVoucher(p, autoVerify)
	if err != nil {
		return nil, nil, err
	}
	if !v.IsBalanced() {
		debit, credit := v.Totals()
		return nil, nil, fmt.Errorf("voucher is not balanced: debit %s, credit %s", debit, credit)
	}

	no, err := e.sequencer.Next(ctx, tx, v.BranchID)
	if err != nil {
		return nil, nil, err
	}
	v.VoucherNo = no

	id, err := tx.InsertVoucher(ctx, v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert voucher: %w", err)
	}
	v.ID = id
	for i := range v.Lines {
		v.Lines[i].VoucherID = id
	}
	if err := tx.InsertVoucherLines(ctx, v.Lines); err != nil {
		return nil, nil, fmt.Errorf("failed to insert voucher lines: %w", err)
	}

	ob := &OpeningBalance{
		BranchID:  v.BranchID,
		AccountID: p.Account.ID,
		Amount:    p.Amount.Round(2),
		EntryType: p.EntryType,
		VoucherID: id,
	}
	obID, err := tx.InsertOpeningBalance(ctx, ob)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert opening balance: %w", err)
	}
	ob.ID = obID
	return v, ob, nil
}

func accountLabel(a *Account) string {
	if a.AccountNo != "" {
		return a.AccountNo
	}
	if a.Suffix > 0 {
		return fmt.Sprintf("#%d", a.Suffix)
	}
	return a.Name
}
