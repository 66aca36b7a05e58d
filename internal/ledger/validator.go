package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ValidateActor checks the identity every operation is scoped by.
func ValidateActor(actor Actor) error {
	if actor.UserID <= 0 {
		return &InvalidRequestError{Field: "actor.user_id", Message: "must be positive"}
	}
	if actor.BranchID <= 0 {
		return &InvalidRequestError{Field: "actor.branch_id", Message: "must be positive"}
	}
	return nil
}

// ValidateOpenRequest checks the shape of an account opening before anything is read.
func ValidateOpenRequest(actor Actor, req OpenAccountRequest) error {
	if err := ValidateActor(actor); err != nil {
		return err
	}
	if !req.Type.IsValid() {
		return &InvalidRequestError{Field: "account_type", Message: fmt.Sprintf("unknown account type %q", req.Type)}
	}
	if req.ProductID <= 0 {
		return &InvalidRequestError{Field: "product_id", Message: "must be positive"}
	}
	if req.Suffix < 0 {
		return &InvalidRequestError{Field: "suffix", Message: "must not be negative"}
	}
	if strings.TrimSpace(req.AccountNo) == "" && req.Suffix == 0 {
		return &InvalidRequestError{Field: "account_no", Message: "account number or suffix is required"}
	}
	if len(req.AccountNo) > 50 {
		return &InvalidRequestError{Field: "account_no", Message: "must be at most 50 characters"}
	}
	if req.Type == AccountTypeGeneral && strings.TrimSpace(req.Name) == "" {
		return &InvalidRequestError{Field: "name", Message: "general ledger accounts must be named"}
	}
	if err := validateAmount(req.OpeningAmount); err != nil {
		return err
	}
	if req.OpeningAmount.IsPositive() {
		if !req.EntryType.IsValid() {
			return &InvalidRequestError{Field: "entry_type", Message: "must be Dr or Cr"}
		}
		if req.FundingAccountID <= 0 {
			return &InvalidRequestError{Field: "funding_account_id", Message: "required when an opening amount is given"}
		}
	} else if req.EntryType != "" && !req.EntryType.IsValid() {
		return &InvalidRequestError{Field: "entry_type", Message: "must be Dr or Cr"}
	}
	return ValidateOwnership(req.Ownership)
}

func validateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return &InvalidRequestError{Field: "opening_amount", Message: "must not be negative"}
	}
	if !amount.Equal(amount.Round(2)) {
		return &InvalidRequestError{Field: "opening_amount", Message: "must have at most two decimal places"}
	}
	return nil
}

// ValidateOwnership checks nominee shares and mandatory fields of an ownership set.
func ValidateOwnership(set OwnershipSet) error {
	total := decimal.Zero
	anyShare := false
	for i, n := range set.Nominees {
		if strings.TrimSpace(n.Name) == "" {
			return &InvalidRequestError{Field: fmt.Sprintf("nominees[%d].name", i), Message: "is required"}
		}
		if n.SharePercent.IsNegative() || n.SharePercent.GreaterThan(hundred) {
			return &InvalidRequestError{Field: fmt.Sprintf("nominees[%d].share_percent", i), Message: "must be between 0 and 100"}
		}
		if !n.SharePercent.IsZero() {
			anyShare = true
		}
		total = total.Add(n.SharePercent)
	}
	if anyShare && !total.Equal(hundred) {
		return &InvalidRequestError{Field: "nominees", Message: fmt.Sprintf("share percentages add up to %s, expected 100", total)}
	}
	for i, j := range set.JointHolders {
		if strings.TrimSpace(j.Name) == "" && j.MemberID <= 0 {
			return &InvalidRequestError{Field: fmt.Sprintf("joint_holders[%d]", i), Message: "name or member_id is required"}
		}
	}
	for i, w := range set.WithdrawalRules {
		if strings.TrimSpace(w.Instruction) == "" {
			return &InvalidRequestError{Field: fmt.Sprintf("withdrawal_rules[%d].instruction", i), Message: "is required"}
		}
	}
	return nil
}

// Validator checks the stored ledger against its invariants. It only reads.
type Validator struct {
	reader Reader
	now    func() time.Time
}

// NewValidator creates a new validator instance
func NewValidator(reader Reader) *Validator {
	return &Validator{
		reader: reader,
		now:    time.Now,
	}
}

// ValidationResult represents the result of a validation check
type ValidationResult struct {
	IsValid        bool                   `json:"is_valid"`
	ValidationType string                 `json:"validation_type"`
	Message        string                 `json:"message"`
	BranchID       int64                  `json:"branch_id,omitempty"`
	VoucherID      int64                  `json:"voucher_id,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// ValidateVoucherBalance checks that debits equal credits on v.
func (v *Validator) ValidateVoucherBalance(vch *Voucher) *ValidationResult {
	debit, credit := vch.Totals()
	result := &ValidationResult{
		IsValid:        vch.IsBalanced(),
		ValidationType: "voucher_balance",
		BranchID:       vch.BranchID,
		VoucherID:      vch.ID,
		Timestamp:      v.now(),
		Details: map[string]interface{}{
			"voucher_no": vch.VoucherNo,
			"debit":      debit.StringFixed(2),
			"credit":     credit.StringFixed(2),
		},
	}
	if result.IsValid {
		result.Message = fmt.Sprintf("voucher %d is balanced", vch.VoucherNo)
	} else {
		result.Message = fmt.Sprintf("voucher %d is not balanced: debit %s, credit %s",
			vch.VoucherNo, debit.StringFixed(2), credit.StringFixed(2))
	}
	return result
}

// ValidateNumbering checks that the branch's vouchers are numbered 1..N in insertion order.
func (v *Validator) ValidateNumbering(branchID int64, vouchers []*Voucher) *ValidationResult {
	ordered := make([]*Voucher, len(vouchers))
	copy(ordered, vouchers)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	result := &ValidationResult{
		IsValid:        true,
		ValidationType: "voucher_numbering",
		BranchID:       branchID,
		Timestamp:      v.now(),
		Message:        fmt.Sprintf("%d vouchers numbered without gaps", len(ordered)),
	}
	for i, vch := range ordered {
		want := int64(i + 1)
		if vch.VoucherNo != want {
			result.IsValid = false
			result.VoucherID = vch.ID
			result.Message = fmt.Sprintf("voucher %d has number %d, expected %d", vch.ID, vch.VoucherNo, want)
			result.Details = map[string]interface{}{
				"expected": want,
				"actual":   vch.VoucherNo,
			}
			break
		}
	}
	return result
}

// ValidateBranch runs every consistency check for a branch. Only failing
// voucher checks are returned, followed by the numbering check.
func (v *Validator) ValidateBranch(ctx context.Context, branchID int64) ([]*ValidationResult, error) {
	vouchers, err := v.reader.ListVouchers(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list vouchers: %w", err)
	}

	var results []*ValidationResult
	for _, vch := range vouchers {
		if r := v.ValidateVoucherBalance(vch); !r.IsValid {
			results = append(results, r)
		}
	}
	results = append(results, v.ValidateNumbering(branchID, vouchers))
	return results, nil
}

// AllValid reports whether every result passed.
func AllValid(results []*ValidationResult) bool {
	for _, r := range results {
		if !r.IsValid {
			return false
		}
	}
	return true
}
