package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies an account by the product family it belongs to.
type AccountType string

const (
	AccountTypeGeneral          AccountType = "general"
	AccountTypeSaving           AccountType = "saving"
	AccountTypeFixedDeposit     AccountType = "fixed_deposit"
	AccountTypeRecurringDeposit AccountType = "recurring_deposit"
	AccountTypeLoan             AccountType = "loan"
	AccountTypeShare            AccountType = "share"
)

// IsValid reports whether t is one of the known account types.
func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeGeneral, AccountTypeSaving, AccountTypeFixedDeposit,
		AccountTypeRecurringDeposit, AccountTypeLoan, AccountTypeShare:
		return true
	}
	return false
}

// EntryType is the debit/credit side of an amount.
type EntryType string

const (
	Debit  EntryType = "Dr"
	Credit EntryType = "Cr"
)

// IsValid reports whether e is Dr or Cr.
func (e EntryType) IsValid() bool {
	return e == Debit || e == Credit
}

// Opposite returns the other side of the entry.
func (e EntryType) Opposite() EntryType {
	if e == Debit {
		return Credit
	}
	return Debit
}

// VoucherStatus is the verification state of a voucher.
type VoucherStatus string

const (
	StatusAwaitingVerification VoucherStatus = "Awaiting-Verification"
	StatusVerified             VoucherStatus = "Verified"
)

// OwnershipKind distinguishes the records an account owns.
type OwnershipKind string

const (
	KindNominee        OwnershipKind = "nominee"
	KindJointHolder    OwnershipKind = "joint_holder"
	KindWithdrawalRule OwnershipKind = "withdrawal_rule"
)

const (
	VoucherTypeJournal        = "Journal"
	VoucherSubTypeAccountOpen = "AccountOpening"
)

// Actor identifies who is acting and for which branch. It is supplied by the
// caller after authentication and trusted verbatim.
type Actor struct {
	UserID   int64 `json:"user_id"`
	BranchID int64 `json:"branch_id"`
}

// Account is a customer or general ledger account.
type Account struct {
	ID        int64       `json:"id"`
	BranchID  int64       `json:"branch_id"`
	Type      AccountType `json:"account_type"`
	ProductID int64       `json:"product_id"`
	HeadID    int64       `json:"head_id"`
	HeadCode  string      `json:"head_code"`
	AccountNo string      `json:"account_no"`
	Suffix    int64       `json:"suffix"`
	Name      string      `json:"name"`
	MemberID  int64       `json:"member_id,omitempty"`
	OpenedOn  time.Time   `json:"opened_on"`
	IsClosed  bool        `json:"is_closed"`
	CreatedBy int64       `json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`

	Ownership []OwnershipRecord `json:"ownership,omitempty"`
}

// OwnershipRecord is a nominee, joint holder or withdrawal rule attached to an account.
type OwnershipRecord struct {
	ID           int64           `json:"id"`
	BranchID     int64           `json:"branch_id"`
	AccountID    int64           `json:"account_id"`
	Kind         OwnershipKind   `json:"kind"`
	Name         string          `json:"name"`
	Relation     string          `json:"relation,omitempty"`
	MemberID     int64           `json:"member_id,omitempty"`
	SharePercent decimal.Decimal `json:"share_percent"`
	Address      string          `json:"address,omitempty"`
	Instruction  string          `json:"instruction,omitempty"`
}

// OwnershipSet groups the ownership records supplied with an account.
type OwnershipSet struct {
	Nominees        []OwnershipRecord `json:"nominees,omitempty"`
	JointHolders    []OwnershipRecord `json:"joint_holders,omitempty"`
	WithdrawalRules []OwnershipRecord `json:"withdrawal_rules,omitempty"`
}

// Records flattens the set, stamping each record with its kind.
func (s OwnershipSet) Records() []OwnershipRecord {
	out := make([]OwnershipRecord, 0, len(s.Nominees)+len(s.JointHolders)+len(s.WithdrawalRules))
	for _, r := range s.Nominees {
		r.Kind = KindNominee
		out = append(out, r)
	}
	for _, r := range s.JointHolders {
		r.Kind = KindJointHolder
		out = append(out, r)
	}
	for _, r := range s.WithdrawalRules {
		r.Kind = KindWithdrawalRule
		out = append(out, r)
	}
	return out
}

// OpeningBalance records the funded amount of an account at opening time.
type OpeningBalance struct {
	ID        int64           `json:"id"`
	BranchID  int64           `json:"branch_id"`
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	EntryType EntryType       `json:"entry_type"`
	VoucherID int64           `json:"voucher_id"`
}

// Voucher is a dated accounting document grouping balanced lines.
type Voucher struct {
	ID          int64         `json:"id"`
	BranchID    int64         `json:"branch_id"`
	VoucherNo   int64         `json:"voucher_no"`
	VoucherDate time.Time     `json:"voucher_date"`
	Narration   string        `json:"narration"`
	Status      VoucherStatus `json:"status"`
	Type        string        `json:"voucher_type"`
	SubType     string        `json:"sub_type"`
	CreatedBy   int64         `json:"created_by"`
	VerifiedBy  *int64        `json:"verified_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	VerifiedAt  *time.Time    `json:"verified_at,omitempty"`

	Lines []VoucherLine `json:"lines,omitempty"`
}

// Totals returns the debit and credit sums of the voucher lines.
func (v *Voucher) Totals() (debit, credit decimal.Decimal) {
	for _, l := range v.Lines {
		switch l.Indicator {
		case Debit:
			debit = debit.Add(l.Amount)
		case Credit:
			credit = credit.Add(l.Amount)
		}
	}
	return debit, credit
}

// IsBalanced reports whether debits equal credits and both sides are present.
func (v *Voucher) IsBalanced() bool {
	debit, credit := v.Totals()
	return debit.IsPositive() && debit.Equal(credit)
}

// VoucherLine is one debit or credit entry of a voucher.
type VoucherLine struct {
	ID        int64           `json:"id"`
	VoucherID int64           `json:"voucher_id"`
	Seq       int             `json:"seq"`
	AccountID int64           `json:"account_id"`
	HeadID    int64           `json:"head_id"`
	HeadCode  string          `json:"head_code"`
	HeadLabel string          `json:"head_label,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Indicator EntryType       `json:"indicator"`
}

// Product is the subset of product configuration the posting path needs.
type Product struct {
	ID                int64       `json:"id"`
	BranchID          int64       `json:"branch_id"`
	Name              string      `json:"name"`
	Type              AccountType `json:"account_type"`
	UsesSuffix        bool        `json:"uses_suffix"`
	PrincipalHeadID   int64       `json:"principal_head_id"`
	PrincipalHeadCode string      `json:"principal_head_code"`
}

// DateOnly strips the time of day, keeping the calendar day as seen in t's location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
