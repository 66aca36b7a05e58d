package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when an account or voucher does not exist in the actor's branch.
var ErrNotFound = errors.New("not found")

// DuplicateField names an account identifier that already exists.
type DuplicateField string

const (
	FieldName   DuplicateField = "name"
	FieldNumber DuplicateField = "number"
	FieldSuffix DuplicateField = "suffix"
)

// Collision describes one existing account that clashes with a proposed one.
type Collision struct {
	Field     DuplicateField `json:"field"`
	Value     string         `json:"value"`
	AccountID int64          `json:"account_id"`
}

// DuplicateError is returned before any write when an account identifier is taken.
type DuplicateError struct {
	BranchID   int64
	Collisions []Collision
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("account already exists in branch %d: duplicate %s", e.BranchID, strings.Join(e.FieldNames(), ", "))
}

// FieldNames returns the distinct colliding fields in report order.
func (e *DuplicateError) FieldNames() []string {
	seen := make(map[DuplicateField]bool, len(e.Collisions))
	var out []string
	for _, c := range e.Collisions {
		if seen[c.Field] {
			continue
		}
		seen[c.Field] = true
		out = append(out, string(c.Field))
	}
	return out
}

// MisconfiguredProductError is returned when posting heads are not configured.
type MisconfiguredProductError struct {
	BranchID  int64
	ProductID int64
	Reason    string
}

func (e *MisconfiguredProductError) Error() string {
	return fmt.Sprintf("product %d in branch %d is not configured for posting: %s", e.ProductID, e.BranchID, e.Reason)
}

// PersistenceError wraps any failure of the transactional write phase. The
// message is deliberately generic; the cause is kept for logging.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": changes could not be saved"
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Detail returns the underlying error text for internal logs.
func (e *PersistenceError) Detail() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// InvalidRequestError reports malformed input caught before any read or write.
type InvalidRequestError struct {
	Field   string
	Message string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// AccountInUseError is returned when deleting an account that ledger lines reference.
type AccountInUseError struct {
	AccountID int64
	Lines     int64
}

func (e *AccountInUseError) Error() string {
	return fmt.Sprintf("account %d is referenced by %d voucher lines", e.AccountID, e.Lines)
}

// InvalidStatusTransitionError represents a voucher status change that is not allowed.
type InvalidStatusTransitionError struct {
	VoucherID int64
	From      VoucherStatus
	To        VoucherStatus
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s for voucher %d", e.From, e.To, e.VoucherID)
}

// SelfVerificationError is returned when the maker of a voucher tries to verify it.
type SelfVerificationError struct {
	VoucherID int64
	UserID    int64
}

func (e *SelfVerificationError) Error() string {
	return fmt.Sprintf("user %d created voucher %d and cannot verify it", e.UserID, e.VoucherID)
}

// Outcome labels an operation result for metrics and logs.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	var (
		dup       *DuplicateError
		misconf   *MisconfiguredProductError
		invalid   *InvalidRequestError
		inUse     *AccountInUseError
		badStatus *InvalidStatusTransitionError
		self      *SelfVerificationError
	)
	switch {
	case errors.As(err, &dup):
		return "duplicate"
	case errors.As(err, &misconf):
		return "misconfigured"
	case errors.As(err, &invalid):
		return "invalid"
	case errors.As(err, &inUse):
		return "in_use"
	case errors.As(err, &badStatus), errors.As(err, &self):
		return "rejected"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "persistence"
	}
}
