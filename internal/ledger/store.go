package ledger

import (
	"context"
	"time"
)

// DefaultTxTimeout bounds a unit of work when the caller set no deadline.
const DefaultTxTimeout = 5 * time.Second

// DuplicateQuery describes the identifiers of a proposed account.
type DuplicateQuery struct {
	BranchID    int64
	ProductID   int64
	Type        AccountType
	AccountNo   string
	Suffix      int64
	Name        string
	CheckSuffix bool
	CheckName   bool
}

// Reader is the read-only side of the store. Reads never see uncommitted work.
type Reader interface {
	FindCollisions(ctx context.Context, q DuplicateQuery) ([]Collision, error)
	GetProduct(ctx context.Context, branchID, productID int64) (*Product, error)
	GetAccount(ctx context.Context, branchID, accountID int64) (*Account, error)
	GetVoucher(ctx context.Context, branchID, voucherID int64) (*Voucher, error)
	ListVouchers(ctx context.Context, branchID int64) ([]*Voucher, error)
}

// BranchPolicy is the branch-level configuration lookup.
type BranchPolicy interface {
	AutoVerify(ctx context.Context, branchID int64) (bool, error)
	HeadLabel(ctx context.Context, branchID int64, headCode string) (string, error)
}

// Tx is the pending unit of work. Nothing written through it is visible
// to other readers until the enclosing RunInTx returns nil.
type Tx interface {
	// LockBranch serializes account creation within a branch until the
	// transaction ends.
	LockBranch(ctx context.Context, branchID int64) error
	FindCollisions(ctx context.Context, q DuplicateQuery) ([]Collision, error)
	AutoVerify(ctx context.Context, branchID int64) (bool, error)

	InsertAccount(ctx context.Context, a *Account) (int64, error)
	LockAccount(ctx context.Context, branchID, accountID int64) (*Account, error)
	DeleteAccount(ctx context.Context, branchID, accountID int64) error
	CountLinesForAccount(ctx context.Context, accountID int64) (int64, error)

	InsertOwnership(ctx context.Context, records []OwnershipRecord) error
	DeleteOwnership(ctx context.Context, accountID int64) (int64, error)

	InsertOpeningBalance(ctx context.Context, ob *OpeningBalance) (int64, error)
	DeleteOpeningBalance(ctx context.Context, accountID int64) error

	NextVoucherNo(ctx context.Context, branchID int64) (int64, error)
	InsertVoucher(ctx context.Context, v *Voucher) (int64, error)
	InsertVoucherLines(ctx context.Context, lines []VoucherLine) error
	LockVoucher(ctx context.Context, branchID, voucherID int64) (*Voucher, error)
	MarkVerified(ctx context.Context, voucherID, verifierID int64, at time.Time) error
}

// Store is everything the provisioning service needs from persistence.
type Store interface {
	Reader
	BranchPolicy
	// RunInTx commits when fn returns nil and rolls back otherwise,
	// including when ctx is cancelled or its deadline passes. fn receives the
	// transaction's context, which always carries a deadline; every statement
	// of the unit of work must use it.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// txContext applies timeout when ctx carries no deadline of its own.
func txContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
