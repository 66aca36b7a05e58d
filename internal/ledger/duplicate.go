package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type collisionFinder interface {
	FindCollisions(ctx context.Context, q DuplicateQuery) ([]Collision, error)
}

// DuplicateGuard rejects account identifiers that are already taken in a branch.
// It never writes.
type DuplicateGuard struct {
	reader Reader
}

// NewDuplicateGuard creates a guard over the given reader.
func NewDuplicateGuard(reader Reader) *DuplicateGuard {
	return &DuplicateGuard{reader: reader}
}

// Check compares q against committed accounts. It returns the normalized query
// for CheckTx and, when an identifier collides, a *DuplicateError listing the
// colliding fields. Suffixes are compared within the product only for products
// that number accounts by suffix; names only for general ledger accounts.
func (g *DuplicateGuard) Check(ctx context.Context, q DuplicateQuery) (DuplicateQuery, error) {
	q.AccountNo = strings.TrimSpace(q.AccountNo)
	q.Name = strings.TrimSpace(q.Name)
	q.CheckName = q.Type == AccountTypeGeneral && q.Name != ""
	q.CheckSuffix = false
	if q.Suffix > 0 {
		product, err := g.reader.GetProduct(ctx, q.BranchID, q.ProductID)
		switch {
		case errors.Is(err, ErrNotFound):
			// the head resolver reports the missing product
		case err != nil:
			return q, &PersistenceError{Op: "check duplicates", Err: err}
		default:
			q.CheckSuffix = product.UsesSuffix
		}
	}

	err := collide(ctx, g.reader, q)
	var dup *DuplicateError
	if err != nil && !errors.As(err, &dup) {
		return q, &PersistenceError{Op: "check duplicates", Err: err}
	}
	return q, err
}

// CheckTx repeats the comparison for a query returned by Check inside tx,
// after taking the branch lock. Two concurrent openings of the same
// identifier cannot both pass it.
func (g *DuplicateGuard) CheckTx(ctx context.Context, tx Tx, q DuplicateQuery) error {
	if err := tx.LockBranch(ctx, q.BranchID); err != nil {
		return fmt.Errorf("failed to lock branch %d: %w", q.BranchID, err)
	}
	return collide(ctx, tx, q)
}

func collide(ctx context.Context, finder collisionFinder, q DuplicateQuery) error {
	collisions, err := finder.FindCollisions(ctx, q)
	if err != nil {
		return err
	}
	if len(collisions) == 0 {
		return nil
	}
	return &DuplicateError{BranchID: q.BranchID, Collisions: collisions}
}

// duplicateNumber is the error for an insert refused by the account number index.
func duplicateNumber(a *Account) *DuplicateError {
	return &DuplicateError{
		BranchID:   a.BranchID,
		Collisions: []Collision{{Field: FieldNumber, Value: a.AccountNo}},
	}
}
