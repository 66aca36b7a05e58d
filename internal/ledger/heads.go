package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// PostingHeads are the ledger heads an opening balance posts against.
type PostingHeads struct {
	Product *Product
	// Funding is nil when no opening amount is posted.
	Funding *Account
}

// PostingHeadResolver looks up the heads a product posts principal to.
type PostingHeadResolver struct {
	reader Reader
}

// NewPostingHeadResolver creates a resolver over the given reader.
func NewPostingHeadResolver(reader Reader) *PostingHeadResolver {
	return &PostingHeadResolver{reader: reader}
}

// Resolve returns the product's principal head and, when fundingAccountID is
// set, the funding account with its head. Any unset head is a
// *MisconfiguredProductError; nothing has been written when it is returned.
func (r *PostingHeadResolver) Resolve(ctx context.Context, branchID, productID, fundingAccountID int64) (*PostingHeads, error) {
	product, err := r.reader.GetProduct(ctx, branchID, productID)
	if errors.Is(err, ErrNotFound) {
		return nil, &MisconfiguredProductError{BranchID: branchID, ProductID: productID, Reason: "product does not exist in branch"}
	}
	if err != nil {
		return nil, &PersistenceError{Op: "resolve posting heads", Err: err}
	}
	if product.PrincipalHeadID <= 0 || strings.TrimSpace(product.PrincipalHeadCode) == "" {
		return nil, &MisconfiguredProductError{BranchID: branchID, ProductID: productID, Reason: "principal head is not set"}
	}

	heads := &PostingHeads{Product: product}
	if fundingAccountID == 0 {
		return heads, nil
	}

	funding, err := r.reader.GetAccount(ctx, branchID, fundingAccountID)
	if errors.Is(err, ErrNotFound) {
		return nil, &MisconfiguredProductError{
			BranchID:  branchID,
			ProductID: productID,
			Reason:    fmt.Sprintf("funding account %d does not exist in branch", fundingAccountID),
		}
	}
	if err != nil {
		return nil, &PersistenceError{Op: "resolve funding head", Err: err}
	}
	if funding.HeadID <= 0 || strings.TrimSpace(funding.HeadCode) == "" {
		return nil, &MisconfiguredProductError{
			BranchID:  branchID,
			ProductID: productID,
			Reason:    fmt.Sprintf("funding account %d has no ledger head", fundingAccountID),
		}
	}
	heads.Funding = funding
	return heads, nil
}
