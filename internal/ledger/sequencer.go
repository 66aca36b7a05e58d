package ledger

import (
	"context"
	"fmt"
)

// VoucherSequencer hands out per-branch voucher numbers. It must be called
// with the transaction that persists the voucher: the counter row stays
// locked until that transaction ends.
type VoucherSequencer struct{}

// NewVoucherSequencer creates a sequencer.
func NewVoucherSequencer() *VoucherSequencer {
	return &VoucherSequencer{}
}

// Next returns the next voucher number for branchID. A branch without vouchers starts at 1.
func (s *VoucherSequencer) Next(ctx context.Context, tx Tx, branchID int64) (int64, error) {
	no, err := tx.NextVoucherNo(ctx, branchID)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate voucher number: %w", err)
	}
	if no < 1 {
		return 0, fmt.Errorf("voucher counter for branch %d returned %d", branchID, no)
	}
	return no, nil
}
