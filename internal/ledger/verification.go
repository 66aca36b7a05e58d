package ledger

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/coop-ledger/internal/logger"
)

// AllowedTransitions defines the valid voucher status transitions.
var AllowedTransitions = map[VoucherStatus][]VoucherStatus{
	StatusAwaitingVerification: {StatusVerified},
	StatusVerified:             {},
}

// IsValidTransition checks if a transition from one status to another is allowed
func IsValidTransition(from, to VoucherStatus) bool {
	for _, allowed := range AllowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// VerifyVoucher moves a voucher from Awaiting-Verification to Verified. The
// voucher row is locked for the duration; the maker may not verify their own
// voucher and an unbalanced voucher is never verified.
func (s *ProvisioningService) VerifyVoucher(ctx context.Context, actor Actor, voucherID int64) (v *Voucher, err error) {
	ctx, span := s.tracer.Start(ctx, "ledger.VerifyVoucher", trace.WithAttributes(
		attribute.Int64("branch_id", actor.BranchID),
		attribute.Int64("voucher_id", voucherID),
	))
	start := time.Now()
	defer func() { s.finish(ctx, span, "verify_voucher", start, err) }()

	if err := ValidateActor(actor); err != nil {
		return nil, err
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		locked, err := tx.LockVoucher(ctx, actor.BranchID, voucherID)
		if err != nil {
			return err
		}
		if !IsValidTransition(locked.Status, StatusVerified) {
			return &InvalidStatusTransitionError{VoucherID: voucherID, From: locked.Status, To: StatusVerified}
		}
		if locked.CreatedBy == actor.UserID {
			return &SelfVerificationError{VoucherID: voucherID, UserID: actor.UserID}
		}
		if !locked.IsBalanced() {
			debit, credit := locked.Totals()
			return fmt.Errorf("voucher %d is not balanced: debit %s, credit %s", voucherID, debit, credit)
		}

		at := s.now().UTC()
		if err := tx.MarkVerified(ctx, voucherID, actor.UserID, at); err != nil {
			return fmt.Errorf("failed to mark voucher verified: %w", err)
		}
		verifier := actor.UserID
		locked.Status = StatusVerified
		locked.VerifiedBy = &verifier
		locked.VerifiedAt = &at
		v = locked
		return nil
	})
	if err != nil {
		return nil, txError("verify voucher", err)
	}

	logger.WithContext(ctx, s.log).Info("voucher verified",
		zap.Int64("branch_id", actor.BranchID),
		zap.Int64("voucher_id", voucherID),
		zap.Int64("voucher_no", v.VoucherNo),
		zap.Int64("verified_by", actor.UserID),
	)
	return v, nil
}
