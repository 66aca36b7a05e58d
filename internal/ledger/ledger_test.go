package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

const (
	savingsHeadID   = int64(5001)
	savingsHeadCode = "500100000001"
	cashHeadID      = int64(5002)
	cashHeadCode    = "500200000002"
	fundingAccount  = int64(77)
)

var (
	maker   = Actor{UserID: 11, BranchID: 10}
	checker = Actor{UserID: 12, BranchID: 10}
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func exec(t *testing.T, db *sql.DB, query string, args ...interface{}) sql.Result {
	t.Helper()
	res, err := db.Exec(query, args...)
	require.NoError(t, err)
	return res
}

func count(t *testing.T, db *sql.DB, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}

func setAutoVerify(t *testing.T, s *SQLiteStore, branchID int64, enabled bool) {
	exec(t, s.DB(), `INSERT INTO branch_settings (branch_id, auto_verify) VALUES (?, ?)
		ON CONFLICT(branch_id) DO UPDATE SET auto_verify = excluded.auto_verify`, branchID, enabled)
}

func seedProduct(t *testing.T, s *SQLiteStore, branchID int64, typ AccountType, usesSuffix bool, headID int64, headCode string) int64 {
	t.Helper()
	res := exec(t, s.DB(), `INSERT INTO products (branch_id, name, account_type, uses_suffix, principal_head_id, principal_head_code)
		VALUES (?, ?, ?, ?, ?, ?)`, branchID, string(typ)+" product", string(typ), usesSuffix, headID, headCode)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// seedHead inserts a general ledger account whose account number is its head code.
func seedHead(t *testing.T, s *SQLiteStore, id, branchID, headID int64, headCode, name string) {
	t.Helper()
	exec(t, s.DB(), `INSERT INTO accounts (id, branch_id, account_type, product_id, head_id, head_code, account_no, name, opened_on, created_by, created_at)
		VALUES (?, ?, 'general', 0, ?, ?, ?, ?, '2020-01-01', 1, '2020-01-01T00:00:00Z')`,
		id, branchID, headID, headCode, headCode, name)
}

// fixture is branch 10 with a savings product, the cash head as account 77 and
// the savings control head.
type fixture struct {
	store     *SQLiteStore
	svc       *ProvisioningService
	productID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newTestStore(t)
	seedHead(t, store, fundingAccount, 10, cashHeadID, cashHeadCode, "Cash in Hand")
	seedHead(t, store, 78, 10, savingsHeadID, savingsHeadCode, "Savings Deposits")
	productID := seedProduct(t, store, 10, AccountTypeSaving, false, savingsHeadID, savingsHeadCode)

	svc := NewProvisioningService(store, zaptest.NewLogger(t), nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC) }
	svc.engine.now = svc.now
	return &fixture{store: store, svc: svc, productID: productID}
}

func (f *fixture) request(accountNo, amount string) OpenAccountRequest {
	req := OpenAccountRequest{
		Type:      AccountTypeSaving,
		ProductID: f.productID,
		AccountNo: accountNo,
		Name:      "Asha Rao",
		MemberID:  501,
	}
	if amount != "" {
		req.OpeningAmount = decimal.RequireFromString(amount)
		req.EntryType = Credit
		req.FundingAccountID = fundingAccount
	}
	return req
}

type tableCounts struct {
	accounts, ownership, openingBalances, vouchers, lines, counters int
}

func snapshot(t *testing.T, s *SQLiteStore) tableCounts {
	t.Helper()
	db := s.DB()
	return tableCounts{
		accounts:        count(t, db, `SELECT COUNT(*) FROM accounts`),
		ownership:       count(t, db, `SELECT COUNT(*) FROM account_ownership`),
		openingBalances: count(t, db, `SELECT COUNT(*) FROM opening_balances`),
		vouchers:        count(t, db, `SELECT COUNT(*) FROM vouchers`),
		lines:           count(t, db, `SELECT COUNT(*) FROM voucher_lines`),
		counters:        count(t, db, `SELECT COALESCE(SUM(last_no), 0) FROM voucher_counters`),
	}
}

// TestOpenAccountPostsOpeningBalance tests the branch 10 opening with a 1000.00 credit funded from account 77
func TestOpenAccountPostsOpeningBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exec(t, f.store.DB(), `INSERT INTO vouchers (branch_id, voucher_no, voucher_date, status, voucher_type, sub_type, created_by, created_at)
		VALUES (10, 41, '2026-03-01', 'Awaiting-Verification', 'Journal', 'Manual', 3, '2026-03-01T10:00:00Z')`)

	req := f.request("SB-0001", "1000.00")
	req.OpenedOn = time.Date(2026, 3, 15, 23, 30, 0, 0, time.FixedZone("IST", 19800))

	res, err := f.svc.Open(ctx, maker, req)
	require.NoError(t, err)
	require.NotNil(t, res.Voucher)
	require.NotNil(t, res.OpeningBalance)

	acc := res.Account
	assert.NotZero(t, acc.ID)
	assert.Equal(t, savingsHeadID, acc.HeadID)
	assert.Equal(t, savingsHeadCode, acc.HeadCode)

	v, err := f.store.GetVoucher(ctx, 10, res.Voucher.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.VoucherNo)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), v.VoucherDate)
	assert.Equal(t, VoucherSubTypeAccountOpen, v.SubType)
	require.Len(t, v.Lines, 2)

	credit, debit := v.Lines[0], v.Lines[1]
	assert.Equal(t, Credit, credit.Indicator)
	assert.Equal(t, acc.ID, credit.AccountID)
	assert.Equal(t, savingsHeadCode, credit.HeadCode)
	assert.True(t, decimal.RequireFromString("1000.00").Equal(credit.Amount))
	assert.Equal(t, Debit, debit.Indicator)
	assert.Equal(t, fundingAccount, debit.AccountID)
	assert.Equal(t, cashHeadCode, debit.HeadCode)
	assert.True(t, credit.Amount.Equal(debit.Amount))
	assert.True(t, v.IsBalanced())

	db := f.store.DB()
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM vouchers WHERE branch_id = 10 AND sub_type = ?`, VoucherSubTypeAccountOpen))
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM opening_balances WHERE account_id = ? AND amount = '1000.00' AND entry_type = 'Cr'`, acc.ID))
	assert.Equal(t, res.Voucher.ID, res.OpeningBalance.VoucherID)
}

// TestOpenAccountMisconfiguredHead tests that a product without a principal head writes nothing
func TestOpenAccountMisconfiguredHead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	broken := seedProduct(t, f.store, 10, AccountTypeSaving, false, 0, savingsHeadCode)
	before := snapshot(t, f.store)

	req := f.request("SB-0002", "1000.00")
	req.ProductID = broken
	_, err := f.svc.Open(ctx, maker, req)

	var misconfigured *MisconfiguredProductError
	require.ErrorAs(t, err, &misconfigured)
	assert.Equal(t, broken, misconfigured.ProductID)
	assert.Equal(t, "misconfigured", Outcome(err))
	assert.Equal(t, before, snapshot(t, f.store))
}

// TestOpenAccountFundingWithoutHead tests that a funding account with no ledger head is a configuration error
func TestOpenAccountFundingWithoutHead(t *testing.T) {
	f := newFixture(t)
	seedHead(t, f.store, 90, 10, 0, "", "Suspense")
	before := snapshot(t, f.store)

	req := f.request("SB-0003", "50.00")
	req.FundingAccountID = 90
	_, err := f.svc.Open(context.Background(), maker, req)

	var misconfigured *MisconfiguredProductError
	require.ErrorAs(t, err, &misconfigured)
	assert.Equal(t, before, snapshot(t, f.store))
}

// TestOpenAccountDuplicates tests duplicate detection per identifier
func TestOpenAccountDuplicates(t *testing.T) {
	ctx := context.Background()

	t.Run("account number in same branch", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Open(ctx, maker, f.request("SB-0100", "10.00"))
		require.NoError(t, err)
		before := snapshot(t, f.store)

		_, err = f.svc.Open(ctx, maker, f.request("SB-0100", "10.00"))
		var dup *DuplicateError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, []string{"number"}, dup.FieldNames())
		assert.Equal(t, before, snapshot(t, f.store))
	})

	t.Run("same number in another branch is allowed", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Open(ctx, maker, f.request("SB-0100", ""))
		require.NoError(t, err)

		other := seedProduct(t, f.store, 20, AccountTypeSaving, false, savingsHeadID, savingsHeadCode)
		req := f.request("SB-0100", "")
		req.ProductID = other
		_, err = f.svc.Open(ctx, Actor{UserID: 11, BranchID: 20}, req)
		assert.NoError(t, err)
	})

	t.Run("suffix within a suffix product", func(t *testing.T) {
		f := newFixture(t)
		loans := seedProduct(t, f.store, 10, AccountTypeLoan, true, 6001, "600100000001")
		req := OpenAccountRequest{Type: AccountTypeLoan, ProductID: loans, Suffix: 7, Name: "Gold loan"}
		_, err := f.svc.Open(ctx, maker, req)
		require.NoError(t, err)

		_, err = f.svc.Open(ctx, maker, req)
		var dup *DuplicateError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, []string{"suffix"}, dup.FieldNames())
	})

	t.Run("suffix ignored for products without suffixes", func(t *testing.T) {
		f := newFixture(t)
		req := f.request("", "")
		req.Suffix = 3
		_, err := f.svc.Open(ctx, maker, req)
		require.NoError(t, err)

		_, err = f.svc.Open(ctx, maker, req)
		assert.NoError(t, err)
	})

	t.Run("general ledger names", func(t *testing.T) {
		f := newFixture(t)
		gl := seedProduct(t, f.store, 10, AccountTypeGeneral, false, 7001, "700100000001")
		req := OpenAccountRequest{Type: AccountTypeGeneral, ProductID: gl, AccountNo: "700100000009", Name: "cash in hand"}

		_, err := f.svc.Open(ctx, maker, req)
		var dup *DuplicateError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, []string{"name"}, dup.FieldNames())
		assert.Equal(t, fundingAccount, dup.Collisions[0].AccountID)
	})
}

var errInjected = errors.New("injected failure")

type failingStore struct {
	*SQLiteStore
	failOn string
}

func (f *failingStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return f.SQLiteStore.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return fn(ctx, &failingTx{Tx: tx, failOn: f.failOn})
	})
}

type failingTx struct {
	Tx
	failOn string
}

// AutoVerify stands in for a statement stuck waiting on a connection.
func (f *failingTx) AutoVerify(ctx context.Context, branchID int64) (bool, error) {
	if f.failOn == "hang" {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return f.Tx.AutoVerify(ctx, branchID)
}

// LockVoucher returns the voucher as it looked before a concurrent verification.
func (f *failingTx) LockVoucher(ctx context.Context, branchID, voucherID int64) (*Voucher, error) {
	v, err := f.Tx.LockVoucher(ctx, branchID, voucherID)
	if err == nil && f.failOn == "stale_lock" {
		v.Status = StatusAwaitingVerification
		v.VerifiedBy, v.VerifiedAt = nil, nil
	}
	return v, err
}

func (f *failingTx) InsertOwnership(ctx context.Context, records []OwnershipRecord) error {
	if f.failOn == "ownership" {
		return errInjected
	}
	return f.Tx.InsertOwnership(ctx, records)
}

func (f *failingTx) InsertVoucherLines(ctx context.Context, lines []VoucherLine) error {
	if f.failOn == "voucher_lines" {
		return errInjected
	}
	return f.Tx.InsertVoucherLines(ctx, lines)
}

func (f *failingTx) InsertOpeningBalance(ctx context.Context, ob *OpeningBalance) (int64, error) {
	if f.failOn == "opening_balance" {
		return 0, errInjected
	}
	return f.Tx.InsertOpeningBalance(ctx, ob)
}

// TestOpenAccountAtomicity tests that a failure at any write step leaves no trace
func TestOpenAccountAtomicity(t *testing.T) {
	for _, step := range []string{"ownership", "voucher_lines", "opening_balance"} {
		t.Run(step, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			before := snapshot(t, f.store)

			failing := NewProvisioningService(&failingStore{SQLiteStore: f.store, failOn: step}, zaptest.NewLogger(t), nil)
			req := f.request("SB-0200", "250.00")
			req.Ownership = OwnershipSet{
				Nominees: []OwnershipRecord{{Name: "Ravi Rao", Relation: "son", SharePercent: decimal.NewFromInt(100)}},
			}

			_, err := failing.Open(ctx, maker, req)
			var perr *PersistenceError
			require.ErrorAs(t, err, &perr)
			assert.ErrorIs(t, err, errInjected)
			assert.Contains(t, perr.Detail(), "injected failure")
			assert.NotContains(t, err.Error(), "injected")
			assert.Equal(t, before, snapshot(t, f.store))

			// the number that was rolled back is handed out again
			res, err := f.svc.Open(ctx, maker, req)
			require.NoError(t, err)
			assert.Equal(t, int64(1), res.Voucher.VoucherNo)
		})
	}
}

// TestOpenAccountCancelledContext tests that a cancelled caller rolls the unit of work back
func TestOpenAccountCancelledContext(t *testing.T) {
	f := newFixture(t)
	before := snapshot(t, f.store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Open(ctx, maker, f.request("SB-0300", "10.00"))
	require.Error(t, err)
	assert.Equal(t, before, snapshot(t, f.store))
}

// TestOpenAccountTransactionDeadline tests that a statement blocked inside the
// transaction is cut off by the transaction timeout and rolled back
func TestOpenAccountTransactionDeadline(t *testing.T) {
	f := newFixture(t)
	before := snapshot(t, f.store)

	short := &SQLiteStore{db: f.store.DB(), txTimeout: 200 * time.Millisecond}
	hanging := NewProvisioningService(&failingStore{SQLiteStore: short, failOn: "hang"}, zaptest.NewLogger(t), nil)

	start := time.Now()
	_, err := hanging.Open(context.Background(), maker, f.request("SB-0310", "10.00"))
	elapsed := time.Since(start)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 3*time.Second)
	assert.Equal(t, before, snapshot(t, f.store))

	res, err := f.svc.Open(context.Background(), maker, f.request("SB-0310", "10.00"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Voucher.VoucherNo)
}

// TestVerificationGating tests voucher status under both branch policies
func TestVerificationGating(t *testing.T) {
	ctx := context.Background()

	t.Run("auto verification enabled", func(t *testing.T) {
		f := newFixture(t)
		setAutoVerify(t, f.store, 10, true)

		res, err := f.svc.Open(ctx, maker, f.request("SB-0400", "100.00"))
		require.NoError(t, err)
		v, err := f.store.GetVoucher(ctx, 10, res.Voucher.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusVerified, v.Status)
		require.NotNil(t, v.VerifiedBy)
		assert.Equal(t, maker.UserID, *v.VerifiedBy)
		assert.NotNil(t, v.VerifiedAt)
	})

	t.Run("auto verification disabled", func(t *testing.T) {
		f := newFixture(t)
		setAutoVerify(t, f.store, 10, false)

		res, err := f.svc.Open(ctx, maker, f.request("SB-0401", "100.00"))
		require.NoError(t, err)
		v, err := f.store.GetVoucher(ctx, 10, res.Voucher.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusAwaitingVerification, v.Status)
		assert.Nil(t, v.VerifiedBy)
		assert.Nil(t, v.VerifiedAt)
	})
}

// TestVerifyVoucher tests the maker-checker transition
func TestVerifyVoucher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Open(ctx, maker, f.request("SB-0500", "75.50"))
	require.NoError(t, err)
	id := res.Voucher.ID

	_, err = f.svc.VerifyVoucher(ctx, maker, id)
	var self *SelfVerificationError
	require.ErrorAs(t, err, &self)

	v, err := f.svc.VerifyVoucher(ctx, checker, id)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, v.Status)
	require.NotNil(t, v.VerifiedBy)
	assert.Equal(t, checker.UserID, *v.VerifiedBy)

	stored, err := f.store.GetVoucher(ctx, 10, id)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, stored.Status)

	_, err = f.svc.VerifyVoucher(ctx, checker, id)
	var transition *InvalidStatusTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, StatusVerified, transition.From)

	_, err = f.svc.VerifyVoucher(ctx, Actor{UserID: 12, BranchID: 20}, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestVerifyVoucherRefusesUnbalanced tests that a tampered voucher is never verified
func TestVerifyVoucherRefusesUnbalanced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Open(ctx, maker, f.request("SB-0501", "10.00"))
	require.NoError(t, err)
	exec(t, f.store.DB(), `UPDATE voucher_lines SET amount = '9.00' WHERE voucher_id = ? AND seq = 2`, res.Voucher.ID)

	_, err = f.svc.VerifyVoucher(ctx, checker, res.Voucher.ID)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)

	stored, err := f.store.GetVoucher(ctx, 10, res.Voucher.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingVerification, stored.Status)
}

// TestVerifyVoucherLosingRace tests that a voucher verified between lock and
// update is reported as a status conflict
func TestVerifyVoucherLosingRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Open(ctx, maker, f.request("SB-0502", "10.00"))
	require.NoError(t, err)
	_, err = f.svc.VerifyVoucher(ctx, checker, res.Voucher.ID)
	require.NoError(t, err)

	stale := NewProvisioningService(&failingStore{SQLiteStore: f.store, failOn: "stale_lock"}, zaptest.NewLogger(t), nil)
	_, err = stale.VerifyVoucher(ctx, Actor{UserID: 13, BranchID: 10}, res.Voucher.ID)
	var transition *InvalidStatusTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, StatusVerified, transition.From)
	assert.Equal(t, "rejected", Outcome(err))

	stored, err := f.store.GetVoucher(ctx, 10, res.Voucher.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.VerifiedBy)
	assert.Equal(t, checker.UserID, *stored.VerifiedBy)

	err = f.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.MarkVerified(ctx, 9999, checker.UserID, time.Now())
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestIsValidTransition tests the voucher status transitions
func TestIsValidTransition(t *testing.T) {
	assert.True(t, IsValidTransition(StatusAwaitingVerification, StatusVerified))
	assert.False(t, IsValidTransition(StatusVerified, StatusAwaitingVerification))
	assert.False(t, IsValidTransition(StatusVerified, StatusVerified))
	assert.False(t, IsValidTransition("Cancelled", StatusVerified))
}

// TestConcurrentOpeningsAreNumberedWithoutGaps tests the per-branch counter under load
func TestConcurrentOpeningsAreNumberedWithoutGaps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const n = 16

	var g errgroup.Group
	var mu sync.Mutex
	var numbers []int64
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			res, err := f.svc.Open(ctx, maker, f.request(fmt.Sprintf("SB-1%03d", i), "5.00"))
			if err != nil {
				return err
			}
			mu.Lock()
			numbers = append(numbers, res.Voucher.VoucherNo)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for i, no := range numbers {
		assert.Equal(t, int64(i+1), no)
	}

	results, err := NewValidator(f.store).ValidateBranch(ctx, 10)
	require.NoError(t, err)
	assert.True(t, AllValid(results), "%+v", results)
}

// TestConcurrentDuplicateOpenings tests that only one of several concurrent
// openings with the same account number commits
func TestConcurrentDuplicateOpenings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const n = 8

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Open(ctx, maker, f.request("SB-DUP", "1.00"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var dup *DuplicateError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, []string{"number"}, dup.FieldNames())
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, count(t, f.store.DB(), `SELECT COUNT(*) FROM accounts WHERE account_no = 'SB-DUP'`))
	assert.Equal(t, 1, count(t, f.store.DB(), `SELECT COUNT(*) FROM vouchers`))
}

// TestAccountNumberIndex tests that the store refuses a second account with
// the same number even when the guard is bypassed
func TestAccountNumberIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	insert := func(ctx context.Context, tx Tx) error {
		now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
		_, err := tx.InsertAccount(ctx, &Account{
			BranchID: 10, Type: AccountTypeSaving, ProductID: f.productID,
			HeadID: savingsHeadID, HeadCode: savingsHeadCode, AccountNo: "SB-IDX",
			OpenedOn: DateOnly(now), CreatedBy: maker.UserID, CreatedAt: now,
		})
		return err
	}

	require.NoError(t, f.store.RunInTx(ctx, insert))
	err := f.store.RunInTx(ctx, insert)
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, []string{"number"}, dup.FieldNames())
	assert.Equal(t, 1, count(t, f.store.DB(), `SELECT COUNT(*) FROM accounts WHERE account_no = 'SB-IDX'`))
}

// TestNumberingIsPerBranch tests that branches number independently
func TestNumberingIsPerBranch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedHead(t, f.store, 177, 20, cashHeadID, cashHeadCode, "Cash in Hand")
	other := seedProduct(t, f.store, 20, AccountTypeSaving, false, savingsHeadID, savingsHeadCode)

	first, err := f.svc.Open(ctx, maker, f.request("SB-2000", "1.00"))
	require.NoError(t, err)

	req := f.request("SB-2000", "1.00")
	req.ProductID = other
	req.FundingAccountID = 177
	second, err := f.svc.Open(ctx, Actor{UserID: 11, BranchID: 20}, req)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Voucher.VoucherNo)
	assert.Equal(t, int64(1), second.Voucher.VoucherNo)
}

// TestOpenAccountWithoutAmount tests that a zero opening amount posts nothing
func TestOpenAccountWithoutAmount(t *testing.T) {
	f := newFixture(t)
	before := snapshot(t, f.store)

	req := f.request("SB-0600", "")
	req.Ownership = OwnershipSet{
		JointHolders:    []OwnershipRecord{{Name: "Meera Rao", MemberID: 502}},
		WithdrawalRules: []OwnershipRecord{{Instruction: "either or survivor"}},
	}
	res, err := f.svc.Open(context.Background(), maker, req)
	require.NoError(t, err)
	assert.Nil(t, res.Voucher)
	assert.Nil(t, res.OpeningBalance)

	after := snapshot(t, f.store)
	assert.Equal(t, before.accounts+1, after.accounts)
	assert.Equal(t, before.ownership+2, after.ownership)
	assert.Equal(t, before.vouchers, after.vouchers)
	assert.Equal(t, before.openingBalances, after.openingBalances)
}

// TestReplaceOwnership tests that the ownership set is swapped wholesale
func TestReplaceOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request("SB-0700", "")
	req.Ownership = OwnershipSet{
		Nominees: []OwnershipRecord{
			{Name: "A", SharePercent: decimal.NewFromInt(50)},
			{Name: "B", SharePercent: decimal.NewFromInt(50)},
		},
	}
	res, err := f.svc.Open(ctx, maker, req)
	require.NoError(t, err)

	acc, err := f.svc.ReplaceOwnership(ctx, maker, res.Account.ID, OwnershipSet{
		Nominees: []OwnershipRecord{{Name: "C", Relation: "spouse", SharePercent: decimal.NewFromInt(100)}},
	})
	require.NoError(t, err)
	require.Len(t, acc.Ownership, 1)
	assert.Equal(t, "C", acc.Ownership[0].Name)
	assert.Equal(t, KindNominee, acc.Ownership[0].Kind)
	assert.True(t, decimal.NewFromInt(100).Equal(acc.Ownership[0].SharePercent))

	_, err = f.svc.ReplaceOwnership(ctx, maker, res.Account.ID, OwnershipSet{
		Nominees: []OwnershipRecord{{Name: "D", SharePercent: decimal.NewFromInt(40)}},
	})
	var invalid *InvalidRequestError
	require.ErrorAs(t, err, &invalid)

	_, err = f.svc.ReplaceOwnership(ctx, maker, 9999, OwnershipSet{})
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestDeleteAccount tests the ordered delete and the in-use refusal
func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plain := f.request("SB-0800", "")
	plain.Ownership = OwnershipSet{JointHolders: []OwnershipRecord{{Name: "Meera Rao"}}}
	unposted, err := f.svc.Open(ctx, maker, plain)
	require.NoError(t, err)
	posted, err := f.svc.Open(ctx, maker, f.request("SB-0801", "20.00"))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteAccount(ctx, maker, unposted.Account.ID))
	_, err = f.svc.GetAccount(ctx, maker, unposted.Account.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, count(t, f.store.DB(), `SELECT COUNT(*) FROM account_ownership WHERE account_id = ?`, unposted.Account.ID))

	before := snapshot(t, f.store)
	err = f.svc.DeleteAccount(ctx, maker, posted.Account.ID)
	var inUse *AccountInUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, int64(1), inUse.Lines)
	assert.Equal(t, before, snapshot(t, f.store))

	assert.ErrorIs(t, f.svc.DeleteAccount(ctx, maker, 9999), ErrNotFound)
}

// TestGetVoucherLabelsHeads tests that voucher lines carry their head names
func TestGetVoucherLabelsHeads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Open(ctx, maker, f.request("SB-0900", "300.00"))
	require.NoError(t, err)

	v, err := f.svc.GetVoucher(ctx, maker, res.Voucher.ID)
	require.NoError(t, err)
	require.Len(t, v.Lines, 2)
	assert.Equal(t, "Savings Deposits", v.Lines[0].HeadLabel)
	assert.Equal(t, "Cash in Hand", v.Lines[1].HeadLabel)

	_, err = f.svc.GetVoucher(ctx, Actor{UserID: 1, BranchID: 20}, res.Voucher.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestValidateOpenRequest tests request validation rules
func TestValidateOpenRequest(t *testing.T) {
	valid := OpenAccountRequest{
		Type:             AccountTypeSaving,
		ProductID:        1,
		AccountNo:        "SB-1",
		OpeningAmount:    decimal.RequireFromString("10.50"),
		EntryType:        Credit,
		FundingAccountID: 77,
	}
	require.NoError(t, ValidateOpenRequest(maker, valid))

	tests := []struct {
		name   string
		actor  Actor
		mutate func(r *OpenAccountRequest)
		field  string
	}{
		{"missing user", Actor{BranchID: 10}, func(r *OpenAccountRequest) {}, "actor.user_id"},
		{"missing branch", Actor{UserID: 1}, func(r *OpenAccountRequest) {}, "actor.branch_id"},
		{"unknown type", maker, func(r *OpenAccountRequest) { r.Type = "current" }, "account_type"},
		{"no product", maker, func(r *OpenAccountRequest) { r.ProductID = 0 }, "product_id"},
		{"no identifier", maker, func(r *OpenAccountRequest) { r.AccountNo = " " }, "account_no"},
		{"negative amount", maker, func(r *OpenAccountRequest) { r.OpeningAmount = decimal.RequireFromString("-1") }, "opening_amount"},
		{"three decimals", maker, func(r *OpenAccountRequest) { r.OpeningAmount = decimal.RequireFromString("1.005") }, "opening_amount"},
		{"bad entry type", maker, func(r *OpenAccountRequest) { r.EntryType = "Credit" }, "entry_type"},
		{"no funding", maker, func(r *OpenAccountRequest) { r.FundingAccountID = 0 }, "funding_account_id"},
		{"unnamed general account", maker, func(r *OpenAccountRequest) { r.Type = AccountTypeGeneral }, "name"},
		{"shares not 100", maker, func(r *OpenAccountRequest) {
			r.Ownership.Nominees = []OwnershipRecord{
				{Name: "A", SharePercent: decimal.NewFromInt(60)},
				{Name: "B", SharePercent: decimal.NewFromInt(30)},
			}
		}, "nominees"},
		{"rule without instruction", maker, func(r *OpenAccountRequest) {
			r.Ownership.WithdrawalRules = []OwnershipRecord{{Name: "x"}}
		}, "withdrawal_rules[0].instruction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := ValidateOpenRequest(tt.actor, req)
			var invalid *InvalidRequestError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.field, invalid.Field)
		})
	}

	trailingZeros := valid
	trailingZeros.OpeningAmount = decimal.RequireFromString("10.500")
	assert.NoError(t, ValidateOpenRequest(maker, trailingZeros))
}

// TestInvalidRequestWritesNothing tests that validation happens before any write
func TestInvalidRequestWritesNothing(t *testing.T) {
	f := newFixture(t)
	before := snapshot(t, f.store)

	req := f.request("SB-1000", "10.00")
	req.FundingAccountID = 0
	_, err := f.svc.Open(context.Background(), maker, req)
	assert.Equal(t, "invalid", Outcome(err))
	assert.Equal(t, before, snapshot(t, f.store))
}

// TestBuildVoucherSides tests which side each account lands on
func TestBuildVoucherSides(t *testing.T) {
	engine := NewPostingEngine(NewVoucherSequencer())
	account := &Account{ID: 1, HeadID: savingsHeadID, HeadCode: savingsHeadCode, AccountNo: "LN-1"}
	funding := &Account{ID: fundingAccount, HeadID: cashHeadID, HeadCode: cashHeadCode}

	for _, side := range []EntryType{Credit, Debit} {
		v, err := engine.BuildVoucher(OpeningPosting{
			Actor: maker, Account: account, Funding: funding,
			Amount: decimal.RequireFromString("1234.56"), EntryType: side,
		}, false)
		require.NoError(t, err)
		require.Len(t, v.Lines, 2)
		assert.Equal(t, side, v.Lines[0].Indicator)
		assert.Equal(t, account.ID, v.Lines[0].AccountID)
		assert.Equal(t, side.Opposite(), v.Lines[1].Indicator)
		assert.Equal(t, funding.ID, v.Lines[1].AccountID)
		assert.True(t, v.IsBalanced())
		assert.Equal(t, StatusAwaitingVerification, v.Status)
		assert.Contains(t, v.Narration, "LN-1")
	}

	_, err := engine.BuildVoucher(OpeningPosting{
		Actor: maker, Account: account, Funding: funding, Amount: decimal.Zero, EntryType: Credit,
	}, false)
	assert.Error(t, err)
}

// TestPostedVouchersBalance tests the balance invariant over many amounts
func TestPostedVouchersBalance(t *testing.T) {
	engine := NewPostingEngine(NewVoucherSequencer())
	account := &Account{ID: 1, HeadID: 1, HeadCode: "1"}
	funding := &Account{ID: 2, HeadID: 2, HeadCode: "2"}

	for cents := int64(1); cents < 100000; cents += 997 {
		amount := decimal.New(cents, -2)
		v, err := engine.BuildVoucher(OpeningPosting{
			Actor: maker, Account: account, Funding: funding, Amount: amount, EntryType: Credit,
		}, true)
		require.NoError(t, err)
		require.Equal(t, StatusVerified, v.Status)
		debit, credit := v.Totals()
		require.True(t, debit.Equal(credit), "amount %s", amount)
		require.True(t, debit.Equal(amount))
	}
}

// TestValidatorDetectsProblems tests the consistency checks on hand-built vouchers
func TestValidatorDetectsProblems(t *testing.T) {
	v := NewValidator(nil)

	unbalanced := &Voucher{ID: 1, VoucherNo: 1, Lines: []VoucherLine{
		{Amount: decimal.NewFromInt(10), Indicator: Debit},
		{Amount: decimal.NewFromInt(9), Indicator: Credit},
	}}
	r := v.ValidateVoucherBalance(unbalanced)
	assert.False(t, r.IsValid)
	assert.Equal(t, "10.00", r.Details["debit"])

	gap := []*Voucher{{ID: 1, VoucherNo: 1}, {ID: 2, VoucherNo: 3}}
	r = v.ValidateNumbering(10, gap)
	assert.False(t, r.IsValid)
	assert.Equal(t, int64(2), r.VoucherID)

	r = v.ValidateNumbering(10, []*Voucher{{ID: 5, VoucherNo: 2}, {ID: 4, VoucherNo: 1}})
	assert.True(t, r.IsValid)
}

// TestOutcome tests error labelling
func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", Outcome(nil))
	assert.Equal(t, "duplicate", Outcome(&DuplicateError{}))
	assert.Equal(t, "not_found", Outcome(fmt.Errorf("voucher %w", ErrNotFound)))
	assert.Equal(t, "rejected", Outcome(&SelfVerificationError{}))
	assert.Equal(t, "in_use", Outcome(&AccountInUseError{}))
	assert.Equal(t, "persistence", Outcome(&PersistenceError{Op: "x", Err: errInjected}))
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := OpenStore(ctx, "sqlite", filepath.Join(t.TempDir(), "open.db"), time.Second)
	require.NoError(t, err)
	defer closeFn()
	_, ok := store.(*SQLiteStore)
	assert.True(t, ok)

	_, _, err = OpenStore(ctx, "oracle", "", time.Second)
	assert.Error(t, err)

	_, _, err = OpenStore(ctx, "postgres", "://not a url", time.Second)
	assert.Error(t, err)
}
