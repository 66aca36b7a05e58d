package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const pgUniqueViolation = "23505"

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	Pool      *pgxpool.Pool
	txTimeout time.Duration
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(pool *pgxpool.Pool, txTimeout time.Duration) *PostgresStore {
	return &PostgresStore{Pool: pool, txTimeout: txTimeout}
}

// Schema is the PostgreSQL DDL applied by Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS products (
	id BIGSERIAL PRIMARY KEY,
	branch_id BIGINT NOT NULL,
	name TEXT NOT NULL,
	account_type TEXT NOT NULL,
	uses_suffix BOOLEAN NOT NULL DEFAULT FALSE,
	principal_head_id BIGINT NOT NULL DEFAULT 0,
	principal_head_code TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS branch_settings (
	branch_id BIGINT PRIMARY KEY,
	auto_verify BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS accounts (
	id BIGSERIAL PRIMARY KEY,
	branch_id BIGINT NOT NULL,
	account_type TEXT NOT NULL,
	product_id BIGINT NOT NULL DEFAULT 0,
	head_id BIGINT NOT NULL DEFAULT 0,
	head_code TEXT NOT NULL DEFAULT '',
	account_no TEXT NOT NULL DEFAULT '',
	suffix BIGINT NOT NULL DEFAULT 0,
	name TEXT NOT NULL DEFAULT '',
	member_id BIGINT NOT NULL DEFAULT 0,
	opened_on DATE NOT NULL,
	is_closed BOOLEAN NOT NULL DEFAULT FALSE,
	created_by BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_accounts_branch_type_no ON accounts(branch_id, account_type, account_no)
	WHERE account_no <> '';
CREATE INDEX IF NOT EXISTS idx_accounts_branch_product_suffix ON accounts(branch_id, account_type, product_id, suffix);

CREATE TABLE IF NOT EXISTS account_ownership (
	id BIGSERIAL PRIMARY KEY,
	branch_id BIGINT NOT NULL,
	account_id BIGINT NOT NULL REFERENCES accounts(id),
	kind TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	relation TEXT NOT NULL DEFAULT '',
	member_id BIGINT NOT NULL DEFAULT 0,
	share_percent NUMERIC(5,2) NOT NULL DEFAULT 0,
	address TEXT NOT NULL DEFAULT '',
	instruction TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_account_ownership_account ON account_ownership(account_id);

CREATE TABLE IF NOT EXISTS vouchers (
	id BIGSERIAL PRIMARY KEY,
	branch_id BIGINT NOT NULL,
	voucher_no BIGINT NOT NULL,
	voucher_date DATE NOT NULL,
	narration TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	voucher_type TEXT NOT NULL,
	sub_type TEXT NOT NULL,
	created_by BIGINT NOT NULL,
	verified_by BIGINT,
	created_at TIMESTAMPTZ NOT NULL,
	verified_at TIMESTAMPTZ,
	UNIQUE (branch_id, voucher_no),
	CHECK (status <> 'Verified' OR verified_by IS NOT NULL)
);

CREATE TABLE IF NOT EXISTS voucher_lines (
	id BIGSERIAL PRIMARY KEY,
	voucher_id BIGINT NOT NULL REFERENCES vouchers(id),
	seq INT NOT NULL,
	account_id BIGINT NOT NULL REFERENCES accounts(id),
	head_id BIGINT NOT NULL,
	head_code TEXT NOT NULL,
	amount NUMERIC(18,2) NOT NULL,
	indicator TEXT NOT NULL CHECK (indicator IN ('Dr', 'Cr'))
);

CREATE INDEX IF NOT EXISTS idx_voucher_lines_account ON voucher_lines(account_id);

CREATE TABLE IF NOT EXISTS opening_balances (
	id BIGSERIAL PRIMARY KEY,
	branch_id BIGINT NOT NULL,
	account_id BIGINT NOT NULL UNIQUE REFERENCES accounts(id),
	amount NUMERIC(18,2) NOT NULL,
	entry_type TEXT NOT NULL CHECK (entry_type IN ('Dr', 'Cr')),
	voucher_id BIGINT REFERENCES vouchers(id)
);

CREATE TABLE IF NOT EXISTS voucher_counters (
	branch_id BIGINT PRIMARY KEY,
	last_no BIGINT NOT NULL
);
`

// Migrate applies Schema. It is idempotent.
func (ps *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := ps.Pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// RunInTx runs fn in a READ COMMITTED transaction. Voucher numbering relies on
// the counter row lock, not on the isolation level.
func (ps *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx, cancel := txContext(ctx, ps.txTimeout)
	defer cancel()

	tx, err := ps.Pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return describePgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", describePgError(err))
	}
	return nil
}

// describePgError adds the SQLSTATE and constraint to driver errors so they
// show up in the persistence detail that gets logged.
func describePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.ConstraintName != "" {
			return fmt.Errorf("%w (sqlstate %s, constraint %s)", err, pgErr.Code, pgErr.ConstraintName)
		}
		return fmt.Errorf("%w (sqlstate %s)", err, pgErr.Code)
	}
	return err
}

// FindCollisions returns existing accounts sharing an identifier with q.
func (ps *PostgresStore) FindCollisions(ctx context.Context, q DuplicateQuery) ([]Collision, error) {
	return pgCollisions(ctx, ps.Pool, q)
}

func pgCollisions(ctx context.Context, db pgQuerier, q DuplicateQuery) ([]Collision, error) {
	var (
		parts []string
		args  = []interface{}{q.BranchID, string(q.Type)}
	)
	if q.AccountNo != "" {
		args = append(args, q.AccountNo)
		parts = append(parts, fmt.Sprintf(`SELECT 'number', id, account_no FROM accounts
			WHERE branch_id = $1 AND account_type = $2 AND account_no = $%d`, len(args)))
	}
	if q.CheckSuffix {
		args = append(args, q.ProductID, q.Suffix)
		parts = append(parts, fmt.Sprintf(`SELECT 'suffix', id, suffix::text FROM accounts
			WHERE branch_id = $1 AND account_type = $2 AND product_id = $%d AND suffix = $%d`, len(args)-1, len(args)))
	}
	if q.CheckName {
		args = append(args, q.Name)
		parts = append(parts, fmt.Sprintf(`SELECT 'name', id, name FROM accounts
			WHERE branch_id = $1 AND account_type = $2 AND lower(name) = lower($%d)`, len(args)))
	}
	if len(parts) == 0 {
		return nil, nil
	}

	rows, err := db.Query(ctx, strings.Join(parts, "\nUNION ALL\n"), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query collisions: %w", err)
	}
	defer rows.Close()

	var out []Collision
	for rows.Next() {
		var c Collision
		var field string
		if err := rows.Scan(&field, &c.AccountID, &c.Value); err != nil {
			return nil, fmt.Errorf("failed to scan collision: %w", err)
		}
		c.Field = DuplicateField(field)
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetProduct retrieves a product of a branch.
func (ps *PostgresStore) GetProduct(ctx context.Context, branchID, productID int64) (*Product, error) {
	var p Product
	var typ string
	err := ps.Pool.QueryRow(ctx, `
		SELECT id, branch_id, name, account_type, uses_suffix, principal_head_id, principal_head_code
		FROM products WHERE branch_id = $1 AND id = $2
	`, branchID, productID).Scan(&p.ID, &p.BranchID, &p.Name, &typ, &p.UsesSuffix, &p.PrincipalHeadID, &p.PrincipalHeadCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	p.Type = AccountType(typ)
	return &p, nil
}

const pgAccountColumns = `id, branch_id, account_type, product_id, head_id, head_code, account_no, suffix,
	name, member_id, opened_on, is_closed, created_by, created_at`

func scanPgAccount(row pgx.Row) (*Account, error) {
	var a Account
	var typ string
	if err := row.Scan(&a.ID, &a.BranchID, &typ, &a.ProductID, &a.HeadID, &a.HeadCode, &a.AccountNo, &a.Suffix,
		&a.Name, &a.MemberID, &a.OpenedOn, &a.IsClosed, &a.CreatedBy, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Type = AccountType(typ)
	return &a, nil
}

// GetAccount retrieves an account of a branch with its ownership records.
func (ps *PostgresStore) GetAccount(ctx context.Context, branchID, accountID int64) (*Account, error) {
	a, err := scanPgAccount(ps.Pool.QueryRow(ctx,
		`SELECT `+pgAccountColumns+` FROM accounts WHERE branch_id = $1 AND id = $2`, branchID, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	rows, err := ps.Pool.Query(ctx, `
		SELECT id, branch_id, account_id, kind, name, relation, member_id, share_percent::text, address, instruction
		FROM account_ownership WHERE account_id = $1 ORDER BY id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ownership records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r OwnershipRecord
		var kind, share string
		if err := rows.Scan(&r.ID, &r.BranchID, &r.AccountID, &kind, &r.Name, &r.Relation, &r.MemberID,
			&share, &r.Address, &r.Instruction); err != nil {
			return nil, fmt.Errorf("failed to scan ownership record: %w", err)
		}
		r.Kind = OwnershipKind(kind)
		if r.SharePercent, err = parseDecimal(share); err != nil {
			return nil, err
		}
		a.Ownership = append(a.Ownership, r)
	}
	return a, rows.Err()
}

const pgVoucherColumns = `id, branch_id, voucher_no, voucher_date, narration, status, voucher_type, sub_type,
	created_by, verified_by, created_at, verified_at`

func scanPgVoucher(row pgx.Row) (*Voucher, error) {
	var v Voucher
	var status string
	if err := row.Scan(&v.ID, &v.BranchID, &v.VoucherNo, &v.VoucherDate, &v.Narration, &status, &v.Type, &v.SubType,
		&v.CreatedBy, &v.VerifiedBy, &v.CreatedAt, &v.VerifiedAt); err != nil {
		return nil, err
	}
	v.Status = VoucherStatus(status)
	return &v, nil
}

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func pgVoucher(ctx context.Context, q pgQuerier, branchID, voucherID int64, lock bool) (*Voucher, error) {
	query := `SELECT ` + pgVoucherColumns + ` FROM vouchers WHERE branch_id = $1 AND id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	v, err := scanPgVoucher(q.QueryRow(ctx, query, branchID, voucherID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}
	lines, err := pgLines(ctx, q, `WHERE l.voucher_id = $1`, voucherID)
	if err != nil {
		return nil, err
	}
	v.Lines = lines[voucherID]
	return v, nil
}

func pgLines(ctx context.Context, q pgQuerier, where string, arg int64) (map[int64][]VoucherLine, error) {
	rows, err := q.Query(ctx, `
		SELECT l.id, l.voucher_id, l.seq, l.account_id, l.head_id, l.head_code, l.amount::text, l.indicator
		FROM voucher_lines l JOIN vouchers v ON v.id = l.voucher_id
		`+where+`
		ORDER BY l.voucher_id, l.seq
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query voucher lines: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]VoucherLine)
	for rows.Next() {
		var l VoucherLine
		var amount, indicator string
		if err := rows.Scan(&l.ID, &l.VoucherID, &l.Seq, &l.AccountID, &l.HeadID, &l.HeadCode, &amount, &indicator); err != nil {
			return nil, fmt.Errorf("failed to scan voucher line: %w", err)
		}
		if l.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		l.Indicator = EntryType(indicator)
		out[l.VoucherID] = append(out[l.VoucherID], l)
	}
	return out, rows.Err()
}

// GetVoucher retrieves a voucher of a branch with its lines.
func (ps *PostgresStore) GetVoucher(ctx context.Context, branchID, voucherID int64) (*Voucher, error) {
	return pgVoucher(ctx, ps.Pool, branchID, voucherID, false)
}

// ListVouchers returns every voucher of a branch in insertion order, with lines.
func (ps *PostgresStore) ListVouchers(ctx context.Context, branchID int64) ([]*Voucher, error) {
	rows, err := ps.Pool.Query(ctx,
		`SELECT `+pgVoucherColumns+` FROM vouchers WHERE branch_id = $1 ORDER BY id`, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list vouchers: %w", err)
	}
	var vouchers []*Voucher
	for rows.Next() {
		v, err := scanPgVoucher(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan voucher: %w", err)
		}
		vouchers = append(vouchers, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines, err := pgLines(ctx, ps.Pool, `WHERE v.branch_id = $1`, branchID)
	if err != nil {
		return nil, err
	}
	for _, v := range vouchers {
		v.Lines = lines[v.ID]
	}
	return vouchers, nil
}

// AutoVerify reports whether new vouchers of the branch are verified on posting.
func (ps *PostgresStore) AutoVerify(ctx context.Context, branchID int64) (bool, error) {
	return pgAutoVerify(ctx, ps.Pool, branchID)
}

func pgAutoVerify(ctx context.Context, db pgQuerier, branchID int64) (bool, error) {
	var enabled bool
	err := db.QueryRow(ctx,
		`SELECT auto_verify FROM branch_settings WHERE branch_id = $1`, branchID).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read branch settings: %w", err)
	}
	return enabled, nil
}

// HeadLabel returns the name of the general ledger account numbered headCode.
func (ps *PostgresStore) HeadLabel(ctx context.Context, branchID int64, headCode string) (string, error) {
	var name string
	err := ps.Pool.QueryRow(ctx, `
		SELECT name FROM accounts
		WHERE branch_id = $1 AND account_type = $2 AND account_no = $3
		ORDER BY id LIMIT 1
	`, branchID, string(AccountTypeGeneral), headCode).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read head label: %w", err)
	}
	return name, nil
}

type pgTx struct {
	tx pgx.Tx
}

// LockBranch takes a transaction-scoped advisory lock keyed by the branch id.
func (t *pgTx) LockBranch(ctx context.Context, branchID int64) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1::bigint)`, branchID)
	return err
}

func (t *pgTx) FindCollisions(ctx context.Context, q DuplicateQuery) ([]Collision, error) {
	return pgCollisions(ctx, t.tx, q)
}

func (t *pgTx) AutoVerify(ctx context.Context, branchID int64) (bool, error) {
	return pgAutoVerify(ctx, t.tx, branchID)
}

func (t *pgTx) InsertAccount(ctx context.Context, a *Account) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO accounts (branch_id, account_type, product_id, head_id, head_code, account_no, suffix,
			name, member_id, opened_on, is_closed, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, a.BranchID, string(a.Type), a.ProductID, a.HeadID, a.HeadCode, a.AccountNo, a.Suffix,
		a.Name, a.MemberID, a.OpenedOn, a.IsClosed, a.CreatedBy, a.CreatedAt).Scan(&id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "ux_accounts_branch_type_no" {
		return 0, duplicateNumber(a)
	}
	return id, err
}

func (t *pgTx) LockAccount(ctx context.Context, branchID, accountID int64) (*Account, error) {
	a, err := scanPgAccount(t.tx.QueryRow(ctx,
		`SELECT `+pgAccountColumns+` FROM accounts WHERE branch_id = $1 AND id = $2 FOR UPDATE`, branchID, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	return a, nil
}

func (t *pgTx) DeleteAccount(ctx context.Context, branchID, accountID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM accounts WHERE branch_id = $1 AND id = $2`, branchID, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) CountLinesForAccount(ctx context.Context, accountID int64) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM voucher_lines WHERE account_id = $1`, accountID).Scan(&n)
	return n, err
}

func (t *pgTx) InsertOwnership(ctx context.Context, records []OwnershipRecord) error {
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO account_ownership (branch_id, account_id, kind, name, relation, member_id, share_percent, address, instruction)
			VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8, $9)
			RETURNING id
		`, r.BranchID, r.AccountID, string(r.Kind), r.Name, r.Relation, r.MemberID, r.SharePercent.String(), r.Address, r.Instruction)
	}
	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()

	for i := range records {
		if err := br.QueryRow().Scan(&records[i].ID); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) DeleteOwnership(ctx context.Context, accountID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM account_ownership WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) InsertOpeningBalance(ctx context.Context, ob *OpeningBalance) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO opening_balances (branch_id, account_id, amount, entry_type, voucher_id)
		VALUES ($1, $2, $3::text::numeric, $4, $5)
		RETURNING id
	`, ob.BranchID, ob.AccountID, ob.Amount.StringFixed(2), string(ob.EntryType), ob.VoucherID).Scan(&id)
	return id, err
}

func (t *pgTx) DeleteOpeningBalance(ctx context.Context, accountID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM opening_balances WHERE account_id = $1`, accountID)
	return err
}

func (t *pgTx) NextVoucherNo(ctx context.Context, branchID int64) (int64, error) {
	var no int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO voucher_counters (branch_id, last_no)
		SELECT $1::bigint, COALESCE(MAX(voucher_no), 0) + 1 FROM vouchers WHERE branch_id = $1::bigint
		ON CONFLICT (branch_id) DO UPDATE SET last_no = voucher_counters.last_no + 1
		RETURNING last_no
	`, branchID).Scan(&no)
	return no, err
}

func (t *pgTx) InsertVoucher(ctx context.Context, v *Voucher) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO vouchers (branch_id, voucher_no, voucher_date, narration, status, voucher_type, sub_type,
			created_by, verified_by, created_at, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, v.BranchID, v.VoucherNo, v.VoucherDate, v.Narration, string(v.Status), v.Type, v.SubType,
		v.CreatedBy, v.VerifiedBy, v.CreatedAt, v.VerifiedAt).Scan(&id)
	return id, err
}

func (t *pgTx) InsertVoucherLines(ctx context.Context, lines []VoucherLine) error {
	rows := make([][]interface{}, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, []interface{}{l.VoucherID, l.Seq, l.AccountID, l.HeadID, l.HeadCode, l.Amount.StringFixed(2), string(l.Indicator)})
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO voucher_lines (voucher_id, seq, account_id, head_id, head_code, amount, indicator)
			VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7)
		`, r...)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *pgTx) LockVoucher(ctx context.Context, branchID, voucherID int64) (*Voucher, error) {
	return pgVoucher(ctx, t.tx, branchID, voucherID, true)
}

func (t *pgTx) MarkVerified(ctx context.Context, voucherID, verifierID int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE vouchers SET status = $1, verified_by = $2, verified_at = $3
		WHERE id = $4 AND status = $5
	`, string(StatusVerified), verifierID, at, voucherID, string(StatusAwaitingVerification))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var status string
	err = t.tx.QueryRow(ctx, `SELECT status FROM vouchers WHERE id = $1`, voucherID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return &InvalidStatusTransitionError{VoucherID: voucherID, From: VoucherStatus(status), To: StatusVerified}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad amount %q: %w", s, err)
	}
	return d, nil
}

var _ Store = (*PostgresStore)(nil)
