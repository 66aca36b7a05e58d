package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

const sqliteDateLayout = "2006-01-02"

// SQLiteStore implements Store on a SQLite file. Write transactions are opened
// with BEGIN IMMEDIATE so the voucher counter upsert is serialized per database.
type SQLiteStore struct {
	db        *sql.DB
	txTimeout time.Duration
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(path string, txTimeout time.Duration) (*SQLiteStore, error) {
	dsn := path + "?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store, err := NewSQLiteStore(db, txTimeout)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an already opened database and migrates it.
func NewSQLiteStore(db *sql.DB, txTimeout time.Duration) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, txTimeout: txTimeout}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// DB exposes the underlying handle for seeding reference data.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		branch_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		account_type TEXT NOT NULL,
		uses_suffix INTEGER NOT NULL DEFAULT 0,
		principal_head_id INTEGER NOT NULL DEFAULT 0,
		principal_head_code TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS branch_settings (
		branch_id INTEGER PRIMARY KEY,
		auto_verify INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		branch_id INTEGER NOT NULL,
		account_type TEXT NOT NULL,
		product_id INTEGER NOT NULL DEFAULT 0,
		head_id INTEGER NOT NULL DEFAULT 0,
		head_code TEXT NOT NULL DEFAULT '',
		account_no TEXT NOT NULL DEFAULT '',
		suffix INTEGER NOT NULL DEFAULT 0,
		name TEXT NOT NULL DEFAULT '',
		member_id INTEGER NOT NULL DEFAULT 0,
		opened_on TEXT NOT NULL,
		is_closed INTEGER NOT NULL DEFAULT 0,
		created_by INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS ux_accounts_branch_type_no ON accounts(branch_id, account_type, account_no)
		WHERE account_no <> '';
	CREATE INDEX IF NOT EXISTS idx_accounts_branch_product_suffix ON accounts(branch_id, account_type, product_id, suffix);

	CREATE TABLE IF NOT EXISTS account_ownership (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		branch_id INTEGER NOT NULL,
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		kind TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		relation TEXT NOT NULL DEFAULT '',
		member_id INTEGER NOT NULL DEFAULT 0,
		share_percent TEXT NOT NULL DEFAULT '0',
		address TEXT NOT NULL DEFAULT '',
		instruction TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_account_ownership_account ON account_ownership(account_id);

	CREATE TABLE IF NOT EXISTS vouchers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		branch_id INTEGER NOT NULL,
		voucher_no INTEGER NOT NULL,
		voucher_date TEXT NOT NULL,
		narration TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		voucher_type TEXT NOT NULL,
		sub_type TEXT NOT NULL,
		created_by INTEGER NOT NULL,
		verified_by INTEGER,
		created_at TEXT NOT NULL,
		verified_at TEXT,
		UNIQUE(branch_id, voucher_no)
	);

	CREATE TABLE IF NOT EXISTS voucher_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		voucher_id INTEGER NOT NULL REFERENCES vouchers(id),
		seq INTEGER NOT NULL,
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		head_id INTEGER NOT NULL,
		head_code TEXT NOT NULL,
		amount TEXT NOT NULL,
		indicator TEXT NOT NULL CHECK (indicator IN ('Dr', 'Cr'))
	);

	CREATE INDEX IF NOT EXISTS idx_voucher_lines_account ON voucher_lines(account_id);

	CREATE TABLE IF NOT EXISTS opening_balances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		branch_id INTEGER NOT NULL,
		account_id INTEGER NOT NULL UNIQUE REFERENCES accounts(id),
		amount TEXT NOT NULL,
		entry_type TEXT NOT NULL CHECK (entry_type IN ('Dr', 'Cr')),
		voucher_id INTEGER REFERENCES vouchers(id)
	);

	CREATE TABLE IF NOT EXISTS voucher_counters (
		branch_id INTEGER PRIMARY KEY,
		last_no INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RunInTx runs fn in a single transaction. See Store.
func (s *SQLiteStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx, cancel := txContext(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindCollisions returns existing accounts sharing an identifier with q.
func (s *SQLiteStore) FindCollisions(ctx context.Context, q DuplicateQuery) ([]Collision, error) {
	return sqliteCollisions(ctx, s.db, q)
}

func sqliteCollisions(ctx context.Context, db sqliteQuerier, q DuplicateQuery) ([]Collision, error) {
	type check struct {
		field DuplicateField
		query string
		args  []interface{}
	}
	var checks []check
	if q.AccountNo != "" {
		checks = append(checks, check{FieldNumber,
			`SELECT id, account_no FROM accounts WHERE branch_id = ? AND account_type = ? AND account_no = ?`,
			[]interface{}{q.BranchID, string(q.Type), q.AccountNo}})
	}
	if q.CheckSuffix {
		checks = append(checks, check{FieldSuffix,
			`SELECT id, CAST(suffix AS TEXT) FROM accounts WHERE branch_id = ? AND account_type = ? AND product_id = ? AND suffix = ?`,
			[]interface{}{q.BranchID, string(q.Type), q.ProductID, q.Suffix}})
	}
	if q.CheckName {
		checks = append(checks, check{FieldName,
			`SELECT id, name FROM accounts WHERE branch_id = ? AND account_type = ? AND lower(name) = lower(?)`,
			[]interface{}{q.BranchID, string(q.Type), q.Name}})
	}

	var out []Collision
	for _, c := range checks {
		rows, err := db.QueryContext(ctx, c.query, c.args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s collisions: %w", c.field, err)
		}
		for rows.Next() {
			col := Collision{Field: c.field}
			if err := rows.Scan(&col.AccountID, &col.Value); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan collision: %w", err)
			}
			out = append(out, col)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetProduct retrieves a product of a branch.
func (s *SQLiteStore) GetProduct(ctx context.Context, branchID, productID int64) (*Product, error) {
	var p Product
	var typ string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, branch_id, name, account_type, uses_suffix, principal_head_id, principal_head_code
		FROM products WHERE branch_id = ? AND id = ?
	`, branchID, productID).Scan(&p.ID, &p.BranchID, &p.Name, &typ, &p.UsesSuffix, &p.PrincipalHeadID, &p.PrincipalHeadCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	p.Type = AccountType(typ)
	return &p, nil
}

const sqliteAccountColumns = `id, branch_id, account_type, product_id, head_id, head_code, account_no, suffix,
	name, member_id, opened_on, is_closed, created_by, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteAccount(row rowScanner) (*Account, error) {
	var a Account
	var typ, openedOn, createdAt string
	if err := row.Scan(&a.ID, &a.BranchID, &typ, &a.ProductID, &a.HeadID, &a.HeadCode, &a.AccountNo, &a.Suffix,
		&a.Name, &a.MemberID, &openedOn, &a.IsClosed, &a.CreatedBy, &createdAt); err != nil {
		return nil, err
	}
	a.Type = AccountType(typ)
	var err error
	if a.OpenedOn, err = time.Parse(sqliteDateLayout, openedOn); err != nil {
		return nil, fmt.Errorf("bad opened_on %q: %w", openedOn, err)
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	return &a, nil
}

// GetAccount retrieves an account of a branch with its ownership records.
func (s *SQLiteStore) GetAccount(ctx context.Context, branchID, accountID int64) (*Account, error) {
	a, err := scanSQLiteAccount(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteAccountColumns+` FROM accounts WHERE branch_id = ? AND id = ?`, branchID, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, account_id, kind, name, relation, member_id, share_percent, address, instruction
		FROM account_ownership WHERE account_id = ? ORDER BY id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ownership records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r OwnershipRecord
		var kind string
		if err := rows.Scan(&r.ID, &r.BranchID, &r.AccountID, &kind, &r.Name, &r.Relation, &r.MemberID,
			&r.SharePercent, &r.Address, &r.Instruction); err != nil {
			return nil, fmt.Errorf("failed to scan ownership record: %w", err)
		}
		r.Kind = OwnershipKind(kind)
		a.Ownership = append(a.Ownership, r)
	}
	return a, rows.Err()
}

const sqliteVoucherColumns = `id, branch_id, voucher_no, voucher_date, narration, status, voucher_type, sub_type,
	created_by, verified_by, created_at, verified_at`

func scanSQLiteVoucher(row rowScanner) (*Voucher, error) {
	var v Voucher
	var date, status, createdAt string
	var verifiedBy sql.NullInt64
	var verifiedAt sql.NullString
	if err := row.Scan(&v.ID, &v.BranchID, &v.VoucherNo, &date, &v.Narration, &status, &v.Type, &v.SubType,
		&v.CreatedBy, &verifiedBy, &createdAt, &verifiedAt); err != nil {
		return nil, err
	}
	v.Status = VoucherStatus(status)
	var err error
	if v.VoucherDate, err = time.Parse(sqliteDateLayout, date); err != nil {
		return nil, fmt.Errorf("bad voucher_date %q: %w", date, err)
	}
	if v.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	if verifiedBy.Valid {
		id := verifiedBy.Int64
		v.VerifiedBy = &id
	}
	if verifiedAt.Valid {
		at, err := time.Parse(time.RFC3339Nano, verifiedAt.String)
		if err != nil {
			return nil, fmt.Errorf("bad verified_at %q: %w", verifiedAt.String, err)
		}
		v.VerifiedAt = &at
	}
	return &v, nil
}

type sqliteQuerier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func sqliteVoucher(ctx context.Context, q sqliteQuerier, branchID, voucherID int64) (*Voucher, error) {
	v, err := scanSQLiteVoucher(q.QueryRowContext(ctx,
		`SELECT `+sqliteVoucherColumns+` FROM vouchers WHERE branch_id = ? AND id = ?`, branchID, voucherID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}
	lines, err := sqliteLines(ctx, q, `WHERE l.voucher_id = ?`, voucherID)
	if err != nil {
		return nil, err
	}
	v.Lines = lines[voucherID]
	return v, nil
}

func sqliteLines(ctx context.Context, q sqliteQuerier, where string, arg int64) (map[int64][]VoucherLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT l.id, l.voucher_id, l.seq, l.account_id, l.head_id, l.head_code, l.amount, l.indicator
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
		var indicator string
		if err := rows.Scan(&l.ID, &l.VoucherID, &l.Seq, &l.AccountID, &l.HeadID, &l.HeadCode, &l.Amount, &indicator); err != nil {
			return nil, fmt.Errorf("failed to scan voucher line: %w", err)
		}
		l.Indicator = EntryType(indicator)
		out[l.VoucherID] = append(out[l.VoucherID], l)
	}
	return out, rows.Err()
}

// GetVoucher retrieves a voucher of a branch with its lines.
func (s *SQLiteStore) GetVoucher(ctx context.Context, branchID, voucherID int64) (*Voucher, error) {
	return sqliteVoucher(ctx, s.db, branchID, voucherID)
}

// ListVouchers returns every voucher of a branch in insertion order, with lines.
func (s *SQLiteStore) ListVouchers(ctx context.Context, branchID int64) ([]*Voucher, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteVoucherColumns+` FROM vouchers WHERE branch_id = ? ORDER BY id`, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list vouchers: %w", err)
	}
	var vouchers []*Voucher
	for rows.Next() {
		v, err := scanSQLiteVoucher(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan voucher: %w", err)
		}
		vouchers = append(vouchers, v)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	lines, err := sqliteLines(ctx, s.db, `WHERE v.branch_id = ?`, branchID)
	if err != nil {
		return nil, err
	}
	for _, v := range vouchers {
		v.Lines = lines[v.ID]
	}
	return vouchers, nil
}

// AutoVerify reports whether new vouchers of the branch are verified on posting.
func (s *SQLiteStore) AutoVerify(ctx context.Context, branchID int64) (bool, error) {
	return sqliteAutoVerify(ctx, s.db, branchID)
}

func sqliteAutoVerify(ctx context.Context, db sqliteQuerier, branchID int64) (bool, error) {
	var enabled bool
	err := db.QueryRowContext(ctx,
		`SELECT auto_verify FROM branch_settings WHERE branch_id = ?`, branchID).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read branch settings: %w", err)
	}
	return enabled, nil
}

// HeadLabel returns the name of the general ledger account numbered headCode.
func (s *SQLiteStore) HeadLabel(ctx context.Context, branchID int64, headCode string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `
		SELECT name FROM accounts
		WHERE branch_id = ? AND account_type = ? AND account_no = ?
		ORDER BY id LIMIT 1
	`, branchID, string(AccountTypeGeneral), headCode).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read head label: %w", err)
	}
	return name, nil
}

type sqliteTx struct {
	tx *sql.Tx
}

// LockBranch is a no-op: BEGIN IMMEDIATE already holds the database write lock.
func (t *sqliteTx) LockBranch(context.Context, int64) error {
	return nil
}

func (t *sqliteTx) FindCollisions(ctx context.Context, q DuplicateQuery) ([]Collision, error) {
	return sqliteCollisions(ctx, t.tx, q)
}

func (t *sqliteTx) AutoVerify(ctx context.Context, branchID int64) (bool, error) {
	return sqliteAutoVerify(ctx, t.tx, branchID)
}

func (t *sqliteTx) InsertAccount(ctx context.Context, a *Account) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (branch_id, account_type, product_id, head_id, head_code, account_no, suffix,
			name, member_id, opened_on, is_closed, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.BranchID, string(a.Type), a.ProductID, a.HeadID, a.HeadCode, a.AccountNo, a.Suffix,
		a.Name, a.MemberID, a.OpenedOn.Format(sqliteDateLayout), a.IsClosed, a.CreatedBy,
		a.CreatedAt.UTC().Format(time.RFC3339Nano))
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return 0, duplicateNumber(a)
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (t *sqliteTx) LockAccount(ctx context.Context, branchID, accountID int64) (*Account, error) {
	a, err := scanSQLiteAccount(t.tx.QueryRowContext(ctx,
		`SELECT `+sqliteAccountColumns+` FROM accounts WHERE branch_id = ? AND id = ?`, branchID, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	return a, nil
}

func (t *sqliteTx) DeleteAccount(ctx context.Context, branchID, accountID int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM accounts WHERE branch_id = ? AND id = ?`, branchID, accountID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqliteTx) CountLinesForAccount(ctx context.Context, accountID int64) (int64, error) {
	var n int64
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM voucher_lines WHERE account_id = ?`, accountID).Scan(&n)
	return n, err
}

func (t *sqliteTx) InsertOwnership(ctx context.Context, records []OwnershipRecord) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO account_ownership (branch_id, account_id, kind, name, relation, member_id, share_percent, address, instruction)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		res, err := stmt.ExecContext(ctx, r.BranchID, r.AccountID, string(r.Kind), r.Name, r.Relation, r.MemberID,
			r.SharePercent.String(), r.Address, r.Instruction)
		if err != nil {
			return err
		}
		if r.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqliteTx) DeleteOwnership(ctx context.Context, accountID int64) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM account_ownership WHERE account_id = ?`, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *sqliteTx) InsertOpeningBalance(ctx context.Context, ob *OpeningBalance) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO opening_balances (branch_id, account_id, amount, entry_type, voucher_id)
		VALUES (?, ?, ?, ?, ?)
	`, ob.BranchID, ob.AccountID, ob.Amount.StringFixed(2), string(ob.EntryType), ob.VoucherID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (t *sqliteTx) DeleteOpeningBalance(ctx context.Context, accountID int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM opening_balances WHERE account_id = ?`, accountID)
	return err
}

func (t *sqliteTx) NextVoucherNo(ctx context.Context, branchID int64) (int64, error) {
	var no int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO voucher_counters (branch_id, last_no)
		SELECT ?, COALESCE(MAX(voucher_no), 0) + 1 FROM vouchers WHERE branch_id = ?
		ON CONFLICT(branch_id) DO UPDATE SET last_no = voucher_counters.last_no + 1
		RETURNING last_no
	`, branchID, branchID).Scan(&no)
	return no, err
}

func (t *sqliteTx) InsertVoucher(ctx context.Context, v *Voucher) (int64, error) {
	var verifiedAt sql.NullString
	if v.VerifiedAt != nil {
		verifiedAt = sql.NullString{String: v.VerifiedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	var verifiedBy sql.NullInt64
	if v.VerifiedBy != nil {
		verifiedBy = sql.NullInt64{Int64: *v.VerifiedBy, Valid: true}
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO vouchers (branch_id, voucher_no, voucher_date, narration, status, voucher_type, sub_type,
			created_by, verified_by, created_at, verified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.BranchID, v.VoucherNo, v.VoucherDate.Format(sqliteDateLayout), v.Narration, string(v.Status), v.Type, v.SubType,
		v.CreatedBy, verifiedBy, v.CreatedAt.UTC().Format(time.RFC3339Nano), verifiedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (t *sqliteTx) InsertVoucherLines(ctx context.Context, lines []VoucherLine) error {
	if len(lines) == 0 {
		return nil
	}
	placeholders := make([]string, 0, len(lines))
	args := make([]interface{}, 0, len(lines)*7)
	for _, l := range lines {
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, l.VoucherID, l.Seq, l.AccountID, l.HeadID, l.HeadCode, l.Amount.StringFixed(2), string(l.Indicator))
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO voucher_lines (voucher_id, seq, account_id, head_id, head_code, amount, indicator)
		VALUES `+strings.Join(placeholders, ", "), args...)
	return err
}

func (t *sqliteTx) LockVoucher(ctx context.Context, branchID, voucherID int64) (*Voucher, error) {
	return sqliteVoucher(ctx, t.tx, branchID, voucherID)
}

func (t *sqliteTx) MarkVerified(ctx context.Context, voucherID, verifierID int64, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE vouchers SET status = ?, verified_by = ?, verified_at = ?
		WHERE id = ? AND status = ?
	`, string(StatusVerified), verifierID, at.UTC().Format(time.RFC3339Nano), voucherID, string(StatusAwaitingVerification))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var status string
	err = t.tx.QueryRowContext(ctx, `SELECT status FROM vouchers WHERE id = ?`, voucherID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return &InvalidStatusTransitionError{VoucherID: voucherID, From: VoucherStatus(status), To: StatusVerified}
}

var _ Store = (*SQLiteStore)(nil)
