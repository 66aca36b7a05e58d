package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/example/coop-ledger/internal/auth"
	"github.com/example/coop-ledger/internal/ledger"
	"github.com/example/coop-ledger/internal/metrics"
	"github.com/example/coop-ledger/internal/security"
	"github.com/example/coop-ledger/pkg/audit"
)

const (
	testBranch   = 10
	makerID      = 11
	checkerID    = 12
	cashAccount  = 77
	savingsHead  = 5001
	savingsCode  = "500100000001"
	cashHead     = 5002
	cashHeadCode = "500200000002"
)

var testSecret = []byte("router-test-secret-router-test-secret")

type testEnv struct {
	t       *testing.T
	store   *ledger.SQLiteStore
	handler http.Handler
	issuer  *auth.TokenIssuer
	metrics *metrics.Metrics
	audit   *audit.ChainLogger
	product int64
}

func newTestEnv(t *testing.T, mutate ...func(*Dependencies)) *testEnv {
	t.Helper()

	store, err := ledger.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	db := store.DB()
	_, err = db.Exec(`INSERT INTO accounts (id, branch_id, account_type, product_id, head_id, head_code, account_no, name, opened_on, created_by, created_at)
		VALUES (?, ?, 'general', 0, ?, ?, ?, 'Cash in Hand', '2020-01-01', 1, '2020-01-01T00:00:00Z'),
		       (78, ?, 'general', 0, ?, ?, ?, 'Savings Deposits', '2020-01-01', 1, '2020-01-01T00:00:00Z')`,
		cashAccount, testBranch, cashHead, cashHeadCode, cashHeadCode,
		testBranch, savingsHead, savingsCode, savingsCode)
	require.NoError(t, err)
	res, err := db.Exec(`INSERT INTO products (branch_id, name, account_type, uses_suffix, principal_head_id, principal_head_code)
		VALUES (?, 'Savings', 'saving', 0, ?, ?)`, testBranch, savingsHead, savingsCode)
	require.NoError(t, err)
	productID, err := res.LastInsertId()
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	chain := audit.NewChainLogger()
	deps := Dependencies{
		Logger:        zaptest.NewLogger(t),
		JWTValidator:  &auth.JWTValidator{Secret: testSecret, Issuer: "coop-ledger"},
		Ledger:        ledger.NewProvisioningService(store, zaptest.NewLogger(t), m),
		Auditor:       chain,
		RateLimiter:   &security.RedisTokenBucket{Redis: rdb, Prefix: "test", Capacity: 100, RefillRate: 100},
		OnRateLimited: func(*http.Request) { m.IncrementRateLimited() },
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		MaxBodyBytes:  1 << 16,
	}
	for _, fn := range mutate {
		fn(&deps)
	}

	h, err := NewRouter(deps)
	require.NoError(t, err)

	return &testEnv{
		t:       t,
		store:   store,
		handler: h,
		issuer:  &auth.TokenIssuer{Secret: testSecret, Issuer: "coop-ledger"},
		metrics: m,
		audit:   chain,
		product: productID,
	}
}

func (e *testEnv) token(userID int64, scopes ...string) string {
	e.t.Helper()
	tok, err := e.issuer.Issue(userID, testBranch, scopes...)
	require.NoError(e.t, err)
	return tok
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(e.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) openBody(accountNo, amount string) map[string]any {
	return map[string]any{
		"account_type":       "saving",
		"product_id":         e.product,
		"account_no":         accountNo,
		"name":               "Asha Rao",
		"opened_on":          "2026-03-02",
		"opening_amount":     amount,
		"entry_type":         "Cr",
		"funding_account_id": cashAccount,
		"ownership": map[string]any{
			"nominees": []map[string]any{{"name": "Ravi Rao", "relation": "son", "share_percent": "100"}},
		},
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(security.CorrelationIDHeader))

	rec = env.do(http.MethodGet, "/v1/accounts/77", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/v1/accounts/77", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/v1/accounts/77", env.token(makerID, auth.ScopeVouchersRead), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/v1/accounts/77", env.token(makerID, auth.ScopeAccountsRead), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[accountResponse](t, rec)
	assert.Equal(t, "Cash in Hand", got.Account.Name)

	rec = env.do(http.MethodGet, "/v1/nowhere", env.token(makerID, auth.ScopeAccountsRead), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOpenVerifyFlow(t *testing.T) {
	env := newTestEnv(t)
	maker := env.token(makerID, auth.ScopeAccountsWrite, auth.ScopeAccountsRead, auth.ScopeVouchersRead, auth.ScopeVouchersVerify)
	checker := env.token(checkerID, auth.ScopeVouchersVerify, auth.ScopeVouchersRead)

	rec := env.do(http.MethodPost, "/v1/accounts", maker, env.openBody("SB-0001", "1000.00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	opened := decode[openAccountResponse](t, rec)
	require.NotNil(t, opened.Voucher)
	assert.NotEmpty(t, opened.CorrelationID)
	assert.Equal(t, int64(1), opened.Voucher.VoucherNo)
	assert.Equal(t, ledger.StatusAwaitingVerification, opened.Voucher.Status)
	assert.Equal(t, "2026-03-02", opened.Account.OpenedOn.Format(time.DateOnly))
	require.Len(t, opened.Account.Ownership, 1)

	path := "/v1/vouchers/" + strconv.FormatInt(opened.Voucher.ID, 10)
	rec = env.do(http.MethodGet, path, checker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[voucherResponse](t, rec).Voucher
	require.Len(t, v.Lines, 2)
	assert.Equal(t, "Savings Deposits", v.Lines[0].HeadLabel)
	assert.Equal(t, "Cash in Hand", v.Lines[1].HeadLabel)
	assert.True(t, v.IsBalanced())

	rec = env.do(http.MethodPost, path+"/verify", maker, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "self_verification", decode[security.ErrorResponse](t, rec).Error)

	rec = env.do(http.MethodPost, path+"/verify", checker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ledger.StatusVerified, decode[voucherResponse](t, rec).Voucher.Status)

	rec = env.do(http.MethodPost, path+"/verify", checker, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", decode[security.ErrorResponse](t, rec).Error)

	rec = env.do(http.MethodPost, "/v1/accounts", maker, env.openBody("SB-0001", "5.00"))
	require.Equal(t, http.StatusConflict, rec.Code)
	dup := decode[security.ErrorResponse](t, rec)
	assert.Equal(t, "duplicate_account", dup.Error)
	assert.NotEmpty(t, dup.Fields)

	rec = env.do(http.MethodGet, "/v1/consistency", checker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[consistencyResponse](t, rec)
	assert.True(t, report.Consistent)
	assert.Equal(t, int64(testBranch), report.BranchID)

	entries := env.audit.Entries()
	require.Len(t, entries, 5, "open, two refused verifies, one verify and the duplicate open")
	assert.Equal(t, -1, audit.VerifyChain(entries))
	var first audit.Event
	require.NoError(t, json.Unmarshal([]byte(entries[0].Payload), &first))
	assert.Equal(t, int64(makerID), first.UserID)
	assert.Equal(t, http.StatusCreated, first.Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.VouchersPosted.WithLabelValues(string(ledger.StatusAwaitingVerification))))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.OperationOutcome.WithLabelValues("open_account", "duplicate")))
}

func TestOpenRejections(t *testing.T) {
	env := newTestEnv(t)
	maker := env.token(makerID, auth.ScopeAccountsWrite)

	rec := env.do(http.MethodPost, "/v1/accounts", maker, `{"account_type":"saving"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode[security.ErrorResponse](t, rec).Error)

	rec = env.do(http.MethodPost, "/v1/accounts", maker, `{"account_type":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decode[security.ErrorResponse](t, rec).Error)

	body := env.openBody("SB-0002", "10.00")
	delete(body, "funding_account_id")
	rec = env.do(http.MethodPost, "/v1/accounts", maker, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decode[security.ErrorResponse](t, rec)
	assert.Equal(t, "validation_error", problem.Error)
	assert.Equal(t, []interface{}{"funding_account_id"}, problem.Fields)

	body = env.openBody("SB-0003", "10.00")
	body["opened_on"] = "2026-02-30"
	rec = env.do(http.MethodPost, "/v1/accounts", maker, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err := env.store.DB().Exec(`UPDATE products SET principal_head_id = 0 WHERE id = ?`, env.product)
	require.NoError(t, err)
	rec = env.do(http.MethodPost, "/v1/accounts", maker, env.openBody("SB-0004", "10.00"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "misconfigured_product", decode[security.ErrorResponse](t, rec).Error)

	var accounts int
	require.NoError(t, env.store.DB().QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&accounts))
	assert.Equal(t, 2, accounts, "no rejected opening writes anything")
}

func TestOwnershipAndDelete(t *testing.T) {
	env := newTestEnv(t)
	maker := env.token(makerID, auth.ScopeAccountsWrite, auth.ScopeAccountsRead)

	rec := env.do(http.MethodPost, "/v1/accounts", maker, env.openBody("SB-0010", "0"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	unfunded := decode[openAccountResponse](t, rec)
	assert.Nil(t, unfunded.Voucher)

	rec = env.do(http.MethodPost, "/v1/accounts", maker, env.openBody("SB-0011", "50.00"))
	require.Equal(t, http.StatusCreated, rec.Code)
	funded := decode[openAccountResponse](t, rec)

	ownership := map[string]any{
		"joint_holders": []map[string]any{{"name": "Meera Rao"}},
		"nominees": []map[string]any{
			{"name": "Ravi Rao", "share_percent": 60},
			{"name": "Anu Rao", "share_percent": "40"},
		},
	}
	rec = env.do(http.MethodPut, "/v1/accounts/"+strconv.FormatInt(unfunded.Account.ID, 10)+"/ownership", maker, ownership)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[accountResponse](t, rec).Account.Ownership, 3)

	ownership["nominees"] = []map[string]any{{"name": "Ravi Rao", "share_percent": 60}}
	rec = env.do(http.MethodPut, "/v1/accounts/"+strconv.FormatInt(unfunded.Account.ID, 10)+"/ownership", maker, ownership)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodDelete, "/v1/accounts/"+strconv.FormatInt(funded.Account.ID, 10), maker, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "account_in_use", decode[security.ErrorResponse](t, rec).Error)

	rec = env.do(http.MethodDelete, "/v1/accounts/"+strconv.FormatInt(unfunded.Account.ID, 10), maker, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodGet, "/v1/accounts/"+strconv.FormatInt(unfunded.Account.ID, 10), maker, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/v1/accounts/abc", maker, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitByActor(t *testing.T) {
	env := newTestEnv(t, func(d *Dependencies) {
		d.RateLimiter.Capacity = 1
		d.RateLimiter.RefillRate = 0.001
	})
	reader := env.token(makerID, auth.ScopeAccountsRead)

	rec := env.do(http.MethodGet, "/v1/accounts/77", reader, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/v1/accounts/77", reader, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.RateLimited))

	other := env.token(checkerID, auth.ScopeAccountsRead)
	rec = env.do(http.MethodGet, "/v1/accounts/77", other, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "each actor has its own bucket")
}

func TestMetricsAllowlist(t *testing.T) {
	open := newTestEnv(t)
	rec := open.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "coopledger_http_rate_limited_total")

	allow, err := security.ParseCIDRAllowlist([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	closed := newTestEnv(t, func(d *Dependencies) { d.MetricsAllowlist = allow })
	rec = closed.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "httptest requests come from 192.0.2.1")
}

func TestBodySizeLimit(t *testing.T) {
	env := newTestEnv(t, func(d *Dependencies) { d.MaxBodyBytes = 32 })
	rec := env.do(http.MethodPost, "/v1/accounts", env.token(makerID, auth.ScopeAccountsWrite), env.openBody("SB-0020", "1.00"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

type failingLedger struct{ Provisioner }

func (failingLedger) GetVoucher(context.Context, ledger.Actor, int64) (*ledger.Voucher, error) {
	return nil, &ledger.PersistenceError{Op: "get voucher", Err: errors.New("disk I/O error on /var/lib/secret.db")}
}

func TestPersistenceErrorHidesDetail(t *testing.T) {
	env := newTestEnv(t, func(d *Dependencies) { d.Ledger = failingLedger{d.Ledger} })

	rec := env.do(http.MethodGet, "/v1/vouchers/1", env.token(makerID, auth.ScopeVouchersRead), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "persistence_error", decode[security.ErrorResponse](t, rec).Error)
	assert.False(t, strings.Contains(rec.Body.String(), "secret"))
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	_, err := NewRouter(Dependencies{})
	assert.Error(t, err)
}
