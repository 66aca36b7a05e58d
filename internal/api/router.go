package api

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/example/coop-ledger/internal/auth"
	"github.com/example/coop-ledger/internal/ledger"
	"github.com/example/coop-ledger/internal/security"
	"github.com/example/coop-ledger/pkg/audit"
)

type Auditor interface {
	Record(ev audit.Event) *audit.LogEntry
}

// Provisioner is the ledger surface the HTTP API exposes.
type Provisioner interface {
	Open(ctx context.Context, actor ledger.Actor, req ledger.OpenAccountRequest) (*ledger.OpenAccountResult, error)
	ReplaceOwnership(ctx context.Context, actor ledger.Actor, accountID int64, set ledger.OwnershipSet) (*ledger.Account, error)
	DeleteAccount(ctx context.Context, actor ledger.Actor, accountID int64) error
	GetAccount(ctx context.Context, actor ledger.Actor, accountID int64) (*ledger.Account, error)
	GetVoucher(ctx context.Context, actor ledger.Actor, voucherID int64) (*ledger.Voucher, error)
	VerifyVoucher(ctx context.Context, actor ledger.Actor, voucherID int64) (*ledger.Voucher, error)
	ValidateBranch(ctx context.Context, actor ledger.Actor) ([]*ledger.ValidationResult, error)
}

type Dependencies struct {
	Logger       *zap.Logger
	JWTValidator *auth.JWTValidator
	Ledger       Provisioner

	Auditor       Auditor
	RateLimiter   *security.RedisTokenBucket
	OnRateLimited func(*http.Request)

	// Metrics serves /metrics when set, restricted to MetricsAllowlist.
	Metrics          http.Handler
	MetricsAllowlist []netip.Prefix
	MaxBodyBytes     int64
}

func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.JWTValidator == nil {
		return nil, fmt.Errorf("api: JWTValidator is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("api: Ledger is required")
	}

	onAuthError := func(w http.ResponseWriter, r *http.Request, status int, code string) {
		security.WriteJSONError(w, r, status, code)
	}
	h := &handlers{ledger: deps.Ledger, log: deps.Logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(security.CorrelationID)
	r.Use(RequestLogger(deps.Logger))
	if deps.MaxBodyBytes > 0 {
		r.Use(security.BodySizeLimit(deps.MaxBodyBytes))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if deps.Metrics != nil {
		r.With(security.IPAllowlist(deps.MetricsAllowlist)).Handle("/metrics", deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Authenticate(deps.JWTValidator, onAuthError))
		if deps.RateLimiter != nil {
			r.Use(security.RateLimitMiddleware(deps.RateLimiter, rateLimitKeyByActor, deps.OnRateLimited))
		}
		if deps.Auditor != nil {
			r.Use(AuditMiddleware(deps.Auditor))
		}

		r.Route("/accounts", func(r chi.Router) {
			r.With(auth.RequireScopes(onAuthError, auth.ScopeAccountsWrite), openAccountValidator.Middleware).Post("/", h.openAccount)
			r.With(auth.RequireScopes(onAuthError, auth.ScopeAccountsRead)).Get("/{id}", h.getAccount)
			r.With(auth.RequireScopes(onAuthError, auth.ScopeAccountsWrite), replaceOwnershipValidator.Middleware).Put("/{id}/ownership", h.replaceOwnership)
			r.With(auth.RequireScopes(onAuthError, auth.ScopeAccountsWrite)).Delete("/{id}", h.deleteAccount)
		})

		r.Route("/vouchers", func(r chi.Router) {
			r.With(auth.RequireScopes(onAuthError, auth.ScopeVouchersRead)).Get("/{id}", h.getVoucher)
			r.With(auth.RequireScopes(onAuthError, auth.ScopeVouchersVerify)).Post("/{id}/verify", h.verifyVoucher)
		})

		r.With(auth.RequireScopes(onAuthError, auth.ScopeVouchersRead)).Get("/consistency", h.consistency)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return r, nil
}

func rateLimitKeyByActor(r *http.Request) string {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		return ""
	}
	return fmt.Sprintf("branch:%d:user:%d", actor.BranchID, actor.UserID)
}
