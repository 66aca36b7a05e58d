package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Scopes understood by the ledger edges.
const (
	ScopeAccountsRead   = "accounts:read"
	ScopeAccountsWrite  = "accounts:write"
	ScopeVouchersRead   = "vouchers:read"
	ScopeVouchersVerify = "vouchers:verify"
)

// ActorClaims is the payload of an actor token issued by the identity provider.
type ActorClaims struct {
	jwt.RegisteredClaims
	UserID   int64    `json:"uid"`
	BranchID int64    `json:"branch_id"`
	Scopes   []string `json:"scopes"`
}

// TokenIssuer signs HS256 actor tokens. Production tokens come from the
// identity provider; this is used by tests and local tooling.
type TokenIssuer struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// Issue returns a signed token for the given actor.
func (i *TokenIssuer) Issue(userID, branchID int64, scopes ...string) (string, error) {
	if len(i.Secret) == 0 {
		return "", errors.New("missing signing secret")
	}
	ttl := i.TTL
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	now := time.Now()
	claims := ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		UserID:   userID,
		BranchID: branchID,
		Scopes:   scopes,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Secret)
}
