package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/coop-ledger/internal/ledger"
)

type authInfoKey struct{}

// AuthInfo is the authenticated caller of a request.
type AuthInfo struct {
	Actor  ledger.Actor
	Scopes map[string]struct{}
}

// HasScope reports whether the caller was granted scope.
func (ai *AuthInfo) HasScope(scope string) bool {
	_, ok := ai.Scopes[scope]
	return ok
}

func AuthInfoFromContext(ctx context.Context) (*AuthInfo, bool) {
	v := ctx.Value(authInfoKey{})
	ai, ok := v.(*AuthInfo)
	return ai, ok
}

// WithAuthInfo stores ai in ctx.
func WithAuthInfo(ctx context.Context, ai *AuthInfo) context.Context {
	return context.WithValue(ctx, authInfoKey{}, ai)
}

// ActorFromContext returns the authenticated actor of the request.
func ActorFromContext(ctx context.Context) (ledger.Actor, bool) {
	ai, ok := AuthInfoFromContext(ctx)
	if !ok {
		return ledger.Actor{}, false
	}
	return ai.Actor, true
}

type JWTValidator struct {
	Secret []byte
	Issuer string
}

func (v *JWTValidator) Validate(tokenString string) (*ActorClaims, error) {
	if len(v.Secret) == 0 {
		return nil, errors.New("missing secret")
	}

	claims := &ActorClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if v.Issuer != "" && claims.Issuer != v.Issuer {
		return nil, errors.New("invalid issuer")
	}
	if claims.UserID <= 0 || claims.BranchID <= 0 {
		return nil, errors.New("token does not identify an actor")
	}
	return claims, nil
}

// AuthInfo validates a bearer token and returns the caller it identifies.
func (v *JWTValidator) AuthInfo(tokenString string) (*AuthInfo, error) {
	claims, err := v.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	scopes := map[string]struct{}{}
	for _, s := range claims.Scopes {
		scopes[s] = struct{}{}
	}
	return &AuthInfo{
		Actor:  ledger.Actor{UserID: claims.UserID, BranchID: claims.BranchID},
		Scopes: scopes,
	}, nil
}

// BearerToken extracts the token of an "Authorization: Bearer" value.
func BearerToken(authz string) (string, bool) {
	if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(authz[len("Bearer "):])
	return tok, tok != ""
}

func Authenticate(v *JWTValidator, onError func(http.ResponseWriter, *http.Request, int, string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				onError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}

			tok, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				onError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}

			ai, err := v.AuthInfo(tok)
			if err != nil {
				onError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthInfo(r.Context(), ai)))
		})
	}
}

func RequireScopes(onError func(http.ResponseWriter, *http.Request, int, string), required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ai, ok := AuthInfoFromContext(r.Context())
			if !ok {
				onError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}

			for _, s := range required {
				if !ai.HasScope(s) {
					onError(w, r, http.StatusForbidden, "forbidden")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
