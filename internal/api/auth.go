package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

type contextKey string

const principalKey contextKey = "principal"

// principal is the authenticated caller: a tenant (JWT sub claim) or
// an operator holding the admin API key.
type principal struct {
	tenantID string
	admin    bool
}

// allowed reports whether the caller may act on the given tenant.
func (p principal) allowed(tenantID string) bool {
	return p.admin || p.tenantID == tenantID
}

func principalFrom(ctx context.Context) principal {
	p, _ := ctx.Value(principalKey).(principal)
	return p
}

// authMiddleware guards /api routes. Tenants present a Bearer JWT whose
// sub claim names them; operators present X-API-Key. When neither
// secret is configured the middleware passes everything through as
// admin, which is the local development mode.
type authMiddleware struct {
	jwtSecret []byte
	adminKey  string
}

func newAuthMiddleware(jwtSecret, adminKey string) *authMiddleware {
	a := &authMiddleware{adminKey: adminKey}
	if jwtSecret != "" {
		a.jwtSecret = []byte(jwtSecret)
	}
	return a
}

func (a *authMiddleware) enabled() bool {
	return len(a.jwtSecret) > 0 || a.adminKey != ""
}

func (a *authMiddleware) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled() {
			ctx := context.WithValue(r.Context(), principalKey, principal{admin: true})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		p, err := a.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
	})
}

// authenticate checks X-API-Key first, then falls back to a Bearer JWT.
func (a *authMiddleware) authenticate(r *http.Request) (principal, error) {
	if key := r.Header.Get("X-API-Key"); key != "" {
		if a.adminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(a.adminKey)) != 1 {
			return principal{}, errors.New("invalid api key")
		}
		return principal{admin: true}, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return principal{}, errors.New("missing Authorization header or X-API-Key")
	}
	if len(a.jwtSecret) == 0 {
		return principal{}, errors.New("token auth not configured")
	}
	tokenStr := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

	token, err := jwtlib.Parse(tokenStr, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return principal{}, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return principal{}, errors.New("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return principal{}, errors.New("token has no sub claim")
	}
	return principal{tenantID: sub}, nil
}

// tenantParam resolves the effective tenant for a scoped request:
// the tenant query parameter when present, else the caller's own
// tenant. Returns an HTTP status and error when the request must be
// rejected instead.
func tenantParam(r *http.Request, required bool) (string, int, error) {
	p := principalFrom(r.Context())
	tenant := r.URL.Query().Get("tenant")
	if tenant == "" {
		tenant = p.tenantID
	}
	if tenant == "" {
		if required {
			return "", http.StatusBadRequest, errors.New("tenant required")
		}
		return "", 0, nil
	}
	if !p.allowed(tenant) {
		return "", http.StatusForbidden, errors.New("tenant does not match credentials")
	}
	return tenant, 0, nil
}
