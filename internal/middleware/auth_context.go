package middleware

import (
	"context"
	"net/http"
	"strings"

	"medication-reminder/internal/ports/auth"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// Headers de modo dev (sin verifier).
const (
	DebugUserIDHeader    = "X-Debug-User-ID"
	DebugUserEmailHeader = "X-Debug-User-Email"
	DebugUserPhoneHeader = "X-Debug-User-Phone"
	DebugUserTZHeader    = "X-Debug-User-Timezone"
)

// AuthContext resuelve la identidad del request:
//   - con verifier: Bearer token verificado contra el proveedor.
//   - sin verifier (dev): headers X-Debug-User-*.
//
// Sin identidad el request sigue igual; cada handler decide 401/403.
func AuthContext(verifier auth.AuthVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := resolveClaims(r, verifier)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func resolveClaims(r *http.Request, verifier auth.AuthVerifier) (auth.Claims, bool) {
	if verifier == nil {
		uid := strings.TrimSpace(r.Header.Get(DebugUserIDHeader))
		if uid == "" {
			return auth.Claims{}, false
		}
		return auth.Claims{
			UserID:   uid,
			Email:    strings.TrimSpace(r.Header.Get(DebugUserEmailHeader)),
			Phone:    strings.TrimSpace(r.Header.Get(DebugUserPhoneHeader)),
			Timezone: strings.TrimSpace(r.Header.Get(DebugUserTZHeader)),
		}, true
	}

	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return auth.Claims{}, false
	}
	claims, err := verifier.Verify(r.Context(), token)
	if err != nil || strings.TrimSpace(claims.UserID) == "" {
		return auth.Claims{}, false
	}
	return claims, true
}

// WithClaims deja los claims en el ctx (lo usan el middleware y los tests).
func WithClaims(ctx context.Context, c auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

func GetClaims(ctx context.Context) (auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(auth.Claims)
	return c, ok
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
