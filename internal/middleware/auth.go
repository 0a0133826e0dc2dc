package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go-chat-relay/internal/auth"
	"go-chat-relay/internal/respond"
)

type contextKey string

const principalKey contextKey = "principal"

// TokenVerifier is what we need from the identity layer.
type TokenVerifier interface {
	Verify(credential string) (auth.Principal, error)
}

// TokenFromRequest extracts the bearer credential. The Authorization header
// wins; the `token` query parameter is the fallback used by websocket
// handshakes, where browsers cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(v TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: v}
}

func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := TokenFromRequest(r)
		if tokenString == "" {
			respond.Error(w, http.StatusUnauthorized, "unauthenticated", "missing authentication token")
			return
		}

		p, err := am.verifier.Verify(tokenString)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrMalformed) {
				msg = "malformed token"
			}
			respond.Error(w, http.StatusUnauthorized, "unauthenticated", msg)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the principal injected by Handle.
func PrincipalFrom(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(auth.Principal)
	return p, ok
}
