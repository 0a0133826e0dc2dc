package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"go-chat-relay/internal/auth"
	"go-chat-relay/internal/middleware"
)

func newTestRouter() http.Handler {
	return NewRouter(zerolog.Nop(), Deps{
		Verifier:       auth.NewVerifier("test-secret", time.Hour),
		AllowedOrigins: []string{"*"},
	})
}

func TestRouter_Health(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter()
	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/conversations"},
		{http.MethodPost, "/api/conversations"},
		{http.MethodGet, "/api/conversations/1/messages"},
		{http.MethodPost, "/api/conversations/1/messages"},
		{http.MethodPost, "/api/groups"},
		{http.MethodGet, "/api/contacts"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(rt.method, rt.path, nil))
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.JSONEq(t, `{"error":"missing authentication token","status":"unauthenticated"}`, rec.Body.String())
		})
	}
}

// The header and the handshake query parameter must resolve to the same
// principal through the same verifier.
func TestAuth_HeaderAndQueryYieldSamePrincipal(t *testing.T) {
	req := require.New(t)
	v := auth.NewVerifier("test-secret", time.Hour)
	token, err := v.Issue(auth.Principal{ID: 1, Username: "alice"})
	req.NoError(err)

	var seen []auth.Principal
	h := middleware.NewAuthMiddleware(v).Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := middleware.PrincipalFrom(r.Context())
		req.True(ok)
		seen = append(seen, p)
	}))

	viaHeader := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	viaHeader.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), viaHeader)

	viaQuery := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	h.ServeHTTP(httptest.NewRecorder(), viaQuery)

	req.Len(seen, 2)
	req.Equal(seen[0], seen[1])
	req.Equal(auth.Principal{ID: 1, Username: "alice"}, seen[0])

	fromHandshake, err := v.Verify(middleware.TokenFromRequest(viaQuery))
	req.NoError(err)
	req.Equal(seen[0], fromHandshake)
}

func TestAuth_RejectsMalformedToken(t *testing.T) {
	v := auth.NewVerifier("test-secret", time.Hour)
	h := middleware.NewAuthMiddleware(v).Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "malformed token")
}
