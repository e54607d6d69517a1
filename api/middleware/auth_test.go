package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgAuth "github.com/devfurlan/cuidly-sub007/pkg/auth"
	"github.com/devfurlan/cuidly-sub007/pkg/config"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "middleware-secret", Issuer: "cuidly"}

func mintToken(t *testing.T, claims pkgAuth.Claims) string {
	t.Helper()
	token, err := pkgAuth.NewTokens(testJWT).Mint(claims, time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	called := false
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if called {
		t.Fatal("handler should not run")
	}
}

func TestAuthMiddlewareRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestAuthMiddlewareSeedsPrincipal(t *testing.T) {
	userID := uuid.New()
	nannyID := uuid.New()
	token := mintToken(t, pkgAuth.Claims{
		UserID:  userID,
		Role:    enums.UserRoleNanny,
		OwnerID: &nannyID,
		Email:   "bia@example.com",
	})

	var got Principal
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Fatal("principal missing")
		}
		got = p
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
	if got.UserID != userID || got.Role != enums.UserRoleNanny {
		t.Fatalf("unexpected principal %+v", got)
	}
	if got.OwnerID == nil || *got.OwnerID != nannyID {
		t.Fatalf("owner id not propagated")
	}
	if ownerType, ok := got.OwnerType(); !ok || ownerType != enums.OwnerTypeNanny {
		t.Fatalf("unexpected owner type %q", ownerType)
	}
}

func TestRequireRoleAndOwner(t *testing.T) {
	familyID := uuid.New()
	admin := Principal{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	family := Principal{UserID: uuid.New(), Role: enums.UserRoleFamily, OwnerID: &familyID}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	tests := []struct {
		name      string
		mw        func(http.Handler) http.Handler
		principal Principal
		want      int
	}{
		{"admin passes admin gate", RequireRole(enums.UserRoleAdmin, nil), admin, http.StatusOK},
		{"family blocked by admin gate", RequireRole(enums.UserRoleAdmin, nil), family, http.StatusForbidden},
		{"family passes owner gate", RequireOwner(nil), family, http.StatusOK},
		{"admin blocked by owner gate", RequireOwner(nil), admin, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithPrincipal(req.Context(), tt.principal))
			rec := httptest.NewRecorder()
			tt.mw(ok).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer   abc.def.ghi  ", "abc.def.ghi", true},
		{"abc.def.ghi", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := bearerToken(tt.header)
		if token != tt.token || ok != tt.ok {
			t.Fatalf("bearerToken(%q) = %q, %v", tt.header, token, ok)
		}
	}
}

func TestAuthMiddlewareAdvertisesScheme(t *testing.T) {
	handler := Auth(testJWT, nil)(http.NotFoundHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get("WWW-Authenticate"); got != `Bearer realm="cuidly"` {
		t.Fatalf("unexpected challenge %q", got)
	}
}

func TestGatesRequireAuthenticatedPrincipal(t *testing.T) {
	handler := RequireOwner(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}
