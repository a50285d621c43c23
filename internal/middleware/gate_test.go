package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/webshop-accounts/internal/apperr"
	"github.com/iliyamo/webshop-accounts/internal/auth"
	"github.com/iliyamo/webshop-accounts/internal/config"
	"github.com/iliyamo/webshop-accounts/internal/metrics"
	"github.com/iliyamo/webshop-accounts/internal/model"
	"github.com/iliyamo/webshop-accounts/internal/repository"
)

type verifierFunc func(raw string) (*auth.Claims, error)

func (f verifierFunc) Verify(raw string) (*auth.Claims, error) { return f(raw) }

type loaderMap map[uint64]*model.Account

func (m loaderMap) GetByID(_ context.Context, id uint64) (*model.Account, error) {
	a, ok := m[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

type failingLoader struct{}

func (failingLoader) GetByID(context.Context, uint64) (*model.Account, error) {
	return nil, errors.New("connection refused")
}

func claimsFor(id uint64, counter uint32) verifierFunc {
	return func(string) (*auth.Claims, error) {
		return &auth.Claims{ID: id, ForceLogout: counter}, nil
	}
}

func run(t *testing.T, mw echo.MiddlewareFunc, header string) (echo.Context, bool, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	called := false
	err := mw(func(echo.Context) error {
		called = true
		return nil
	})(c)
	return c, called, err
}

func assertRejected(t *testing.T, err error, called bool, status int, code string) {
	t.Helper()
	require.Error(t, err)
	assert.False(t, called, "next must not run")
	ae := apperr.From(err)
	assert.Equal(t, status, ae.Kind.Status())
	assert.Equal(t, code, ae.Code)
}

func activeAccount(id uint64, counter uint32) *model.Account {
	return &model.Account{ID: id, Email: "fresh@b.com", Status: model.StatusActive, ForceLogout: counter, Role: model.RoleUser}
}

func TestAuthenticateMissingToken(t *testing.T) {
	mw := Authenticate(claimsFor(1, 0), loaderMap{1: activeAccount(1, 0)}, nil)
	for _, h := range []string{"", "Basic dXNlcjpwYXNz", "Bearer ", "Bearer    "} {
		_, called, err := run(t, mw, h)
		assertRejected(t, err, called, http.StatusUnauthorized, apperr.CodeMissingToken)
	}
}

func TestAuthenticateVerifyFailures(t *testing.T) {
	expired := verifierFunc(func(string) (*auth.Claims, error) { return nil, auth.ErrTokenExpired })
	_, called, err := run(t, Authenticate(expired, loaderMap{}, nil), "Bearer x.y.z")
	assertRejected(t, err, called, http.StatusUnauthorized, apperr.CodeTokenExpired)

	malformed := verifierFunc(func(string) (*auth.Claims, error) { return nil, auth.ErrTokenMalformed })
	_, called, err = run(t, Authenticate(malformed, loaderMap{}, nil), "Bearer x.y.z")
	assertRejected(t, err, called, http.StatusUnauthorized, apperr.CodeInvalidToken)
}

func TestAuthenticateAccountStates(t *testing.T) {
	inactive := activeAccount(2, 0)
	inactive.Status = model.StatusInactive
	banned := activeAccount(3, 0)
	banned.Status = model.StatusBanned
	accounts := loaderMap{2: inactive, 3: banned, 4: activeAccount(4, 2)}

	cases := []struct {
		name   string
		claims verifierFunc
		status int
		code   string
		loader AccountLoader
	}{
		{"deleted account", claimsFor(99, 0), http.StatusUnauthorized, apperr.CodeInvalidToken, accounts},
		{"inactive", claimsFor(2, 0), http.StatusForbidden, apperr.CodeAccountInactive, accounts},
		{"banned", claimsFor(3, 0), http.StatusForbidden, apperr.CodeAccountBlocked, accounts},
		{"stale counter", claimsFor(4, 1), http.StatusUnauthorized, apperr.CodeSessionInvalidated, accounts},
		{"store down", claimsFor(4, 2), http.StatusInternalServerError, "internal", failingLoader{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, called, err := run(t, Authenticate(tc.claims, tc.loader, metrics.New()), "Bearer tok")
			assertRejected(t, err, called, tc.status, tc.code)
		})
	}
}

func TestAuthenticateAdmitsWithFreshAccount(t *testing.T) {
	fresh := activeAccount(5, 3)
	verifier := verifierFunc(func(string) (*auth.Claims, error) {
		return &auth.Claims{ID: 5, Email: "stale@b.com", Status: model.StatusInactive, ForceLogout: 3}, nil
	})

	c, called, err := run(t, Authenticate(verifier, loaderMap{5: fresh}, nil), "bearer tok")
	require.NoError(t, err)
	assert.True(t, called)
	got := AccountFrom(c)
	require.NotNil(t, got)
	assert.Equal(t, "fresh@b.com", got.Email)
	assert.Equal(t, model.StatusActive, got.Status)
}

func TestAuthenticateForceLogoutWithRealTokens(t *testing.T) {
	ts, err := auth.NewTokenService(&config.Config{
		JWTSecret: "gate-secret", JWTTTL: time.Hour, JWTIssuer: "webshop-store", JWTAudience: "webshop-users",
	})
	require.NoError(t, err)

	acct := activeAccount(7, 0)
	accounts := loaderMap{7: acct}
	mw := Authenticate(ts, accounts, nil)

	t1, _, err := ts.Issue(acct)
	require.NoError(t, err)
	_, called, err := run(t, mw, "Bearer "+t1)
	require.NoError(t, err)
	assert.True(t, called)

	acct.ForceLogout = 1 // logout
	_, called, err = run(t, mw, "Bearer "+t1)
	assertRejected(t, err, called, http.StatusUnauthorized, apperr.CodeSessionInvalidated)

	t2, _, err := ts.Issue(acct)
	require.NoError(t, err)
	_, called, err = run(t, mw, "Bearer "+t2)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestRequireRole(t *testing.T) {
	withAccount := func(a *model.Account) echo.MiddlewareFunc {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				if a != nil {
					WithAccount(c, a)
				}
				return next(c)
			}
		}
	}
	chain := func(a *model.Account) echo.MiddlewareFunc {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return withAccount(a)(RequireRole(model.RoleAdmin, nil)(next))
		}
	}

	_, called, err := run(t, chain(activeAccount(1, 0)), "")
	assertRejected(t, err, called, http.StatusForbidden, apperr.CodeInsufficientRole)

	_, called, err = run(t, chain(nil), "")
	assertRejected(t, err, called, http.StatusUnauthorized, apperr.CodeMissingToken)

	admin := activeAccount(2, 0)
	admin.Role = model.RoleAdmin
	_, called, err = run(t, chain(admin), "")
	require.NoError(t, err)
	assert.True(t, called)
}

func TestBearerToken(t *testing.T) {
	tok, ok := bearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	_, ok = bearerToken("Bearerabc")
	assert.False(t, ok)
	_, ok = bearerToken("Token abc")
	assert.False(t, ok)
}
