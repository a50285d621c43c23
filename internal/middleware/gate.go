package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/webshop-accounts/internal/apperr"
	"github.com/iliyamo/webshop-accounts/internal/auth"
	"github.com/iliyamo/webshop-accounts/internal/metrics"
	"github.com/iliyamo/webshop-accounts/internal/model"
	"github.com/iliyamo/webshop-accounts/internal/repository"
)

// accountKey holds the admitted *model.Account in the echo context.
const accountKey = "account"

const reloadTimeout = 5 * time.Second

// TokenVerifier is implemented by *auth.TokenService.
type TokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

// AccountLoader is implemented by *repository.AccountRepo.
type AccountLoader interface {
	GetByID(ctx context.Context, id uint64) (*model.Account, error)
}

// Authenticate is the access control gate.  It verifies the bearer token,
// reloads the account by the token's id and admits the request only when
// the account is usable and the token was minted after the last
// force-logout.  Claims other than id and the counter snapshot are never
// used for decisions; everything else comes from the fresh row.
func Authenticate(tokens TokenVerifier, accounts AccountLoader, m *metrics.Metrics) echo.MiddlewareFunc {
	reject := func(e *apperr.Error) error {
		m.GateRejected(e.Code)
		return e
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return reject(apperr.Auth("Authentication token required").WithCode(apperr.CodeMissingToken))
			}

			claims, err := tokens.Verify(raw)
			if errors.Is(err, auth.ErrTokenExpired) {
				return reject(apperr.Auth("Token expired").WithCode(apperr.CodeTokenExpired))
			}
			if err != nil {
				return reject(apperr.Auth("Invalid token").WithCode(apperr.CodeInvalidToken).Wrap(err))
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), reloadTimeout)
			acct, err := accounts.GetByID(ctx, claims.ID)
			cancel()
			if errors.Is(err, repository.ErrNotFound) {
				return reject(apperr.Auth("Invalid token").WithCode(apperr.CodeInvalidToken))
			}
			if err != nil {
				return apperr.Internal(err)
			}

			switch {
			case acct.Status == model.StatusInactive:
				return reject(apperr.Forbidden("Account is inactive").WithCode(apperr.CodeAccountInactive))
			case acct.Status.Blocked():
				return reject(apperr.Forbidden("Account is " + acct.Status.String()).WithCode(apperr.CodeAccountBlocked))
			}

			if claims.ForceLogout < acct.ForceLogout {
				return reject(apperr.Auth("Session has been invalidated").WithCode(apperr.CodeSessionInvalidated))
			}

			WithAccount(c, acct)
			return next(c)
		}
	}
}

// RequireRole admits only accounts whose role ranks at least min.  It must
// run after Authenticate.
func RequireRole(min model.Role, m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acct := AccountFrom(c)
			if acct == nil {
				m.GateRejected(apperr.CodeMissingToken)
				return apperr.Auth("Authentication token required").WithCode(apperr.CodeMissingToken)
			}
			if !acct.Role.AtLeast(min) {
				m.GateRejected(apperr.CodeInsufficientRole)
				return apperr.Forbidden("Insufficient permissions").WithCode(apperr.CodeInsufficientRole)
			}
			return next(c)
		}
	}
}

// WithAccount records acct as the authenticated account of the request.
func WithAccount(c echo.Context, acct *model.Account) {
	c.Set(accountKey, acct)
}

// AccountFrom returns the account admitted by Authenticate, or nil.
func AccountFrom(c echo.Context) *model.Account {
	acct, _ := c.Get(accountKey).(*model.Account)
	return acct
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}
