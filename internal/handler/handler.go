// Package handler holds the echo handlers of the account API.  Handlers
// decode and validate input, call the account service and render the
// {success, message, data} envelope; errors are returned to echo and
// rendered by ErrorHandler.
package handler

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/webshop-accounts/internal/apperr"
	"github.com/iliyamo/webshop-accounts/internal/middleware"
	"github.com/iliyamo/webshop-accounts/internal/model"
	"github.com/iliyamo/webshop-accounts/internal/service"
)

// AccountService is the part of *service.AccountService the handlers use.
type AccountService interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.Account, error)
	Login(ctx context.Context, in service.LoginInput) (*service.LoginResult, error)
	Logout(ctx context.Context, caller *model.Account) error
	ConfirmEmail(ctx context.Context, in service.ConfirmEmailInput) error
	Get(ctx context.Context, caller *model.Account, id uint64) (*model.Account, error)
	UpdateProfile(ctx context.Context, caller *model.Account, in service.ProfileUpdateInput) (*model.Account, error)
	ChangePassword(ctx context.Context, caller *model.Account, in service.PasswordChangeInput) error
	List(ctx context.Context, page, limit int) (*service.Page, error)
	Delete(ctx context.Context, caller *model.Account, id uint64) error
	SetStatus(ctx context.Context, caller *model.Account, id uint64, in service.AdminStatusInput) (*model.Account, error)
	SetVerification(ctx context.Context, caller *model.Account, id uint64, in service.AdminVerifyInput) (*model.Account, error)
	ForceLogout(ctx context.Context, caller *model.Account, id uint64) error
}

const (
	// bcrypt at production cost dominates these
	credentialTimeout = 15 * time.Second
	requestTimeout    = 5 * time.Second
)

func withTimeout(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), d)
}

// caller returns the account admitted by the gate.
func caller(c echo.Context) (*model.Account, error) {
	acct := middleware.AccountFrom(c)
	if acct == nil {
		return nil, apperr.Auth("Authentication token required").WithCode(apperr.CodeMissingToken)
	}
	return acct, nil
}
