package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/webshop-accounts/internal/service"
)

// AuthHandler serves registration, login, logout and email confirmation.
type AuthHandler struct {
	Accounts AccountService
}

func NewAuthHandler(accounts AccountService) *AuthHandler {
	return &AuthHandler{Accounts: accounts}
}

// Register: POST /register
func (h *AuthHandler) Register(c echo.Context) error {
	var in service.RegisterInput
	if err := bindStrict(c, &in); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c, credentialTimeout)
	defer cancel()

	acct, err := h.Accounts.Register(ctx, in)
	if err != nil {
		return err
	}
	return success(c, http.StatusCreated, "User registered successfully", userData{User: newUserResponse(acct)})
}

// Login: POST /login
func (h *AuthHandler) Login(c echo.Context) error {
	var in service.LoginInput
	if err := bindStrict(c, &in); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c, credentialTimeout)
	defer cancel()

	res, err := h.Accounts.Login(ctx, in)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "Login successful", loginData{
		User:      newUserResponse(res.Account),
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt.Unix(),
	})
}

// Logout: POST /logout.  Every token of the caller stops working.
func (h *AuthHandler) Logout(c echo.Context) error {
	acct, err := caller(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	if err := h.Accounts.Logout(ctx, acct); err != nil {
		return err
	}
	return success(c, http.StatusOK, "Logged out successfully", nil)
}

// ConfirmEmail: POST /confirm-email
func (h *AuthHandler) ConfirmEmail(c echo.Context) error {
	var in service.ConfirmEmailInput
	if err := bindStrict(c, &in); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	if err := h.Accounts.ConfirmEmail(ctx, in); err != nil {
		return err
	}
	return success(c, http.StatusOK, "Email confirmed successfully", nil)
}
