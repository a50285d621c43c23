package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/webshop-accounts/internal/service"
)

// ProfileHandler serves the caller's own account and account lookups.
type ProfileHandler struct {
	Accounts AccountService
}

func NewProfileHandler(accounts AccountService) *ProfileHandler {
	return &ProfileHandler{Accounts: accounts}
}

// Me: GET /me.  The gate already reloaded the account, so no query runs.
func (h *ProfileHandler) Me(c echo.Context) error {
	acct, err := caller(c)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "User profile retrieved successfully", userData{User: newUserResponse(acct)})
}

// UpdateMe: PUT /me
func (h *ProfileHandler) UpdateMe(c echo.Context) error {
	acct, err := caller(c)
	if err != nil {
		return err
	}
	var in service.ProfileUpdateInput
	if err := bindStrict(c, &in); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	updated, err := h.Accounts.UpdateProfile(ctx, acct, in)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "Profile updated successfully", userData{User: newUserResponse(updated)})
}

// ChangePassword: PUT /me/password
func (h *ProfileHandler) ChangePassword(c echo.Context) error {
	acct, err := caller(c)
	if err != nil {
		return err
	}
	var in service.PasswordChangeInput
	if err := bindStrict(c, &in); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c, credentialTimeout)
	defer cancel()

	if err := h.Accounts.ChangePassword(ctx, acct, in); err != nil {
		return err
	}
	return success(c, http.StatusOK, "Password updated successfully, please log in again", nil)
}

// Get: GET /:id.  Callers may read themselves; admins may read anyone.
func (h *ProfileHandler) Get(c echo.Context) error {
	acct, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	found, err := h.Accounts.Get(ctx, acct, id)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "User retrieved successfully", userData{User: newUserResponse(found)})
}
