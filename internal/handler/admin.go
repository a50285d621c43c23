package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/webshop-accounts/internal/apperr"
	"github.com/iliyamo/webshop-accounts/internal/model"
	"github.com/iliyamo/webshop-accounts/internal/service"
)

// AdminHandler serves /admin/users.  Routes are mounted behind
// Authenticate and RequireRole(admin).
type AdminHandler struct {
	Accounts AccountService
}

func NewAdminHandler(accounts AccountService) *AdminHandler {
	return &AdminHandler{Accounts: accounts}
}

// List: GET /admin/users?page=&limit=
func (h *AdminHandler) List(c echo.Context) error {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	res, err := h.Accounts.List(ctx, page, limit)
	if err != nil {
		return err
	}
	users := make([]userResponse, 0, len(res.Accounts))
	for i := range res.Accounts {
		users = append(users, newUserResponse(&res.Accounts[i]))
	}
	return success(c, http.StatusOK, "Users retrieved successfully", listData{
		Users: users, Total: res.Total, Page: res.Page, Limit: res.Limit,
	})
}

// Delete: DELETE /admin/users/:id
func (h *AdminHandler) Delete(c echo.Context) error {
	acct, id, err := adminTarget(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	if err := h.Accounts.Delete(ctx, acct, id); err != nil {
		return err
	}
	return success(c, http.StatusOK, "User deleted successfully", nil)
}

// SetStatus: PATCH /admin/users/:id/status {status: 0..3}
func (h *AdminHandler) SetStatus(c echo.Context) error {
	acct, id, err := adminTarget(c)
	if err != nil {
		return err
	}
	var in service.AdminStatusInput
	if err := bindStrict(c, &in); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	updated, err := h.Accounts.SetStatus(ctx, acct, id, in)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "User status updated successfully", userData{User: newUserResponse(updated)})
}

// SetVerification: PATCH /admin/users/:id/verification {verified: bool}
func (h *AdminHandler) SetVerification(c echo.Context) error {
	acct, id, err := adminTarget(c)
	if err != nil {
		return err
	}
	var in service.AdminVerifyInput
	if err := bindStrict(c, &in); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	updated, err := h.Accounts.SetVerification(ctx, acct, id, in)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "User verification status updated successfully", userData{User: newUserResponse(updated)})
}

// ForceLogout: POST /admin/users/:id/force-logout
func (h *AdminHandler) ForceLogout(c echo.Context) error {
	acct, id, err := adminTarget(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	if err := h.Accounts.ForceLogout(ctx, acct, id); err != nil {
		return err
	}
	return success(c, http.StatusOK, "User force logout successful", nil)
}

func adminTarget(c echo.Context) (*model.Account, uint64, error) {
	acct, err := caller(c)
	if err != nil {
		return nil, 0, err
	}
	id, err := pathID(c)
	if err != nil {
		return nil, 0, err
	}
	return acct, id, nil
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperr.Validation("Query parameter " + name + " must be a positive integer")
	}
	return n, nil
}
