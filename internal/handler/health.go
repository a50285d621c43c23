package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves the liveness and banner endpoints.
type HealthHandler struct {
	DB      Pinger
	Version string
	Log     *slog.Logger
}

func NewHealthHandler(db Pinger, version string, log *slog.Logger) *HealthHandler {
	return &HealthHandler{DB: db, Version: version, Log: log}
}

// Root is the service banner on GET /.
func (h *HealthHandler) Root(c echo.Context) error {
	return success(c, http.StatusOK, "Webshop accounts API is running", echo.Map{"version": h.Version})
}

// Healthz reports whether the database answers within two seconds.  Load
// balancers use it, so it returns 503 rather than 500 when the store is down.
func (h *HealthHandler) Healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.PingContext(ctx); err != nil {
		h.Log.Error("healthz: db ping failed", "err", err)
		return c.JSON(http.StatusServiceUnavailable, envelope{Success: false, Message: "Database unavailable"})
	}
	return success(c, http.StatusOK, "ok", echo.Map{"database": "up"})
}
