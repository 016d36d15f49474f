package handler // declare the package name; contains HTTP handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-inventory/internal/inventory"
)

// Health returns the liveness handler for GET /healthz.  It reports how
// many schedules the ledger currently holds.
func Health(ledger *inventory.Ledger) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "schedules": len(ledger.Schedules())})
	}
}
