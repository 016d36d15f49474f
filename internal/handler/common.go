package handler

// This file holds helpers shared by the inventory handlers: identity
// lookup, path parameter parsing and the translation of engine errors into
// HTTP responses.  Handlers stay thin; every rule lives in the engine.

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-inventory/internal/inventory"
	"github.com/iliyamo/ticket-inventory/internal/metrics"
	"github.com/iliyamo/ticket-inventory/internal/middleware"
	"github.com/iliyamo/ticket-inventory/internal/rangecodec"
)

// getUserID extracts the authenticated operator from the context.
func getUserID(c echo.Context) (uint64, error) {
	return middleware.UserID(c)
}

// actingAgent resolves the agent an operation acts for.  Distributors may
// only act as themselves, so their own id replaces whatever was requested;
// admins must name the agent.
func actingAgent(c echo.Context, requested uint64) (uint64, error) {
	uid, err := getUserID(c)
	if err != nil {
		return 0, err
	}
	if middleware.Role(c) == middleware.RoleDistributor {
		return uid, nil
	}
	return requested, nil
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// uintParam parses a positive integer path parameter.
func uintParam(c echo.Context, name string) (uint64, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	return n, err == nil && n > 0
}

// writeError maps engine error kinds to statuses:
// 400 notation or request errors, 404 unknown references, 409 state and
// capacity conflicts, 500 anything else.
func writeError(c echo.Context, err error) error {
	body := echo.Map{"error": err.Error(), "kind": metrics.Outcome(err)}
	var (
		overlap *rangecodec.OverlapError
		sv      *inventory.StateViolationError
		ce      *inventory.CapacityError
	)
	switch {
	case errors.As(err, &overlap):
		body["unit_ids"] = rangecodec.Compress(overlap.IDs)
		return c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, rangecodec.ErrSyntax),
		errors.Is(err, inventory.ErrInvalidRequest),
		errors.Is(err, inventory.ErrInvalidSchedule):
		return c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, inventory.ErrNotFound):
		return c.JSON(http.StatusNotFound, body)
	case errors.As(err, &sv):
		if len(sv.UnitIDs) > 0 {
			body["unit_ids"] = rangecodec.Compress(sv.UnitIDs)
		}
		if sv.Expected != "" {
			body["expected"] = sv.Expected
			body["actual"] = sv.Actual
		}
		return c.JSON(http.StatusConflict, body)
	case errors.As(err, &ce):
		body["requested"] = ce.Requested
		body["available"] = ce.Available
		return c.JSON(http.StatusConflict, body)
	}
	slog.Error("request failed", slog.String("path", c.Path()), slog.Any("error", err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
