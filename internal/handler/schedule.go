package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-inventory/internal/inventory"
	"github.com/iliyamo/ticket-inventory/internal/middleware"
	"github.com/iliyamo/ticket-inventory/internal/model"
)

// ScheduleHandler exposes schedule setup and read access to the ledger.
type ScheduleHandler struct {
	Ledger *inventory.Ledger
}

// NewScheduleHandler constructs a ScheduleHandler and panics on a nil ledger.
func NewScheduleHandler(ledger *inventory.Ledger) *ScheduleHandler {
	if ledger == nil {
		panic("nil ledger passed to NewScheduleHandler")
	}
	return &ScheduleHandler{Ledger: ledger}
}

// Create handles POST /v1/schedules.  Every unit of the new schedule starts
// not allocated.
func (h *ScheduleHandler) Create(c echo.Context) error {
	var spec inventory.ScheduleSpec
	if err := c.Bind(&spec); err != nil {
		return badRequest(c, "invalid request body")
	}
	if spec.ID == 0 {
		return badRequest(c, "id is required")
	}
	sched, err := h.Ledger.CreateSchedule(spec)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, sched)
}

// Delete handles DELETE /v1/schedules/:id.
func (h *ScheduleHandler) Delete(c echo.Context) error {
	id, ok := uintParam(c, "id")
	if !ok {
		return badRequest(c, "invalid schedule id")
	}
	if err := h.Ledger.DeleteSchedule(id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Snapshot handles GET /v1/schedules/:id/units.  The optional ?state=
// query keeps only units in that state (not_allocated, allocated, sold,
// lost).
func (h *ScheduleHandler) Snapshot(c echo.Context) error {
	id, ok := uintParam(c, "id")
	if !ok {
		return badRequest(c, "invalid schedule id")
	}
	sched, err := h.Ledger.Schedule(id)
	if err != nil {
		return writeError(c, err)
	}
	units, err := h.Ledger.Snapshot(id)
	if err != nil {
		return writeError(c, err)
	}
	if want := strings.ToLower(strings.TrimSpace(c.QueryParam("state"))); want != "" {
		kept := units[:0]
		for _, u := range units {
			if u.State.String() == want {
				kept = append(kept, u)
			}
		}
		units = kept
	}
	return c.JSON(http.StatusOK, echo.Map{"schedule": sched, "units": units})
}

// GetUnit handles GET /v1/schedules/:id/units/:number.  Distributors only
// see units they hold.
func (h *ScheduleHandler) GetUnit(c echo.Context) error {
	id, ok := uintParam(c, "id")
	if !ok {
		return badRequest(c, "invalid schedule id")
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number <= 0 {
		return badRequest(c, "invalid control number")
	}
	u, err := h.Ledger.GetUnit(id, number)
	if err != nil {
		return writeError(c, err)
	}
	if middleware.Role(c) == middleware.RoleDistributor {
		uid, err := getUserID(c)
		if err != nil {
			return unauthorized(c)
		}
		if u.State == model.StateNotAllocated || u.OwnerAgentID != uid {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "unit is not held by you"})
		}
	}
	return c.JSON(http.StatusOK, u)
}

// BlockSeat handles POST /v1/schedules/:id/seats/:seat/block.
func (h *ScheduleHandler) BlockSeat(c echo.Context) error {
	return h.seat(c, h.Ledger.BlockSeat)
}

// UnblockSeat handles DELETE /v1/schedules/:id/seats/:seat/block.
func (h *ScheduleHandler) UnblockSeat(c echo.Context) error {
	return h.seat(c, h.Ledger.UnblockSeat)
}

func (h *ScheduleHandler) seat(c echo.Context, op func(uint64, string) error) error {
	id, ok := uintParam(c, "id")
	if !ok {
		return badRequest(c, "invalid schedule id")
	}
	seat := strings.TrimSpace(c.Param("seat"))
	if seat == "" {
		return badRequest(c, "seat is required")
	}
	if err := op(id, seat); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
