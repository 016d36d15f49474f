package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticket-inventory/internal/allocation"
	"github.com/iliyamo/ticket-inventory/internal/history"
	"github.com/iliyamo/ticket-inventory/internal/model"
	"github.com/iliyamo/ticket-inventory/internal/rangecodec"
	"github.com/iliyamo/ticket-inventory/internal/sales"
	"github.com/iliyamo/ticket-inventory/internal/transfer"
)

// InventoryHandler bundles the lifecycle services.  Every mutating handler
// records the JWT subject as the actor of the resulting event.
type InventoryHandler struct {
	Allocation   *allocation.Service
	Sales        *sales.Service
	Transfer     *transfer.Service
	HistoryStore history.Store
}

// NewInventoryHandler constructs an InventoryHandler and panics if any
// dependency is nil.
func NewInventoryHandler(alloc *allocation.Service, sale *sales.Service, xfer *transfer.Service, store history.Store) *InventoryHandler {
	if alloc == nil || sale == nil || xfer == nil || store == nil {
		panic("nil dependency passed to NewInventoryHandler")
	}
	return &InventoryHandler{Allocation: alloc, Sales: sale, Transfer: xfer, HistoryStore: store}
}

type idsRequest struct {
	AgentID uint64          `json:"agent_id"`
	IDs     string          `json:"ids"`
	Seats   []string        `json:"seats,omitempty"`
	Buyer   *model.Customer `json:"customer,omitempty"`
}

type distributeRequest struct {
	Requests []allocation.Request `json:"requests"`
}

type remitRequest struct {
	AgentID            uint64           `json:"agent_id"`
	SoldIDs            string           `json:"sold_ids"`
	LostIDs            string           `json:"lost_ids"`
	DiscountedIDs      string           `json:"discounted_ids"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage,omitempty"`
	Remarks            string           `json:"remarks,omitempty"`
}

// scope resolves the schedule, the actor and the acting agent shared by
// every per-schedule mutation.
func scope(c echo.Context, requested uint64) (scheduleID, actorID, agentID uint64, resp error) {
	scheduleID, ok := uintParam(c, "id")
	if !ok {
		return 0, 0, 0, badRequest(c, "invalid schedule id")
	}
	actorID, err := getUserID(c)
	if err != nil {
		return 0, 0, 0, unauthorized(c)
	}
	agentID, err = actingAgent(c, requested)
	if err != nil {
		return 0, 0, 0, unauthorized(c)
	}
	return scheduleID, actorID, agentID, nil
}

// Allocate handles POST /v1/schedules/:id/allocations with a body of
// {"agent_id": 7, "ids": "1-10,15"}.
func (h *InventoryHandler) Allocate(c echo.Context) error {
	var req idsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	sid, actor, agent, resp := scope(c, req.AgentID)
	if sid == 0 {
		return resp
	}
	ev, err := h.Allocation.AllocateByIdentifiers(c.Request().Context(), sid, agent, req.IDs, actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, allocationView(ev))
}

// AllocateSeats handles POST /v1/schedules/:id/allocations/seats with a
// body of {"agent_id": 7, "seats": ["A1", "A2"]}.
func (h *InventoryHandler) AllocateSeats(c echo.Context) error {
	var req idsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	sid, actor, agent, resp := scope(c, req.AgentID)
	if sid == 0 {
		return resp
	}
	ev, err := h.Allocation.AllocateBySeats(c.Request().Context(), sid, agent, req.Seats, actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, allocationView(ev))
}

// Distribute handles POST /v1/schedules/:id/allocations/distribute.
func (h *InventoryHandler) Distribute(c echo.Context) error {
	var req distributeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	sid, actor, _, resp := scope(c, 0)
	if sid == 0 {
		return resp
	}
	evs, err := h.Allocation.AllocateByCount(c.Request().Context(), sid, req.Requests, actor)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]echo.Map, 0, len(evs))
	for _, ev := range evs {
		out = append(out, allocationView(ev))
	}
	return c.JSON(http.StatusCreated, echo.Map{"allocations": out})
}

// Unallocate handles POST /v1/schedules/:id/unallocations.
func (h *InventoryHandler) Unallocate(c echo.Context) error {
	var req idsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	sid, actor, agent, resp := scope(c, req.AgentID)
	if sid == 0 {
		return resp
	}
	ev, err := h.Allocation.Unallocate(c.Request().Context(), sid, agent, req.IDs, actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, allocationView(ev))
}

// MarkSold handles POST /v1/schedules/:id/sales.  An optional customer is
// attached to every unit of the batch.
func (h *InventoryHandler) MarkSold(c echo.Context) error {
	var req idsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	sid, _, agent, resp := scope(c, req.AgentID)
	if sid == 0 {
		return resp
	}
	ids, err := h.Sales.MarkSold(c.Request().Context(), sid, agent, req.IDs, req.Buyer)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"agent_id": agent, "sold": rangecodec.Compress(ids), "count": len(ids)})
}

// MarkUnsold handles POST /v1/schedules/:id/sales/void.
func (h *InventoryHandler) MarkUnsold(c echo.Context) error {
	var req idsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	sid, _, agent, resp := scope(c, req.AgentID)
	if sid == 0 {
		return resp
	}
	ids, err := h.Sales.MarkUnsold(c.Request().Context(), sid, agent, req.IDs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"agent_id": agent, "unsold": rangecodec.Compress(ids), "count": len(ids)})
}

// Remit handles POST /v1/schedules/:id/remittances.  The response carries
// the settlement computed for the batch.
func (h *InventoryHandler) Remit(c echo.Context) error {
	var req remitRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	sid, actor, agent, resp := scope(c, req.AgentID)
	if sid == 0 {
		return resp
	}
	ev, err := h.Sales.Remit(c.Request().Context(), sid, agent, sales.RemitRequest{
		SoldIDs:            req.SoldIDs,
		LostIDs:            req.LostIDs,
		DiscountedIDs:      req.DiscountedIDs,
		DiscountPercentage: req.DiscountPercentage,
		Remarks:            req.Remarks,
	}, actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, remittanceView(ev))
}

// Unremit handles POST /v1/schedules/:id/remittances/void.
func (h *InventoryHandler) Unremit(c echo.Context) error {
	var req idsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	sid, actor, agent, resp := scope(c, req.AgentID)
	if sid == 0 {
		return resp
	}
	ev, err := h.Sales.Unremit(c.Request().Context(), sid, agent, req.IDs, actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, remittanceView(ev))
}

// TransferUnit handles POST /v1/transfers.  Distributors can only move
// their own units.
func (h *InventoryHandler) TransferUnit(c echo.Context) error {
	var req transfer.Request
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	actor, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	if req.AgentID, err = actingAgent(c, req.AgentID); err != nil {
		return unauthorized(c)
	}
	ev, err := h.Transfer.Transfer(c.Request().Context(), req, actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, ev)
}

// Holdings handles GET /v1/schedules/:id/agents/:agent_id.
func (h *InventoryHandler) Holdings(c echo.Context) error {
	requested, ok := uintParam(c, "agent_id")
	if !ok {
		return badRequest(c, "invalid agent id")
	}
	sid, _, agent, resp := scope(c, requested)
	if sid == 0 {
		return resp
	}
	if agent != requested {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	out, err := h.Allocation.Holdings(sid, agent)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// History handles GET /v1/schedules/:id/history.  Events are listed oldest
// first; transfers include both directions.
func (h *InventoryHandler) History(c echo.Context) error {
	sid, ok := uintParam(c, "id")
	if !ok {
		return badRequest(c, "invalid schedule id")
	}
	ctx := c.Request().Context()
	allocs, err := h.HistoryStore.Allocations(ctx, sid)
	if err != nil {
		return writeError(c, err)
	}
	remits, err := h.HistoryStore.Remittances(ctx, sid)
	if err != nil {
		return writeError(c, err)
	}
	xfers, err := h.HistoryStore.Transfers(ctx, sid)
	if err != nil {
		return writeError(c, err)
	}
	a := make([]echo.Map, 0, len(allocs))
	for _, ev := range allocs {
		a = append(a, allocationView(ev))
	}
	r := make([]echo.Map, 0, len(remits))
	for _, ev := range remits {
		r = append(r, remittanceView(ev))
	}
	return c.JSON(http.StatusOK, echo.Map{"allocations": a, "remittances": r, "transfers": xfers})
}

// allocationView renders control numbers in compressed notation.
func allocationView(ev model.AllocationEvent) echo.Map {
	return echo.Map{
		"id":          ev.ID,
		"schedule_id": ev.ScheduleID,
		"type":        ev.Type,
		"unit_ids":    rangecodec.Compress(ev.UnitIDs),
		"count":       len(ev.UnitIDs),
		"agent_id":    ev.AgentID,
		"actor_id":    ev.ActorID,
		"timestamp":   ev.Timestamp,
	}
}

func remittanceView(ev model.RemittanceEvent) echo.Map {
	m := echo.Map{
		"id":             ev.ID,
		"schedule_id":    ev.ScheduleID,
		"direction":      ev.Direction,
		"sold_ids":       rangecodec.Compress(ev.SoldIDs),
		"lost_ids":       rangecodec.Compress(ev.LostIDs),
		"discounted_ids": rangecodec.Compress(ev.DiscountedIDs),
		"commission_fee": ev.CommissionFee,
		"settlement":     ev.Settlement,
		"agent_id":       ev.AgentID,
		"actor_id":       ev.ActorID,
		"timestamp":      ev.Timestamp,
	}
	if ev.DiscountPercentage != nil {
		m["discount_percentage"] = ev.DiscountPercentage
	}
	if ev.Remarks != "" {
		m["remarks"] = ev.Remarks
	}
	return m
}
