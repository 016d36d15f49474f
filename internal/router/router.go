package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/ticket-inventory/internal/handler"
	"github.com/iliyamo/ticket-inventory/internal/middleware"
)

// Options carries everything RegisterRoutes wires together.  RateLimit
// wraps every mutating route; a nil value disables it.
type Options struct {
	JWTSecret      string
	RateLimit      echo.MiddlewareFunc
	MetricsEnabled bool
}

// RegisterRoutes registers the health check, the metrics endpoint and the
// authenticated inventory API under /v1.
func RegisterRoutes(e *echo.Echo, s *handler.ScheduleHandler, inv *handler.InventoryHandler, opts Options) {
	// Unauthenticated probes for load balancers and scrapers.
	e.GET("/healthz", handler.Health(s.Ledger))
	if opts.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	limit := opts.RateLimit
	if limit == nil {
		limit = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	// Every /v1 route needs a valid access token and a known role.
	v1 := e.Group("/v1",
		middleware.JWTAuth(opts.JWTSecret),
		middleware.RequireRole(middleware.RoleAdmin, middleware.RoleDistributor),
	)
	v1.POST("/control-numbers/parse", handler.ParseControlNumbers)
	v1.POST("/control-numbers/compress", handler.CompressControlNumbers)
	v1.GET("/schedules/:id/units/:number", s.GetUnit)
	v1.GET("/schedules/:id/agents/:agent_id", inv.Holdings)
	v1.POST("/schedules/:id/sales", inv.MarkSold, limit)
	v1.POST("/schedules/:id/sales/void", inv.MarkUnsold, limit)
	v1.POST("/transfers", inv.TransferUnit, limit)

	// Administration: schedule setup, allocation and remittance.
	admin := v1.Group("", middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("/schedules", s.Create, limit)
	admin.DELETE("/schedules/:id", s.Delete, limit)
	admin.GET("/schedules/:id/units", s.Snapshot)
	admin.POST("/schedules/:id/seats/:seat/block", s.BlockSeat, limit)
	admin.DELETE("/schedules/:id/seats/:seat/block", s.UnblockSeat, limit)
	admin.POST("/schedules/:id/allocations", inv.Allocate, limit)
	admin.POST("/schedules/:id/allocations/seats", inv.AllocateSeats, limit)
	admin.POST("/schedules/:id/allocations/distribute", inv.Distribute, limit)
	admin.POST("/schedules/:id/unallocations", inv.Unallocate, limit)
	admin.POST("/schedules/:id/remittances", inv.Remit, limit)
	admin.POST("/schedules/:id/remittances/void", inv.Unremit, limit)
	admin.GET("/schedules/:id/history", inv.History)
}
