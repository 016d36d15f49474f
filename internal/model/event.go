package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AllocationType distinguishes allocate from unallocate entries.
type AllocationType string

const (
	AllocationAllocate   AllocationType = "allocate"
	AllocationUnallocate AllocationType = "unallocate"
)

// AllocationEvent is an immutable history entry for one allocation batch.
// UnitIDs is sorted ascending.
type AllocationEvent struct {
	ID         string         `json:"id"`
	ScheduleID uint64         `json:"schedule_id"`
	Type       AllocationType `json:"type"`
	UnitIDs    []int          `json:"unit_ids"`
	AgentID    uint64         `json:"agent_id"`
	ActorID    uint64         `json:"actor_id"`
	Timestamp  time.Time      `json:"timestamp"`
}

// RemittanceDirection distinguishes remit from unremit entries.
type RemittanceDirection string

const (
	DirectionRemit   RemittanceDirection = "remit"
	DirectionUnremit RemittanceDirection = "unremit"
)

// Settlement is the cash reconciliation of a remittance batch.
//
//	TotalSales = Σ price(sold) − Discounts
//	Commission = |sold| × commission fee
//	AmountDue  = TotalSales − Commission
type Settlement struct {
	GrossSales decimal.Decimal `json:"gross_sales"`
	Discounts  decimal.Decimal `json:"discounts"`
	TotalSales decimal.Decimal `json:"total_sales"`
	Commission decimal.Decimal `json:"commission"`
	AmountDue  decimal.Decimal `json:"amount_due"`
}

// RemittanceEvent is an immutable history entry for one remittance batch.
// For unremit entries SoldIDs holds the reverted units and Settlement the
// amounts being reversed.
type RemittanceEvent struct {
	ID                 string              `json:"id"`
	ScheduleID         uint64              `json:"schedule_id"`
	Direction          RemittanceDirection `json:"direction"`
	SoldIDs            []int               `json:"sold_ids"`
	LostIDs            []int               `json:"lost_ids"`
	DiscountedIDs      []int               `json:"discounted_ids"`
	DiscountPercentage *decimal.Decimal    `json:"discount_percentage,omitempty"`
	CommissionFee      decimal.Decimal     `json:"commission_fee"`
	Settlement         Settlement          `json:"settlement"`
	Remarks            string              `json:"remarks,omitempty"`
	AgentID            uint64              `json:"agent_id"`
	ActorID            uint64              `json:"actor_id"`
	Timestamp          time.Time           `json:"timestamp"`
}

// TransferEvent is an immutable history entry for one exchange of a unit
// between two schedules.  PriceDelta is price(to) − price(from).
type TransferEvent struct {
	ID             string          `json:"id"`
	FromScheduleID uint64          `json:"from_schedule_id"`
	FromUnitID     int             `json:"from_unit_id"`
	ToScheduleID   uint64          `json:"to_schedule_id"`
	ToUnitID       int             `json:"to_unit_id"`
	AgentID        uint64          `json:"agent_id"`
	PriceDelta     decimal.Decimal `json:"price_delta"`
	Remarks        string          `json:"remarks,omitempty"`
	ActorID        uint64          `json:"actor_id"`
	Timestamp      time.Time       `json:"timestamp"`
}
