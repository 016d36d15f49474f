package model

import "github.com/shopspring/decimal"

// SeatingMode tells whether the units of a schedule are bound to physical
// seats (controlled) or fungible within their section (free).
type SeatingMode string

const (
	SeatingFree       SeatingMode = "free"
	SeatingControlled SeatingMode = "controlled"
)

// Schedule is one performance of a show.  The unit set is fixed when the
// schedule is created and never resized afterwards.
//
// Fields:
//
//	ID            – schedule identifier assigned by the show catalogue.
//	SeatingMode   – free or controlled seating.
//	CommissionFee – fee retained by the agent per sold unit at remittance.
//	TotalUnits    – size of the fixed unit set.
type Schedule struct {
	ID            uint64          `json:"id"`
	SeatingMode   SeatingMode     `json:"seating_mode"`
	CommissionFee decimal.Decimal `json:"commission_fee"`
	TotalUnits    int             `json:"total_units"`
}

// Controlled reports whether the schedule uses controlled seating.
func (s Schedule) Controlled() bool { return s.SeatingMode == SeatingControlled }
