package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// UnitState is the exclusive lifecycle state of a ticket unit within a
// schedule.  Remittance is not a state of its own; it is a flag layered
// on top of StateSold (see RemittanceFlags).
type UnitState int

const (
	StateNotAllocated UnitState = iota // initial state of every unit
	StateAllocated                     // owned by exactly one agent, unsold
	StateSold                          // sold by its owning agent
	StateLost                          // reported lost in a remittance batch; terminal
)

// String returns the wire name of the state.
func (s UnitState) String() string {
	switch s {
	case StateNotAllocated:
		return "not_allocated"
	case StateAllocated:
		return "allocated"
	case StateSold:
		return "sold"
	case StateLost:
		return "lost"
	}
	return fmt.Sprintf("UnitState(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler so states render by name in
// JSON responses and queue payloads.
func (s UnitState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Section is the seating area a unit belongs to.
type Section string

const (
	SectionOrchestra Section = "orchestra"
	SectionBalcony   Section = "balcony"
)

// Valid reports whether s is one of the known sections.
func (s Section) Valid() bool {
	return s == SectionOrchestra || s == SectionBalcony
}

// RemittanceFlags carry the back-office reconciliation status of a sold
// unit.  DiscountPercentage is only set on remitted units that were
// reported as discounted.
type RemittanceFlags struct {
	IsRemitted         bool             `json:"is_remitted"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage,omitempty"`
}

// Customer is the optional contact captured at point of sale.  It travels
// with a unit when the unit is exchanged to another schedule.
type Customer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Unit is one ticket identifier (control number) within one schedule.
//
// Fields:
//
//	ID              – control number, unique within the schedule.
//	Section         – orchestra or balcony.
//	SeatRef         – bound seat under controlled seating, empty otherwise.
//	IsComplimentary – excluded from sale and count-based allocation.
//	Price           – face value of the ticket.
//	State           – current lifecycle state.
//	OwnerAgentID    – owning distributor; zero when not allocated.
//	Remittance      – remittance flags, meaningful only when sold.
//	Customer        – buyer captured at sale, if any.
type Unit struct {
	ID              int             `json:"id"`
	Section         Section         `json:"section"`
	SeatRef         string          `json:"seat_ref,omitempty"`
	IsComplimentary bool            `json:"is_complimentary"`
	Price           decimal.Decimal `json:"price"`
	State           UnitState       `json:"state"`
	OwnerAgentID    uint64          `json:"owner_agent_id,omitempty"`
	Remittance      RemittanceFlags `json:"remittance"`
	Customer        *Customer       `json:"customer,omitempty"`
}

// Clone returns a deep copy of u so callers can never alias ledger state.
func (u Unit) Clone() Unit {
	out := u
	if u.Remittance.DiscountPercentage != nil {
		d := *u.Remittance.DiscountPercentage
		out.Remittance.DiscountPercentage = &d
	}
	if u.Customer != nil {
		c := *u.Customer
		out.Customer = &c
	}
	return out
}
