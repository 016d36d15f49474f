package inventory

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticket-inventory/internal/model"
	"github.com/iliyamo/ticket-inventory/internal/seatmap"
)

// TransitionKind enumerates the only legal mutations of a unit.
//
//	not_allocated --Allocate-->    allocated
//	allocated     --Unallocate-->  not_allocated
//	allocated     --Sell-->        sold
//	sold          --Unsell-->      allocated      (not while remitted)
//	sold          --Remit-->       sold+remitted
//	sold+remitted --Unremit-->     sold
//	allocated|sold --MarkLost-->   lost           (not while remitted; terminal)
//	sold          --TransferOut--> not_allocated  (not while remitted)
//	not_allocated --TransferIn-->  sold
type TransitionKind int

const (
	Allocate TransitionKind = iota + 1
	Unallocate
	Sell
	Unsell
	Remit
	Unremit
	MarkLost
	TransferOut
	TransferIn
)

func (k TransitionKind) String() string {
	switch k {
	case Allocate:
		return "allocate"
	case Unallocate:
		return "unallocate"
	case Sell:
		return "sell"
	case Unsell:
		return "unsell"
	case Remit:
		return "remit"
	case Unremit:
		return "unremit"
	case MarkLost:
		return "mark_lost"
	case TransferOut:
		return "transfer_out"
	case TransferIn:
		return "transfer_in"
	}
	return fmt.Sprintf("TransitionKind(%d)", int(k))
}

// Transition is a requested mutation.  AgentID is the new owner for
// Allocate and TransferIn and the required current owner for every other
// kind.  Customer is recorded by Sell and TransferIn; Discount by Remit.
type Transition struct {
	Kind     TransitionKind
	AgentID  uint64
	Customer *model.Customer
	Discount *decimal.Decimal
}

// apply mutates u in place when t is legal from u's current state and
// leaves it untouched otherwise.
func apply(sched model.Schedule, seats *seatmap.Map, u *model.Unit, t Transition) error {
	violation := func(expected, reason string) error {
		return &StateViolationError{
			ScheduleID: sched.ID,
			UnitIDs:    []int{u.ID},
			Expected:   expected,
			Actual:     describe(u),
			Reason:     reason,
		}
	}
	owned := func() error {
		if u.OwnerAgentID != t.AgentID {
			return &StateViolationError{
				ScheduleID: sched.ID,
				UnitIDs:    []int{u.ID},
				Reason:     fmt.Sprintf("owned by agent %d, not agent %d", u.OwnerAgentID, t.AgentID),
			}
		}
		return nil
	}

	switch t.Kind {
	case Allocate, TransferIn:
		if u.State != model.StateNotAllocated {
			return violation(model.StateNotAllocated.String(), "")
		}
		if t.AgentID == 0 {
			return violation(model.StateNotAllocated.String(), "missing agent")
		}
		if err := eligible(sched, seats, u); err != nil {
			return err
		}
		u.OwnerAgentID = t.AgentID
		if t.Kind == Allocate {
			u.State = model.StateAllocated
			return nil
		}
		u.State = model.StateSold
		u.Customer = t.Customer
		return nil

	case Unallocate:
		if u.State != model.StateAllocated {
			return violation(model.StateAllocated.String(), "")
		}
		if err := owned(); err != nil {
			return err
		}
		u.State = model.StateNotAllocated
		u.OwnerAgentID = 0
		return nil

	case Sell:
		if u.State != model.StateAllocated {
			return violation(model.StateAllocated.String(), "")
		}
		if err := owned(); err != nil {
			return err
		}
		u.State = model.StateSold
		u.Customer = t.Customer
		return nil

	case Unsell, TransferOut:
		if u.State != model.StateSold || u.Remittance.IsRemitted {
			return violation("sold (unremitted)", "")
		}
		if err := owned(); err != nil {
			return err
		}
		u.Customer = nil
		if t.Kind == Unsell {
			u.State = model.StateAllocated
			return nil
		}
		u.State = model.StateNotAllocated
		u.OwnerAgentID = 0
		return nil

	case Remit:
		if u.State != model.StateSold || u.Remittance.IsRemitted {
			return violation("sold (unremitted)", "")
		}
		if err := owned(); err != nil {
			return err
		}
		u.Remittance.IsRemitted = true
		if t.Discount != nil {
			d := *t.Discount
			u.Remittance.DiscountPercentage = &d
		}
		return nil

	case Unremit:
		if u.State != model.StateSold || !u.Remittance.IsRemitted {
			return violation("sold (remitted)", "")
		}
		if err := owned(); err != nil {
			return err
		}
		u.Remittance = model.RemittanceFlags{}
		return nil

	case MarkLost:
		switch u.State {
		case model.StateAllocated:
		case model.StateSold:
			if u.Remittance.IsRemitted {
				return violation("allocated or unremitted sold", "")
			}
		case model.StateNotAllocated, model.StateLost:
			return violation("allocated or unremitted sold", "")
		default:
			return violation("allocated or unremitted sold", "unknown state")
		}
		if err := owned(); err != nil {
			return err
		}
		u.State = model.StateLost
		u.Customer = nil
		return nil
	}
	return fmt.Errorf("inventory: unknown transition %s", t.Kind)
}

// eligible reports whether a not-allocated unit may be handed to an agent:
// it must not be complimentary and, under controlled seating, must sit on
// a bound seat that is not blocked.
func eligible(sched model.Schedule, seats *seatmap.Map, u *model.Unit) error {
	if u.IsComplimentary {
		return &StateViolationError{ScheduleID: sched.ID, UnitIDs: []int{u.ID}, Reason: "complimentary units cannot be allocated or sold"}
	}
	if !sched.Controlled() {
		return nil
	}
	if seats == nil {
		return &StateViolationError{ScheduleID: sched.ID, UnitIDs: []int{u.ID}, Reason: "schedule has no seat map"}
	}
	if _, err := seats.Bookable(u.ID); err != nil {
		return &StateViolationError{ScheduleID: sched.ID, UnitIDs: []int{u.ID}, Reason: "no free seat: " + err.Error()}
	}
	return nil
}

func describe(u *model.Unit) string {
	if u.State == model.StateSold && u.Remittance.IsRemitted {
		return "sold (remitted)"
	}
	return u.State.String()
}
