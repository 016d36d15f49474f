package inventory

import (
	"errors"
	"fmt"

	"github.com/iliyamo/ticket-inventory/internal/rangecodec"
)

// Sentinel kinds.  Every concrete error below matches exactly one of them
// through errors.Is, so adapters can map kinds to responses without type
// switches.
var (
	ErrStateViolation   = errors.New("state violation")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrNotFound         = errors.New("not found")
	ErrInvalidSchedule  = errors.New("invalid schedule")
	// ErrInvalidRequest marks malformed service input that is neither a
	// notation error nor a state problem: a missing agent, a non-positive
	// count, a discount without discounted units.
	ErrInvalidRequest = errors.New("invalid request")
)

// InvalidRequest returns an error matching ErrInvalidRequest.
func InvalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// StateViolationError reports an illegal transition or a broken subset
// invariant.  UnitIDs lists the offending control numbers; Expected and
// Actual describe the states involved when that is meaningful.
type StateViolationError struct {
	ScheduleID uint64
	UnitIDs    []int
	Expected   string
	Actual     string
	Reason     string
}

func (e *StateViolationError) Error() string {
	msg := fmt.Sprintf("schedule %d", e.ScheduleID)
	if len(e.UnitIDs) > 0 {
		msg += fmt.Sprintf(": control numbers %s", rangecodec.Compress(e.UnitIDs))
	}
	if e.Expected != "" || e.Actual != "" {
		msg += fmt.Sprintf(": expected %s, found %s", e.Expected, e.Actual)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *StateViolationError) Is(target error) bool { return target == ErrStateViolation }

// CapacityError reports a request larger than the eligible pool.  It is
// always raised before any unit is touched.
type CapacityError struct {
	ScheduleID uint64
	Requested  int
	Available  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("schedule %d: requested %d units but only %d are available", e.ScheduleID, e.Requested, e.Available)
}

func (e *CapacityError) Is(target error) bool { return target == ErrCapacityExceeded }

// NotFoundError reports an unknown schedule, unit or seat reference.
type NotFoundError struct {
	Kind       string // "schedule", "unit" or "seat"
	ScheduleID uint64
	Ref        string
}

func (e *NotFoundError) Error() string {
	if e.Kind == "schedule" {
		return fmt.Sprintf("schedule %d not found", e.ScheduleID)
	}
	return fmt.Sprintf("schedule %d: %s %s not found", e.ScheduleID, e.Kind, e.Ref)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func scheduleNotFound(id uint64) error {
	return &NotFoundError{Kind: "schedule", ScheduleID: id}
}

func unitNotFound(scheduleID uint64, unitID int) error {
	return &NotFoundError{Kind: "unit", ScheduleID: scheduleID, Ref: fmt.Sprint(unitID)}
}
