// Package seatmap binds control numbers to fixed seats for schedules that
// use controlled seating.  A Map is a plain data structure; the inventory
// ledger owns one per controlled schedule and serialises access to it.
package seatmap

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownSeat = errors.New("unknown seat")
	ErrUnboundUnit = errors.New("unit has no seat")
)

// Map is a one-to-one binding between seat references and control numbers.
// Seats can additionally be blocked (house seats, broken seats) which makes
// them unavailable for allocation without changing the binding.
type Map struct {
	seatToUnit map[string]int
	unitToSeat map[int]string
	blocked    map[string]bool
}

// New builds a Map from seat reference to control number.  Seat references
// are trimmed; empty references and a unit bound to two seats are errors.
func New(bindings map[string]int) (*Map, error) {
	m := &Map{
		seatToUnit: make(map[string]int, len(bindings)),
		unitToSeat: make(map[int]string, len(bindings)),
		blocked:    map[string]bool{},
	}
	for raw, unit := range bindings {
		seat := strings.TrimSpace(raw)
		if seat == "" {
			return nil, errors.New("seat map: empty seat reference")
		}
		if unit <= 0 {
			return nil, fmt.Errorf("seat map: seat %s bound to invalid control number %d", seat, unit)
		}
		if _, dup := m.seatToUnit[seat]; dup {
			return nil, fmt.Errorf("seat map: seat %s listed twice", seat)
		}
		if other, dup := m.unitToSeat[unit]; dup {
			return nil, fmt.Errorf("seat map: control number %d bound to both %s and %s", unit, other, seat)
		}
		m.seatToUnit[seat] = unit
		m.unitToSeat[unit] = seat
	}
	return m, nil
}

// Len returns the number of bound seats.
func (m *Map) Len() int { return len(m.seatToUnit) }

// UnitFor returns the control number bound to seat.
func (m *Map) UnitFor(seat string) (int, bool) {
	u, ok := m.seatToUnit[strings.TrimSpace(seat)]
	return u, ok
}

// SeatFor returns the seat bound to unit.
func (m *Map) SeatFor(unit int) (string, bool) {
	s, ok := m.unitToSeat[unit]
	return s, ok
}

// Blocked reports whether seat is blocked.
func (m *Map) Blocked(seat string) bool { return m.blocked[strings.TrimSpace(seat)] }

// Block marks seat unavailable for allocation.
func (m *Map) Block(seat string) error {
	seat = strings.TrimSpace(seat)
	if _, ok := m.seatToUnit[seat]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSeat, seat)
	}
	m.blocked[seat] = true
	return nil
}

// Unblock reverses Block.
func (m *Map) Unblock(seat string) error {
	seat = strings.TrimSpace(seat)
	if _, ok := m.seatToUnit[seat]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSeat, seat)
	}
	delete(m.blocked, seat)
	return nil
}

// Bookable reports whether unit has a seat and that seat is not blocked.
// Whether the seat is occupied is decided by the unit's state, which the
// map does not know.
func (m *Map) Bookable(unit int) (string, error) {
	seat, ok := m.unitToSeat[unit]
	if !ok {
		return "", ErrUnboundUnit
	}
	if m.blocked[seat] {
		return seat, fmt.Errorf("seat %s is blocked", seat)
	}
	return seat, nil
}

// Resolve translates a seat selection into ascending control numbers.
// Unknown seats are reported together; selecting a seat twice is an error.
func (m *Map) Resolve(seats []string) ([]int, error) {
	ids := make([]int, 0, len(seats))
	seen := make(map[string]bool, len(seats))
	var unknown []string
	for _, raw := range seats {
		seat := strings.TrimSpace(raw)
		if seen[seat] {
			return nil, fmt.Errorf("seat %s selected twice", seat)
		}
		seen[seat] = true
		unit, ok := m.seatToUnit[seat]
		if !ok {
			unknown = append(unknown, seat)
			continue
		}
		ids = append(ids, unit)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSeat, strings.Join(unknown, ", "))
	}
	sort.Ints(ids)
	return ids, nil
}

// Clone returns an independent copy of m.
func (m *Map) Clone() *Map {
	out := &Map{
		seatToUnit: make(map[string]int, len(m.seatToUnit)),
		unitToSeat: make(map[int]string, len(m.unitToSeat)),
		blocked:    make(map[string]bool, len(m.blocked)),
	}
	for k, v := range m.seatToUnit {
		out.seatToUnit[k] = v
	}
	for k, v := range m.unitToSeat {
		out.unitToSeat[k] = v
	}
	for k, v := range m.blocked {
		out.blocked[k] = v
	}
	return out
}
