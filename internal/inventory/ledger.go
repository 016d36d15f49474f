// Package inventory is the authoritative record of every ticket unit of
// every schedule.  All mutation goes through a transition (see
// transition.go) applied inside a Tx; a Tx stages its changes and commits
// them only when the whole batch succeeds, so a failed batch leaves the
// ledger exactly as it was.
//
// Each schedule has its own lock.  Mutations of a schedule are serialised,
// readers share the lock and therefore never observe a half-applied batch.
// Operations spanning several schedules lock them in ascending id order.
package inventory

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticket-inventory/internal/model"
	"github.com/iliyamo/ticket-inventory/internal/rangecodec"
	"github.com/iliyamo/ticket-inventory/internal/seatmap"
)

// UnitBlock describes a contiguous run of control numbers sharing section,
// price and complimentary flag.
type UnitBlock struct {
	From          int             `json:"from"`
	To            int             `json:"to"`
	Section       model.Section   `json:"section"`
	Price         decimal.Decimal `json:"price"`
	Complimentary bool            `json:"complimentary"`
}

// ScheduleSpec is everything needed to create the fixed unit set of a
// schedule.  Seats maps seat references to control numbers and is only
// accepted for controlled seating.
type ScheduleSpec struct {
	ID            uint64            `json:"id"`
	SeatingMode   model.SeatingMode `json:"seating_mode"`
	CommissionFee decimal.Decimal   `json:"commission_fee"`
	Blocks        []UnitBlock       `json:"blocks"`
	Seats         map[string]int    `json:"seats,omitempty"`
}

type book struct {
	mu       sync.RWMutex
	schedule model.Schedule
	units    map[int]*model.Unit
	ids      []int // ascending
	seats    *seatmap.Map
	retired  bool
}

// Ledger holds the books of all live schedules.  The zero value is not
// usable; call NewLedger.
type Ledger struct {
	mu    sync.RWMutex
	books map[uint64]*book
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{books: make(map[uint64]*book)}
}

// CreateSchedule creates every unit of a schedule in state not_allocated.
// The unit set can never be resized afterwards.
func (l *Ledger) CreateSchedule(spec ScheduleSpec) (model.Schedule, error) {
	b, err := buildBook(spec)
	if err != nil {
		return model.Schedule{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.books[spec.ID]; exists {
		return model.Schedule{}, &StateViolationError{ScheduleID: spec.ID, Reason: "schedule already exists"}
	}
	l.books[spec.ID] = b
	return b.schedule, nil
}

func buildBook(spec ScheduleSpec) (*book, error) {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: schedule %d: %s", ErrInvalidSchedule, spec.ID, fmt.Sprintf(format, args...))
	}
	if spec.ID == 0 {
		return nil, invalid("missing id")
	}
	switch spec.SeatingMode {
	case model.SeatingFree, model.SeatingControlled:
	default:
		return nil, invalid("unknown seating mode %q", spec.SeatingMode)
	}
	if spec.CommissionFee.IsNegative() {
		return nil, invalid("negative commission fee")
	}
	if len(spec.Blocks) == 0 {
		return nil, invalid("no units")
	}
	b := &book{
		schedule: model.Schedule{ID: spec.ID, SeatingMode: spec.SeatingMode, CommissionFee: spec.CommissionFee},
		units:    map[int]*model.Unit{},
	}
	for _, blk := range spec.Blocks {
		if blk.From <= 0 || blk.From > blk.To {
			return nil, invalid("bad block %d-%d", blk.From, blk.To)
		}
		if blk.To > rangecodec.MaxControlNumber {
			return nil, invalid("control number %d out of range", blk.To)
		}
		if !blk.Section.Valid() {
			return nil, invalid("unknown section %q", blk.Section)
		}
		if blk.Price.IsNegative() {
			return nil, invalid("negative price in block %d-%d", blk.From, blk.To)
		}
		if blk.To-blk.From >= rangecodec.MaxIDs-len(b.ids) {
			return nil, invalid("too many units")
		}
		for id := blk.From; id <= blk.To; id++ {
			if _, dup := b.units[id]; dup {
				return nil, invalid("control number %d defined twice", id)
			}
			b.units[id] = &model.Unit{
				ID:              id,
				Section:         blk.Section,
				IsComplimentary: blk.Complimentary,
				Price:           blk.Price,
				State:           model.StateNotAllocated,
			}
			b.ids = append(b.ids, id)
		}
	}
	sort.Ints(b.ids)
	b.schedule.TotalUnits = len(b.ids)

	if len(spec.Seats) > 0 && spec.SeatingMode != model.SeatingControlled {
		return nil, invalid("seat map given for free seating")
	}
	if spec.SeatingMode == model.SeatingControlled {
		if len(spec.Seats) == 0 {
			return nil, invalid("controlled seating requires a seat map")
		}
		seats, err := seatmap.New(spec.Seats)
		if err != nil {
			return nil, invalid("%v", err)
		}
		for _, id := range b.ids {
			if seat, ok := seats.SeatFor(id); ok {
				b.units[id].SeatRef = seat
			}
		}
		for seat := range spec.Seats {
			unit, _ := seats.UnitFor(seat)
			if _, ok := b.units[unit]; !ok {
				return nil, invalid("seat %s bound to unknown control number %d", seat, unit)
			}
		}
		b.seats = seats
	}
	return b, nil
}

// DeleteSchedule retires a schedule and all its units at once.
func (l *Ledger) DeleteSchedule(id uint64) error {
	l.mu.Lock()
	b, ok := l.books[id]
	if ok {
		delete(l.books, id)
	}
	l.mu.Unlock()
	if !ok {
		return scheduleNotFound(id)
	}
	b.mu.Lock()
	b.retired = true
	b.mu.Unlock()
	return nil
}

// Schedules returns the ids of all live schedules in ascending order.
func (l *Ledger) Schedules() []uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]uint64, 0, len(l.books))
	for id := range l.books {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Schedule returns the schedule metadata.
func (l *Ledger) Schedule(id uint64) (model.Schedule, error) {
	var s model.Schedule
	err := l.View(id, func(tx *Tx) error {
		s = tx.Schedule()
		return nil
	})
	return s, err
}

// GetUnit returns a copy of one unit.
func (l *Ledger) GetUnit(scheduleID uint64, unitID int) (model.Unit, error) {
	var u model.Unit
	err := l.View(scheduleID, func(tx *Tx) error {
		var err error
		u, err = tx.Unit(unitID)
		return err
	})
	return u, err
}

// ApplyTransition applies a single transition as its own transaction.
func (l *Ledger) ApplyTransition(scheduleID uint64, unitID int, t Transition) (model.Unit, error) {
	var u model.Unit
	err := l.Update(scheduleID, func(tx *Tx) error {
		var err error
		u, err = tx.Apply(unitID, t)
		return err
	})
	return u, err
}

// Snapshot returns a point-in-time copy of every unit, ascending by id.
func (l *Ledger) Snapshot(scheduleID uint64) ([]model.Unit, error) {
	var out []model.Unit
	err := l.View(scheduleID, func(tx *Tx) error {
		out = tx.Units(nil)
		return nil
	})
	return out, err
}

// BlockSeat makes a seat of a controlled schedule unavailable for future
// allocation.  Units already holding the seat keep it.
func (l *Ledger) BlockSeat(scheduleID uint64, seat string) error {
	return l.seatOp(scheduleID, seat, (*seatmap.Map).Block)
}

// UnblockSeat reverses BlockSeat.
func (l *Ledger) UnblockSeat(scheduleID uint64, seat string) error {
	return l.seatOp(scheduleID, seat, (*seatmap.Map).Unblock)
}

func (l *Ledger) seatOp(scheduleID uint64, seat string, op func(*seatmap.Map, string) error) error {
	return l.Update(scheduleID, func(tx *Tx) error {
		if tx.b.seats == nil {
			return &StateViolationError{ScheduleID: scheduleID, Reason: "schedule does not use controlled seating"}
		}
		if err := op(tx.b.seats, seat); err != nil {
			if errors.Is(err, seatmap.ErrUnknownSeat) {
				return &NotFoundError{Kind: "seat", ScheduleID: scheduleID, Ref: seat}
			}
			return err
		}
		return nil
	})
}

func (l *Ledger) lookup(id uint64) (*book, error) {
	l.mu.RLock()
	b, ok := l.books[id]
	l.mu.RUnlock()
	if !ok {
		return nil, scheduleNotFound(id)
	}
	return b, nil
}

// View runs fn with a read-only transaction.  Apply on it always fails.
func (l *Ledger) View(scheduleID uint64, fn func(tx *Tx) error) error {
	b, err := l.lookup(scheduleID)
	if err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.retired {
		return scheduleNotFound(scheduleID)
	}
	return fn(&Tx{b: b, readOnly: true})
}

// Update runs fn with exclusive access to one schedule.  Changes made
// through the Tx become visible only if fn returns nil.
func (l *Ledger) Update(scheduleID uint64, fn func(tx *Tx) error) error {
	return l.UpdateMany([]uint64{scheduleID}, func(txs map[uint64]*Tx) error {
		return fn(txs[scheduleID])
	})
}

// UpdateMany runs fn with exclusive access to several schedules at once.
// Locks are taken in ascending schedule id order.  Either every staged
// change in every schedule is committed or none is.
func (l *Ledger) UpdateMany(scheduleIDs []uint64, fn func(txs map[uint64]*Tx) error) error {
	ids := make([]uint64, 0, len(scheduleIDs))
	seen := map[uint64]bool{}
	for _, id := range scheduleIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	books := make([]*book, 0, len(ids))
	for _, id := range ids {
		b, err := l.lookup(id)
		if err != nil {
			return err
		}
		books = append(books, b)
	}
	for _, b := range books {
		b.mu.Lock()
		defer b.mu.Unlock()
	}
	txs := make(map[uint64]*Tx, len(books))
	for i, b := range books {
		if b.retired {
			return scheduleNotFound(ids[i])
		}
		txs[ids[i]] = &Tx{b: b, staged: map[int]*model.Unit{}}
	}
	if err := fn(txs); err != nil {
		return err
	}
	for _, tx := range txs {
		tx.commit()
	}
	return nil
}

// Tx is a view of one schedule inside View or Update.  It must not be
// retained after the callback returns.
type Tx struct {
	b        *book
	staged   map[int]*model.Unit
	readOnly bool
}

// Schedule returns the schedule metadata.
func (tx *Tx) Schedule() model.Schedule { return tx.b.schedule }

// Seats returns the seat map of a controlled schedule, or nil.  Callers
// must treat it as read-only.
func (tx *Tx) Seats() *seatmap.Map { return tx.b.seats }

func (tx *Tx) current(id int) (*model.Unit, bool) {
	if u, ok := tx.staged[id]; ok {
		return u, true
	}
	u, ok := tx.b.units[id]
	return u, ok
}

// Unit returns a copy of a unit including changes staged in this Tx.
func (tx *Tx) Unit(id int) (model.Unit, error) {
	u, ok := tx.current(id)
	if !ok {
		return model.Unit{}, unitNotFound(tx.b.schedule.ID, id)
	}
	return u.Clone(), nil
}

// Units returns copies of all units matching keep (nil keeps all),
// ascending by id.
func (tx *Tx) Units(keep func(model.Unit) bool) []model.Unit {
	out := make([]model.Unit, 0, len(tx.b.ids))
	for _, id := range tx.b.ids {
		u, _ := tx.current(id)
		if keep == nil || keep(*u) {
			out = append(out, u.Clone())
		}
	}
	return out
}

// Eligible returns, ascending, the control numbers that could be allocated
// right now: not allocated, not complimentary and, under controlled
// seating, on a free unblocked seat.
func (tx *Tx) Eligible() []int {
	var ids []int
	for _, id := range tx.b.ids {
		u, _ := tx.current(id)
		if u.State == model.StateNotAllocated && eligible(tx.b.schedule, tx.b.seats, u) == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Apply stages one transition and returns the resulting unit.
func (tx *Tx) Apply(id int, t Transition) (model.Unit, error) {
	if tx.readOnly {
		return model.Unit{}, errors.New("inventory: write in read-only transaction")
	}
	cur, ok := tx.current(id)
	if !ok {
		return model.Unit{}, unitNotFound(tx.b.schedule.ID, id)
	}
	next := cur.Clone()
	if err := apply(tx.b.schedule, tx.b.seats, &next, t); err != nil {
		return model.Unit{}, err
	}
	tx.staged[id] = &next
	return next.Clone(), nil
}

// ApplyAll stages the same transition for every id in ascending order and
// stops at the first failure.  The caller's Update discards everything
// staged when it returns that error.
func (tx *Tx) ApplyAll(ids []int, t Transition) error {
	sorted := make([]int, len(ids))
	copy(sorted, ids)
	sort.Ints(sorted)
	for _, id := range sorted {
		if _, err := tx.Apply(id, t); err != nil {
			return err
		}
	}
	return nil
}

func (tx *Tx) commit() {
	for id, u := range tx.staged {
		*tx.b.units[id] = *u
	}
}
