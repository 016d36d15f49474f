package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-inventory/internal/history"
	"github.com/iliyamo/ticket-inventory/internal/inventory"
	"github.com/iliyamo/ticket-inventory/internal/model"
)

const (
	agent = uint64(42)
	other = uint64(43)
	admin = uint64(1)
)

type fixture struct {
	ledger *inventory.Ledger
	store  *history.MemoryStore
	svc    *Service
}

// newFixture creates schedule 1 at 500, schedule 2 with 650 and 400
// blocks, and a controlled schedule 3.  Unit 1 of schedule 1 is sold to
// agent with a customer attached.
func newFixture(t *testing.T) *fixture {
	l := inventory.NewLedger()
	specs := []inventory.ScheduleSpec{
		{ID: 1, SeatingMode: model.SeatingFree, CommissionFee: decimal.NewFromInt(10), Blocks: []inventory.UnitBlock{
			{From: 1, To: 5, Section: model.SectionOrchestra, Price: decimal.NewFromInt(500)},
		}},
		{ID: 2, SeatingMode: model.SeatingFree, CommissionFee: decimal.NewFromInt(10), Blocks: []inventory.UnitBlock{
			{From: 1, To: 5, Section: model.SectionOrchestra, Price: decimal.NewFromInt(650)},
			{From: 6, To: 10, Section: model.SectionBalcony, Price: decimal.NewFromInt(400)},
			{From: 11, To: 11, Section: model.SectionBalcony, Complimentary: true},
		}},
		{ID: 3, SeatingMode: model.SeatingControlled, CommissionFee: decimal.NewFromInt(10), Blocks: []inventory.UnitBlock{
			{From: 1, To: 3, Section: model.SectionOrchestra, Price: decimal.NewFromInt(500)},
		}, Seats: map[string]int{"A1": 1, "A2": 2}},
	}
	for _, spec := range specs {
		_, err := l.CreateSchedule(spec)
		require.NoError(t, err)
	}
	for _, id := range []int{1, 2} {
		_, err := l.ApplyTransition(1, id, inventory.Transition{Kind: inventory.Allocate, AgentID: agent})
		require.NoError(t, err)
	}
	_, err := l.ApplyTransition(1, 1, inventory.Transition{Kind: inventory.Sell, AgentID: agent, Customer: &model.Customer{Name: "Lee Park", Phone: "555-0101"}})
	require.NoError(t, err)

	store := history.NewMemoryStore()
	return &fixture{ledger: l, store: store, svc: NewService(l, history.NewRecorder(store, nil, nil), nil)}
}

func (f *fixture) unit(t *testing.T, scheduleID uint64, id int) model.Unit {
	u, err := f.ledger.GetUnit(scheduleID, id)
	require.NoError(t, err)
	return u
}

func TestTransfer_PriceDelta(t *testing.T) {
	cases := []struct {
		name  string
		to    int
		delta int64
	}{
		{"to dearer unit", 3, 150},
		{"to cheaper unit", 7, -100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ev, err := f.svc.Transfer(context.Background(), Request{FromScheduleID: 1, FromUnitID: 1, ToScheduleID: 2, ToUnitID: tc.to, Remarks: "date change"}, admin)
			require.NoError(t, err)
			assert.True(t, ev.PriceDelta.Equal(decimal.NewFromInt(tc.delta)), "delta %s", ev.PriceDelta)
			assert.Equal(t, agent, ev.AgentID)
			assert.Equal(t, "date change", ev.Remarks)
		})
	}
}

func TestTransfer_MovesOwnershipAndCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, err := f.svc.Transfer(ctx, Request{FromScheduleID: 1, FromUnitID: 1, ToScheduleID: 2, ToUnitID: 4, AgentID: agent}, admin)
	require.NoError(t, err)

	src := f.unit(t, 1, 1)
	assert.Equal(t, model.StateNotAllocated, src.State)
	assert.Zero(t, src.OwnerAgentID)
	assert.Nil(t, src.Customer)

	dst := f.unit(t, 2, 4)
	assert.Equal(t, model.StateSold, dst.State)
	assert.Equal(t, agent, dst.OwnerAgentID)
	require.NotNil(t, dst.Customer)
	assert.Equal(t, "Lee Park", dst.Customer.Name)
	assert.False(t, dst.Remittance.IsRemitted)

	for _, id := range []uint64{1, 2} {
		logged, err := f.store.Transfers(ctx, id)
		require.NoError(t, err)
		require.Len(t, logged, 1)
		assert.Equal(t, ev.ID, logged[0].ID)
	}
}

func TestTransfer_Rejections(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"same schedule", Request{FromScheduleID: 1, FromUnitID: 1, ToScheduleID: 1, ToUnitID: 3}, inventory.ErrInvalidRequest},
		{"source only allocated", Request{FromScheduleID: 1, FromUnitID: 2, ToScheduleID: 2, ToUnitID: 3}, inventory.ErrStateViolation},
		{"source free", Request{FromScheduleID: 1, FromUnitID: 3, ToScheduleID: 2, ToUnitID: 3}, inventory.ErrStateViolation},
		{"foreign agent", Request{FromScheduleID: 1, FromUnitID: 1, ToScheduleID: 2, ToUnitID: 3, AgentID: other}, inventory.ErrStateViolation},
		{"complimentary target", Request{FromScheduleID: 1, FromUnitID: 1, ToScheduleID: 2, ToUnitID: 11}, inventory.ErrStateViolation},
		{"target without seat", Request{FromScheduleID: 1, FromUnitID: 1, ToScheduleID: 3, ToUnitID: 3}, inventory.ErrStateViolation},
		{"unknown target unit", Request{FromScheduleID: 1, FromUnitID: 1, ToScheduleID: 2, ToUnitID: 99}, inventory.ErrNotFound},
		{"unknown schedule", Request{FromScheduleID: 1, FromUnitID: 1, ToScheduleID: 9, ToUnitID: 1}, inventory.ErrNotFound},
		{"bad unit", Request{FromScheduleID: 1, FromUnitID: 0, ToScheduleID: 2, ToUnitID: 1}, inventory.ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Transfer(context.Background(), tc.req, admin)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)

			assert.Equal(t, model.StateSold, f.unit(t, 1, 1).State)
			for _, id := range []int{3, 11} {
				assert.Equal(t, model.StateNotAllocated, f.unit(t, 2, id).State)
			}
			logged, _ := f.store.Transfers(context.Background(), 1)
			assert.Empty(t, logged)
		})
	}
}

func TestTransfer_TargetTakenOrRemitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.ApplyTransition(2, 3, inventory.Transition{Kind: inventory.Allocate, AgentID: other})
	require.NoError(t, err)

	_, err = f.svc.Transfer(ctx, Request{FromScheduleID: 1, FromUnitID: 1, ToScheduleID: 2, ToUnitID: 3}, admin)
	assert.True(t, errors.Is(err, inventory.ErrStateViolation))
	assert.Equal(t, agent, f.unit(t, 1, 1).OwnerAgentID)

	_, err = f.ledger.ApplyTransition(1, 1, inventory.Transition{Kind: inventory.Remit, AgentID: agent})
	require.NoError(t, err)
	_, err = f.svc.Transfer(ctx, Request{FromScheduleID: 1, FromUnitID: 1, ToScheduleID: 2, ToUnitID: 4}, admin)
	assert.True(t, errors.Is(err, inventory.ErrStateViolation))
}

func TestTransfer_ControlledTarget(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Transfer(context.Background(), Request{FromScheduleID: 1, FromUnitID: 1, ToScheduleID: 3, ToUnitID: 2}, admin)
	require.NoError(t, err)
	dst := f.unit(t, 3, 2)
	assert.Equal(t, "A2", dst.SeatRef)
	assert.Equal(t, model.StateSold, dst.State)
}

// Opposite-direction transfers between the same pair of schedules must not
// deadlock.
func TestTransfer_ConcurrentOppositeDirections(t *testing.T) {
	l := inventory.NewLedger()
	for _, id := range []uint64{1, 2} {
		_, err := l.CreateSchedule(inventory.ScheduleSpec{ID: id, SeatingMode: model.SeatingFree, Blocks: []inventory.UnitBlock{
			{From: 1, To: 100, Section: model.SectionOrchestra, Price: decimal.NewFromInt(100)},
		}})
		require.NoError(t, err)
		for u := 1; u <= 50; u++ {
			_, err := l.ApplyTransition(id, u, inventory.Transition{Kind: inventory.Allocate, AgentID: agent})
			require.NoError(t, err)
			_, err = l.ApplyTransition(id, u, inventory.Transition{Kind: inventory.Sell, AgentID: agent})
			require.NoError(t, err)
		}
	}
	svc := NewService(l, history.NewRecorder(history.NewMemoryStore(), nil, nil), nil)

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 1; i <= 50; i++ {
		wg.Add(2)
		go func(u int) {
			defer wg.Done()
			_, err := svc.Transfer(context.Background(), Request{FromScheduleID: 1, FromUnitID: u, ToScheduleID: 2, ToUnitID: 50 + u}, admin)
			errs <- err
		}(i)
		go func(u int) {
			defer wg.Done()
			_, err := svc.Transfer(context.Background(), Request{FromScheduleID: 2, FromUnitID: u, ToScheduleID: 1, ToUnitID: 50 + u}, admin)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, id := range []uint64{1, 2} {
		units, err := l.Snapshot(id)
		require.NoError(t, err)
		sold := 0
		for _, u := range units {
			if u.State == model.StateSold {
				sold++
			}
		}
		assert.Equal(t, 50, sold)
	}
}
