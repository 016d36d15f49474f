package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-inventory/internal/model"
)

func TestMemoryStore_AppendOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ev := model.AllocationEvent{ID: "a1", ScheduleID: 1, Type: model.AllocationAllocate, UnitIDs: []int{1, 2}, AgentID: 7}
	require.NoError(t, s.AppendAllocation(ctx, ev))

	err := s.AppendAllocation(ctx, ev)
	assert.True(t, errors.Is(err, ErrDuplicateEvent))

	assert.Error(t, s.AppendTransfer(ctx, model.TransferEvent{}))

	got, err := s.Allocations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// returned slices are copies
	got[0].UnitIDs[0] = 99
	again, _ := s.Allocations(ctx, 1)
	assert.Equal(t, []int{1, 2}, again[0].UnitIDs)

	other, _ := s.Allocations(ctx, 2)
	assert.Empty(t, other)
}

func TestMemoryStore_TransfersMatchEitherSide(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.AppendTransfer(ctx, model.TransferEvent{ID: "t1", FromScheduleID: 1, ToScheduleID: 2}))
	require.NoError(t, s.AppendTransfer(ctx, model.TransferEvent{ID: "t2", FromScheduleID: 3, ToScheduleID: 4}))

	from, _ := s.Transfers(ctx, 1)
	to, _ := s.Transfers(ctx, 2)
	none, _ := s.Transfers(ctx, 5)
	assert.Len(t, from, 1)
	assert.Len(t, to, 1)
	assert.Empty(t, none)
}

type capturePublisher struct {
	got []Envelope
	err error
}

func (p *capturePublisher) Publish(_ context.Context, env Envelope) error {
	p.got = append(p.got, env)
	return p.err
}

func TestRecorder(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	r := NewRecorder(NewMemoryStore(), pub, nil)

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.SetClock(func() time.Time { return fixed })
	assert.Equal(t, fixed, r.Now())
	assert.NotEqual(t, r.NewID(), r.NewID())

	// a failing publisher is logged, not propagated
	r.Publish(context.Background(), Envelope{Kind: KindTransfer, Transfer: &model.TransferEvent{ID: "x"}})
	assert.Len(t, pub.got, 1)

	assert.Panics(t, func() { NewRecorder(nil, nil, nil) })
}

func TestMemoryStore_AppendAllocationsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.AppendAllocation(ctx, model.AllocationEvent{ID: "taken", ScheduleID: 1, UnitIDs: []int{9}}))

	batch := []model.AllocationEvent{
		{ID: "b1", ScheduleID: 1, UnitIDs: []int{1, 2, 3}, AgentID: 7},
		{ID: "taken", ScheduleID: 1, UnitIDs: []int{4, 5}, AgentID: 8},
	}
	err := s.AppendAllocations(ctx, batch)
	assert.True(t, errors.Is(err, ErrDuplicateEvent))
	got, _ := s.Allocations(ctx, 1)
	assert.Len(t, got, 1)

	batch[1].ID = "b1"
	assert.True(t, errors.Is(s.AppendAllocations(ctx, batch), ErrDuplicateEvent))

	batch[1].ID = "b2"
	require.NoError(t, s.AppendAllocations(ctx, batch))
	got, _ = s.Allocations(ctx, 1)
	require.Len(t, got, 3)
	assert.Equal(t, "b2", got[2].ID)
}
