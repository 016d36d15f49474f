// Package allocation hands blocks of not-yet-allocated units to
// distribution agents and takes them back.
package allocation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/iliyamo/ticket-inventory/internal/history"
	"github.com/iliyamo/ticket-inventory/internal/inventory"
	"github.com/iliyamo/ticket-inventory/internal/metrics"
	"github.com/iliyamo/ticket-inventory/internal/model"
	"github.com/iliyamo/ticket-inventory/internal/rangecodec"
	"github.com/iliyamo/ticket-inventory/internal/seatmap"
)

// Request asks for Count units for one agent in AllocateByCount.
type Request struct {
	AgentID uint64 `json:"agent_id"`
	Count   int    `json:"count"`
}

// Service implements allocation on top of the inventory ledger.
type Service struct {
	ledger *inventory.Ledger
	rec    *history.Recorder
	log    *slog.Logger
}

// NewService returns a Service.  A nil logger means slog.Default().
func NewService(ledger *inventory.Ledger, rec *history.Recorder, logger *slog.Logger) *Service {
	if ledger == nil || rec == nil {
		panic("nil dependency passed to allocation.NewService")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, rec: rec, log: logger.With(slog.String("component", "allocation"))}
}

// AllocateByIdentifiers gives every unit named in idsText to agentID.
// Every unit must be not allocated, not complimentary and, under
// controlled seating, on a free seat; otherwise nothing changes.
func (s *Service) AllocateByIdentifiers(ctx context.Context, scheduleID, agentID uint64, idsText string, actorID uint64) (model.AllocationEvent, error) {
	ids, err := parseRequired(idsText)
	if err != nil {
		metrics.Observe("allocate", 0, err)
		return model.AllocationEvent{}, err
	}
	return s.allocate(ctx, scheduleID, agentID, ids, actorID)
}

// AllocateBySeats resolves a seat selection of a controlled schedule into
// control numbers and allocates them exactly like AllocateByIdentifiers.
func (s *Service) AllocateBySeats(ctx context.Context, scheduleID, agentID uint64, seats []string, actorID uint64) (model.AllocationEvent, error) {
	if len(seats) == 0 {
		err := inventory.InvalidRequest("no seats selected")
		metrics.Observe("allocate", 0, err)
		return model.AllocationEvent{}, err
	}
	var ids []int
	err := s.ledger.View(scheduleID, func(tx *inventory.Tx) error {
		m := tx.Seats()
		if m == nil {
			return &inventory.StateViolationError{ScheduleID: scheduleID, Reason: "schedule does not use controlled seating"}
		}
		var err error
		ids, err = m.Resolve(seats)
		if errors.Is(err, seatmap.ErrUnknownSeat) {
			return &inventory.NotFoundError{Kind: "seat", ScheduleID: scheduleID, Ref: err.Error()}
		}
		if err != nil {
			return inventory.InvalidRequest("%v", err)
		}
		return nil
	})
	if err != nil {
		metrics.Observe("allocate", 0, err)
		return model.AllocationEvent{}, err
	}
	// Seat bindings never change after creation; availability is checked
	// again under the write lock.
	return s.allocate(ctx, scheduleID, agentID, ids, actorID)
}

func (s *Service) allocate(ctx context.Context, scheduleID, agentID uint64, ids []int, actorID uint64) (model.AllocationEvent, error) {
	if agentID == 0 {
		err := inventory.InvalidRequest("missing agent")
		metrics.Observe("allocate", 0, err)
		return model.AllocationEvent{}, err
	}
	ev := model.AllocationEvent{
		ID:         s.rec.NewID(),
		ScheduleID: scheduleID,
		Type:       model.AllocationAllocate,
		UnitIDs:    ids,
		AgentID:    agentID,
		ActorID:    actorID,
		Timestamp:  s.rec.Now(),
	}
	err := s.ledger.Update(scheduleID, func(tx *inventory.Tx) error {
		if err := tx.ApplyAll(ids, inventory.Transition{Kind: inventory.Allocate, AgentID: agentID}); err != nil {
			return err
		}
		return s.rec.Store().AppendAllocation(ctx, ev)
	})
	metrics.Observe("allocate", len(ids), err)
	if err != nil {
		return model.AllocationEvent{}, err
	}
	s.committed(ctx, ev)
	return ev, nil
}

// AllocateByCount distributes units to several agents in one batch.  The
// eligible pool is consumed in ascending control-number order and agents
// are served in request order, so identical calls on identical pools
// always produce identical assignments.  The whole request fails with a
// capacity error, before any unit is touched, if the pool is too small.
func (s *Service) AllocateByCount(ctx context.Context, scheduleID uint64, reqs []Request, actorID uint64) ([]model.AllocationEvent, error) {
	total := 0
	for _, r := range reqs {
		if r.AgentID == 0 {
			err := inventory.InvalidRequest("missing agent")
			metrics.Observe("allocate_by_count", 0, err)
			return nil, err
		}
		if r.Count <= 0 || r.Count > rangecodec.MaxIDs {
			err := inventory.InvalidRequest("count for agent %d must be between 1 and %d", r.AgentID, rangecodec.MaxIDs)
			metrics.Observe("allocate_by_count", 0, err)
			return nil, err
		}
		total += r.Count
	}
	if len(reqs) == 0 {
		err := inventory.InvalidRequest("no agents given")
		metrics.Observe("allocate_by_count", 0, err)
		return nil, err
	}

	now := s.rec.Now()
	var events []model.AllocationEvent
	err := s.ledger.Update(scheduleID, func(tx *inventory.Tx) error {
		pool := tx.Eligible()
		if total > len(pool) {
			return &inventory.CapacityError{ScheduleID: scheduleID, Requested: total, Available: len(pool)}
		}
		events = make([]model.AllocationEvent, 0, len(reqs))
		next := 0
		for _, r := range reqs {
			ids := pool[next : next+r.Count]
			next += r.Count
			if err := tx.ApplyAll(ids, inventory.Transition{Kind: inventory.Allocate, AgentID: r.AgentID}); err != nil {
				return err
			}
			ev := model.AllocationEvent{
				ID:         s.rec.NewID(),
				ScheduleID: scheduleID,
				Type:       model.AllocationAllocate,
				UnitIDs:    append([]int(nil), ids...),
				AgentID:    r.AgentID,
				ActorID:    actorID,
				Timestamp:  now,
			}
			events = append(events, ev)
		}
		return s.rec.Store().AppendAllocations(ctx, events)
	})
	metrics.Observe("allocate_by_count", total, err)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		s.committed(ctx, ev)
	}
	return events, nil
}

// Unallocate returns units currently allocated to agentID to the pool.
// Sold, lost or foreign units abort the whole batch.
func (s *Service) Unallocate(ctx context.Context, scheduleID, agentID uint64, idsText string, actorID uint64) (model.AllocationEvent, error) {
	ids, err := parseRequired(idsText)
	if err == nil && agentID == 0 {
		err = inventory.InvalidRequest("missing agent")
	}
	if err != nil {
		metrics.Observe("unallocate", 0, err)
		return model.AllocationEvent{}, err
	}
	ev := model.AllocationEvent{
		ID:         s.rec.NewID(),
		ScheduleID: scheduleID,
		Type:       model.AllocationUnallocate,
		UnitIDs:    ids,
		AgentID:    agentID,
		ActorID:    actorID,
		Timestamp:  s.rec.Now(),
	}
	err = s.ledger.Update(scheduleID, func(tx *inventory.Tx) error {
		if err := tx.ApplyAll(ids, inventory.Transition{Kind: inventory.Unallocate, AgentID: agentID}); err != nil {
			return err
		}
		return s.rec.Store().AppendAllocation(ctx, ev)
	})
	metrics.Observe("unallocate", len(ids), err)
	if err != nil {
		return model.AllocationEvent{}, err
	}
	s.committed(ctx, ev)
	return ev, nil
}

// Holdings summarises, in compressed notation, what one agent holds in a
// schedule.
type Holdings struct {
	ScheduleID uint64 `json:"schedule_id"`
	AgentID    uint64 `json:"agent_id"`
	Allocated  string `json:"allocated"`
	Sold       string `json:"sold"`
	Remitted   string `json:"remitted"`
	Lost       string `json:"lost"`
	Total      int    `json:"total"`
}

// Holdings returns the per-agent summary of a schedule.
func (s *Service) Holdings(scheduleID, agentID uint64) (Holdings, error) {
	h := Holdings{ScheduleID: scheduleID, AgentID: agentID}
	if agentID == 0 {
		return h, inventory.InvalidRequest("missing agent")
	}
	err := s.ledger.View(scheduleID, func(tx *inventory.Tx) error {
		var allocated, sold, remitted, lost []int
		for _, u := range tx.Units(func(u model.Unit) bool { return u.OwnerAgentID == agentID }) {
			switch u.State {
			case model.StateAllocated:
				allocated = append(allocated, u.ID)
			case model.StateSold:
				sold = append(sold, u.ID)
				if u.Remittance.IsRemitted {
					remitted = append(remitted, u.ID)
				}
			case model.StateLost:
				lost = append(lost, u.ID)
			case model.StateNotAllocated:
				continue
			}
			h.Total++
		}
		h.Allocated = rangecodec.Compress(allocated)
		h.Sold = rangecodec.Compress(sold)
		h.Remitted = rangecodec.Compress(remitted)
		h.Lost = rangecodec.Compress(lost)
		return nil
	})
	return h, err
}

func (s *Service) committed(ctx context.Context, ev model.AllocationEvent) {
	s.log.Info("allocation committed",
		slog.String("event_id", ev.ID),
		slog.String("type", string(ev.Type)),
		slog.Uint64("schedule_id", ev.ScheduleID),
		slog.Uint64("agent_id", ev.AgentID),
		slog.Uint64("actor_id", ev.ActorID),
		slog.String("units", rangecodec.Compress(ev.UnitIDs)),
	)
	s.rec.Publish(ctx, history.Envelope{Kind: history.KindAllocation, Allocation: &ev})
}

// parseRequired parses notation that must name at least one unit.
func parseRequired(text string) ([]int, error) {
	ids, err := rangecodec.Parse(text)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, &rangecodec.SyntaxError{Reason: "no control numbers given"}
	}
	return ids, nil
}
