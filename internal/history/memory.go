package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/iliyamo/ticket-inventory/internal/model"
)

// MemoryStore is an in-process Store.  It is the default when no database
// is configured and the store used by tests.
type MemoryStore struct {
	mu          sync.RWMutex
	ids         map[string]bool
	allocations []model.AllocationEvent
	remittances []model.RemittanceEvent
	transfers   []model.TransferEvent
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: map[string]bool{}}
}

func (s *MemoryStore) claim(id string) error {
	if id == "" {
		return fmt.Errorf("history: event without id")
	}
	if s.ids[id] {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, id)
	}
	s.ids[id] = true
	return nil
}

func (s *MemoryStore) AppendAllocation(_ context.Context, ev model.AllocationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claim(ev.ID); err != nil {
		return err
	}
	ev.UnitIDs = append([]int(nil), ev.UnitIDs...)
	s.allocations = append(s.allocations, ev)
	return nil
}

func (s *MemoryStore) AppendAllocations(_ context.Context, evs []model.AllocationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool, len(evs))
	for _, ev := range evs {
		if ev.ID == "" {
			return fmt.Errorf("history: event without id")
		}
		if s.ids[ev.ID] || seen[ev.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateEvent, ev.ID)
		}
		seen[ev.ID] = true
	}
	for _, ev := range evs {
		s.ids[ev.ID] = true
		ev.UnitIDs = append([]int(nil), ev.UnitIDs...)
		s.allocations = append(s.allocations, ev)
	}
	return nil
}

func (s *MemoryStore) AppendRemittance(_ context.Context, ev model.RemittanceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claim(ev.ID); err != nil {
		return err
	}
	s.remittances = append(s.remittances, copyRemittance(ev))
	return nil
}

func (s *MemoryStore) AppendTransfer(_ context.Context, ev model.TransferEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claim(ev.ID); err != nil {
		return err
	}
	s.transfers = append(s.transfers, ev)
	return nil
}

func (s *MemoryStore) Allocations(_ context.Context, scheduleID uint64) ([]model.AllocationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.AllocationEvent{}
	for _, ev := range s.allocations {
		if ev.ScheduleID == scheduleID {
			ev.UnitIDs = append([]int(nil), ev.UnitIDs...)
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *MemoryStore) Remittances(_ context.Context, scheduleID uint64) ([]model.RemittanceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.RemittanceEvent{}
	for _, ev := range s.remittances {
		if ev.ScheduleID == scheduleID {
			out = append(out, copyRemittance(ev))
		}
	}
	return out, nil
}

func (s *MemoryStore) Transfers(_ context.Context, scheduleID uint64) ([]model.TransferEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.TransferEvent{}
	for _, ev := range s.transfers {
		if ev.FromScheduleID == scheduleID || ev.ToScheduleID == scheduleID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func copyRemittance(ev model.RemittanceEvent) model.RemittanceEvent {
	ev.SoldIDs = append([]int(nil), ev.SoldIDs...)
	ev.LostIDs = append([]int(nil), ev.LostIDs...)
	ev.DiscountedIDs = append([]int(nil), ev.DiscountedIDs...)
	if ev.DiscountPercentage != nil {
		d := *ev.DiscountPercentage
		ev.DiscountPercentage = &d
	}
	return ev
}
