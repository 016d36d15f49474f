// Package transfer exchanges a sold unit of one schedule for a free unit
// of another schedule.
package transfer

import (
	"context"
	"log/slog"

	"github.com/iliyamo/ticket-inventory/internal/history"
	"github.com/iliyamo/ticket-inventory/internal/inventory"
	"github.com/iliyamo/ticket-inventory/internal/metrics"
	"github.com/iliyamo/ticket-inventory/internal/model"
)

// Request names both sides of an exchange.  AgentID, when non-zero, must
// own the source unit; zero accepts any owner.
type Request struct {
	FromScheduleID uint64 `json:"from_schedule_id"`
	FromUnitID     int    `json:"from_unit_id"`
	ToScheduleID   uint64 `json:"to_schedule_id"`
	ToUnitID       int    `json:"to_unit_id"`
	AgentID        uint64 `json:"agent_id,omitempty"`
	Remarks        string `json:"remarks,omitempty"`
}

// Service moves sold units between schedules.
type Service struct {
	ledger *inventory.Ledger
	rec    *history.Recorder
	log    *slog.Logger
}

// NewService panics on a nil ledger or recorder.  A nil logger falls back
// to slog.Default.
func NewService(ledger *inventory.Ledger, rec *history.Recorder, logger *slog.Logger) *Service {
	if ledger == nil || rec == nil {
		panic("nil dependency passed to transfer.NewService")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, rec: rec, log: logger.With(slog.String("component", "transfer"))}
}

// Transfer releases the source unit back to its schedule's pool and sells
// the target unit to the same agent and customer, atomically across both
// schedules.  The returned event carries price(to) − price(from).
func (s *Service) Transfer(ctx context.Context, req Request, actorID uint64) (model.TransferEvent, error) {
	ev, err := s.transfer(ctx, req, actorID)
	metrics.Observe("transfer", 2, err)
	if err != nil {
		return model.TransferEvent{}, err
	}
	s.log.Info("transfer committed",
		slog.String("event_id", ev.ID),
		slog.Uint64("from_schedule_id", ev.FromScheduleID),
		slog.Int("from_unit_id", ev.FromUnitID),
		slog.Uint64("to_schedule_id", ev.ToScheduleID),
		slog.Int("to_unit_id", ev.ToUnitID),
		slog.Uint64("agent_id", ev.AgentID),
		slog.Uint64("actor_id", ev.ActorID),
		slog.String("price_delta", ev.PriceDelta.String()),
	)
	s.rec.Publish(ctx, history.Envelope{Kind: history.KindTransfer, Transfer: &ev})
	return ev, nil
}

func (s *Service) transfer(ctx context.Context, req Request, actorID uint64) (model.TransferEvent, error) {
	if req.FromScheduleID == req.ToScheduleID {
		return model.TransferEvent{}, inventory.InvalidRequest("source and target must be different schedules")
	}
	if req.FromUnitID <= 0 || req.ToUnitID <= 0 {
		return model.TransferEvent{}, inventory.InvalidRequest("control numbers must be positive")
	}
	ev := model.TransferEvent{
		ID:             s.rec.NewID(),
		FromScheduleID: req.FromScheduleID,
		FromUnitID:     req.FromUnitID,
		ToScheduleID:   req.ToScheduleID,
		ToUnitID:       req.ToUnitID,
		Remarks:        req.Remarks,
		ActorID:        actorID,
		Timestamp:      s.rec.Now(),
	}
	err := s.ledger.UpdateMany([]uint64{req.FromScheduleID, req.ToScheduleID}, func(txs map[uint64]*inventory.Tx) error {
		from, to := txs[req.FromScheduleID], txs[req.ToScheduleID]
		src, err := from.Unit(req.FromUnitID)
		if err != nil {
			return err
		}
		if req.AgentID != 0 && src.OwnerAgentID != req.AgentID {
			return &inventory.StateViolationError{
				ScheduleID: req.FromScheduleID,
				UnitIDs:    []int{req.FromUnitID},
				Reason:     "unit does not belong to the agent",
			}
		}
		if _, err := from.Apply(req.FromUnitID, inventory.Transition{Kind: inventory.TransferOut, AgentID: src.OwnerAgentID}); err != nil {
			return err
		}
		dst, err := to.Apply(req.ToUnitID, inventory.Transition{Kind: inventory.TransferIn, AgentID: src.OwnerAgentID, Customer: src.Customer})
		if err != nil {
			return err
		}
		ev.AgentID = src.OwnerAgentID
		ev.PriceDelta = dst.Price.Sub(src.Price)
		return s.rec.Store().AppendTransfer(ctx, ev)
	})
	if err != nil {
		return model.TransferEvent{}, err
	}
	return ev, nil
}
