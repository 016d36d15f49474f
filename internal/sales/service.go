// Package sales records point-of-sale events and remittance batches for
// units held by distribution agents, and computes the cash settlement of
// each batch.
package sales

import (
	"context"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticket-inventory/internal/history"
	"github.com/iliyamo/ticket-inventory/internal/inventory"
	"github.com/iliyamo/ticket-inventory/internal/metrics"
	"github.com/iliyamo/ticket-inventory/internal/model"
	"github.com/iliyamo/ticket-inventory/internal/rangecodec"
)

var hundred = decimal.NewFromInt(100)

// RemitRequest is the agent's report for one remittance batch.  All id
// sets are in compressed notation; LostIDs and DiscountedIDs may be empty.
type RemitRequest struct {
	SoldIDs            string           `json:"sold_ids"`
	LostIDs            string           `json:"lost_ids"`
	DiscountedIDs      string           `json:"discounted_ids"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage,omitempty"`
	Remarks            string           `json:"remarks,omitempty"`
}

// Service implements sale and remittance on top of the inventory ledger.
type Service struct {
	ledger *inventory.Ledger
	rec    *history.Recorder
	log    *slog.Logger
}

// NewService returns a Service.  A nil logger means slog.Default().
func NewService(ledger *inventory.Ledger, rec *history.Recorder, logger *slog.Logger) *Service {
	if ledger == nil || rec == nil {
		panic("nil dependency passed to sales.NewService")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, rec: rec, log: logger.With(slog.String("component", "sales"))}
}

// MarkSold moves units allocated to agentID to sold and records the
// customer on each of them.  It returns the affected control numbers.
func (s *Service) MarkSold(_ context.Context, scheduleID, agentID uint64, idsText string, customer *model.Customer) ([]int, error) {
	var c *model.Customer
	if customer != nil {
		cp := *customer
		c = &cp
	}
	return s.batch(scheduleID, agentID, idsText, "mark_sold", inventory.Transition{Kind: inventory.Sell, AgentID: agentID, Customer: c})
}

// MarkUnsold reverses MarkSold.  Remitted units must be unremitted first.
func (s *Service) MarkUnsold(_ context.Context, scheduleID, agentID uint64, idsText string) ([]int, error) {
	return s.batch(scheduleID, agentID, idsText, "mark_unsold", inventory.Transition{Kind: inventory.Unsell, AgentID: agentID})
}

func (s *Service) batch(scheduleID, agentID uint64, idsText, op string, t inventory.Transition) ([]int, error) {
	ids, err := parseRequired(idsText)
	if err == nil && agentID == 0 {
		err = inventory.InvalidRequest("missing agent")
	}
	if err != nil {
		metrics.Observe(op, 0, err)
		return nil, err
	}
	err = s.ledger.Update(scheduleID, func(tx *inventory.Tx) error {
		return tx.ApplyAll(ids, t)
	})
	metrics.Observe(op, len(ids), err)
	if err != nil {
		return nil, err
	}
	s.log.Info("sale batch committed",
		slog.String("operation", op),
		slog.Uint64("schedule_id", scheduleID),
		slog.Uint64("agent_id", agentID),
		slog.String("units", rangecodec.Compress(ids)),
	)
	return ids, nil
}

// Remit reconciles one batch reported by agentID.
//
// Sold units are flagged remitted; units still merely allocated are sold
// implicitly as part of the batch.  Discounted units, a subset of the sold
// ones, additionally carry the discount percentage.  Lost units become
// lost.  The whole batch is validated and applied as one transaction.
func (s *Service) Remit(ctx context.Context, scheduleID, agentID uint64, req RemitRequest, actorID uint64) (model.RemittanceEvent, error) {
	ev, err := s.remit(ctx, scheduleID, agentID, req, actorID)
	metrics.Observe("remit", len(ev.SoldIDs)+len(ev.LostIDs), err)
	if err != nil {
		return model.RemittanceEvent{}, err
	}
	s.committed(ctx, ev)
	return ev, nil
}

func (s *Service) remit(ctx context.Context, scheduleID, agentID uint64, req RemitRequest, actorID uint64) (model.RemittanceEvent, error) {
	sold, err := rangecodec.Parse(req.SoldIDs)
	if err != nil {
		return model.RemittanceEvent{}, err
	}
	lost, err := rangecodec.Parse(req.LostIDs)
	if err != nil {
		return model.RemittanceEvent{}, err
	}
	discounted, err := rangecodec.Parse(req.DiscountedIDs)
	if err != nil {
		return model.RemittanceEvent{}, err
	}
	if agentID == 0 {
		return model.RemittanceEvent{}, inventory.InvalidRequest("missing agent")
	}
	if len(sold) == 0 {
		return model.RemittanceEvent{}, inventory.InvalidRequest("a remittance needs at least one sold unit")
	}
	if both := intersect(lost, sold); len(both) > 0 {
		return model.RemittanceEvent{}, &inventory.StateViolationError{ScheduleID: scheduleID, UnitIDs: both, Reason: "reported both lost and sold"}
	}
	if extra := subtract(discounted, sold); len(extra) > 0 {
		return model.RemittanceEvent{}, &inventory.StateViolationError{ScheduleID: scheduleID, UnitIDs: extra, Reason: "discounted but not reported sold"}
	}
	pct := req.DiscountPercentage
	switch {
	case len(discounted) > 0 && pct == nil:
		return model.RemittanceEvent{}, inventory.InvalidRequest("discounted units given without a discount percentage")
	case len(discounted) == 0 && pct != nil:
		return model.RemittanceEvent{}, inventory.InvalidRequest("discount percentage given without discounted units")
	case pct != nil && (!pct.IsPositive() || pct.GreaterThan(hundred)):
		return model.RemittanceEvent{}, inventory.InvalidRequest("discount percentage %s outside (0, 100]", pct)
	}

	ev := model.RemittanceEvent{
		ID:                 s.rec.NewID(),
		ScheduleID:         scheduleID,
		Direction:          model.DirectionRemit,
		SoldIDs:            sold,
		LostIDs:            lost,
		DiscountedIDs:      discounted,
		DiscountPercentage: pct,
		Remarks:            req.Remarks,
		AgentID:            agentID,
		ActorID:            actorID,
		Timestamp:          s.rec.Now(),
	}
	err = s.ledger.Update(scheduleID, func(tx *inventory.Tx) error {
		if err := checkOwner(tx, agentID, union(sold, lost)); err != nil {
			return err
		}
		isDiscounted := make(map[int]bool, len(discounted))
		for _, id := range discounted {
			isDiscounted[id] = true
		}
		remitted := make([]model.Unit, 0, len(sold))
		for _, id := range sold {
			cur, _ := tx.Unit(id)
			if cur.State == model.StateAllocated {
				if _, err := tx.Apply(id, inventory.Transition{Kind: inventory.Sell, AgentID: agentID}); err != nil {
					return err
				}
			}
			t := inventory.Transition{Kind: inventory.Remit, AgentID: agentID}
			if isDiscounted[id] {
				t.Discount = pct
			}
			u, err := tx.Apply(id, t)
			if err != nil {
				return err
			}
			remitted = append(remitted, u)
		}
		if err := tx.ApplyAll(lost, inventory.Transition{Kind: inventory.MarkLost, AgentID: agentID}); err != nil {
			return err
		}
		ev.CommissionFee = tx.Schedule().CommissionFee
		ev.Settlement = Settle(remitted, ev.CommissionFee)
		return s.rec.Store().AppendRemittance(ctx, ev)
	})
	if err != nil {
		return model.RemittanceEvent{}, err
	}
	return ev, nil
}

// Unremit clears the remitted flag and any discount of the named units,
// which stay sold.  The event carries the settlement being reversed.
func (s *Service) Unremit(ctx context.Context, scheduleID, agentID uint64, idsText string, actorID uint64) (model.RemittanceEvent, error) {
	ev, err := s.unremit(ctx, scheduleID, agentID, idsText, actorID)
	metrics.Observe("unremit", len(ev.SoldIDs), err)
	if err != nil {
		return model.RemittanceEvent{}, err
	}
	s.committed(ctx, ev)
	return ev, nil
}

func (s *Service) unremit(ctx context.Context, scheduleID, agentID uint64, idsText string, actorID uint64) (model.RemittanceEvent, error) {
	ids, err := parseRequired(idsText)
	if err != nil {
		return model.RemittanceEvent{}, err
	}
	if agentID == 0 {
		return model.RemittanceEvent{}, inventory.InvalidRequest("missing agent")
	}
	ev := model.RemittanceEvent{
		ID:         s.rec.NewID(),
		ScheduleID: scheduleID,
		Direction:  model.DirectionUnremit,
		SoldIDs:    ids,
		AgentID:    agentID,
		ActorID:    actorID,
		Timestamp:  s.rec.Now(),
	}
	err = s.ledger.Update(scheduleID, func(tx *inventory.Tx) error {
		reverted := make([]model.Unit, 0, len(ids))
		for _, id := range ids {
			before, err := tx.Unit(id)
			if err != nil {
				return err
			}
			if _, err := tx.Apply(id, inventory.Transition{Kind: inventory.Unremit, AgentID: agentID}); err != nil {
				return err
			}
			reverted = append(reverted, before)
			if p := before.Remittance.DiscountPercentage; p != nil {
				ev.DiscountedIDs = append(ev.DiscountedIDs, id)
				if ev.DiscountPercentage == nil {
					ev.DiscountPercentage = p
				}
			}
		}
		ev.CommissionFee = tx.Schedule().CommissionFee
		ev.Settlement = Settle(reverted, ev.CommissionFee)
		return s.rec.Store().AppendRemittance(ctx, ev)
	})
	if err != nil {
		return model.RemittanceEvent{}, err
	}
	return ev, nil
}

// Settle computes the settlement of remitted units.  Each unit's own
// discount percentage, if any, applies to its price.
func Settle(units []model.Unit, commissionFee decimal.Decimal) model.Settlement {
	var st model.Settlement
	for _, u := range units {
		st.GrossSales = st.GrossSales.Add(u.Price)
		if p := u.Remittance.DiscountPercentage; p != nil {
			st.Discounts = st.Discounts.Add(u.Price.Mul(*p).Div(hundred))
		}
	}
	st.TotalSales = st.GrossSales.Sub(st.Discounts)
	st.Commission = commissionFee.Mul(decimal.NewFromInt(int64(len(units))))
	st.AmountDue = st.TotalSales.Sub(st.Commission)
	return st
}

func checkOwner(tx *inventory.Tx, agentID uint64, ids []int) error {
	for _, id := range ids {
		u, err := tx.Unit(id)
		if err != nil {
			return err
		}
		if u.OwnerAgentID != agentID {
			return &inventory.StateViolationError{
				ScheduleID: tx.Schedule().ID,
				UnitIDs:    []int{id},
				Actual:     u.State.String(),
				Expected:   "owned by reporting agent",
				Reason:     "unit does not belong to the agent",
			}
		}
	}
	return nil
}

func (s *Service) committed(ctx context.Context, ev model.RemittanceEvent) {
	s.log.Info("remittance committed",
		slog.String("event_id", ev.ID),
		slog.String("direction", string(ev.Direction)),
		slog.Uint64("schedule_id", ev.ScheduleID),
		slog.Uint64("agent_id", ev.AgentID),
		slog.Uint64("actor_id", ev.ActorID),
		slog.String("sold", rangecodec.Compress(ev.SoldIDs)),
		slog.String("lost", rangecodec.Compress(ev.LostIDs)),
		slog.String("amount_due", ev.Settlement.AmountDue.String()),
	)
	s.rec.Publish(ctx, history.Envelope{Kind: history.KindRemittance, Remittance: &ev})
}

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

// set helpers; all inputs are ascending and duplicate free

func intersect(a, b []int) []int {
	var out []int
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

func subtract(a, b []int) []int {
	in := make(map[int]bool, len(b))
	for _, id := range b {
		in[id] = true
	}
	var out []int
	for _, id := range a {
		if !in[id] {
			out = append(out, id)
		}
	}
	return out
}

func union(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	sort.Ints(out)
	return out
}
