// Package queue defines the message payload exchanged over the broker and
// the background consumer that turns it into an audit log.
package queue

import (
	"fmt"
	"time"

	"github.com/iliyamo/ticket-inventory/internal/history"
	"github.com/iliyamo/ticket-inventory/internal/model"
	"github.com/iliyamo/ticket-inventory/internal/rangecodec"
)

// InventoryQueue is the durable queue committed history events go to.
const InventoryQueue = "inventory.events"

// InventoryEvent is published once per committed history entry.  Exactly
// one of Allocation, Remittance and Transfer is set, matching Kind.  It
// carries the full entry so consumers never need to query the engine.
type InventoryEvent struct {
	Kind        history.Kind           `json:"kind"`
	Allocation  *model.AllocationEvent `json:"allocation,omitempty"`
	Remittance  *model.RemittanceEvent `json:"remittance,omitempty"`
	Transfer    *model.TransferEvent   `json:"transfer,omitempty"`
	PublishedAt string                 `json:"published_at"`
}

// FromEnvelope converts a committed envelope into its wire form.
func FromEnvelope(env history.Envelope, now time.Time) InventoryEvent {
	return InventoryEvent{
		Kind:        env.Kind,
		Allocation:  env.Allocation,
		Remittance:  env.Remittance,
		Transfer:    env.Transfer,
		PublishedAt: now.UTC().Format(time.RFC3339),
	}
}

// LogLine renders the event as one human-friendly line, newline included.
func (e InventoryEvent) LogLine() (string, error) {
	switch {
	case e.Kind == history.KindAllocation && e.Allocation != nil:
		a := e.Allocation
		return fmt.Sprintf("[%s] Allocation %s | event_id=%s | schedule_id=%d | agent_id=%d | actor_id=%d | units=%s\n",
			a.Timestamp.UTC().Format(time.RFC3339), a.Type, a.ID, a.ScheduleID, a.AgentID, a.ActorID, rangecodec.Compress(a.UnitIDs)), nil
	case e.Kind == history.KindRemittance && e.Remittance != nil:
		r := e.Remittance
		return fmt.Sprintf("[%s] Remittance %s | event_id=%s | schedule_id=%d | agent_id=%d | actor_id=%d | sold=%s | lost=%s | discounted=%s | amount_due=%s | remarks=%q\n",
			r.Timestamp.UTC().Format(time.RFC3339), r.Direction, r.ID, r.ScheduleID, r.AgentID, r.ActorID,
			rangecodec.Compress(r.SoldIDs), rangecodec.Compress(r.LostIDs), rangecodec.Compress(r.DiscountedIDs),
			r.Settlement.AmountDue.StringFixed(2), r.Remarks), nil
	case e.Kind == history.KindTransfer && e.Transfer != nil:
		t := e.Transfer
		return fmt.Sprintf("[%s] Transfer | event_id=%s | from=%d/%d | to=%d/%d | agent_id=%d | actor_id=%d | price_delta=%s | remarks=%q\n",
			t.Timestamp.UTC().Format(time.RFC3339), t.ID, t.FromScheduleID, t.FromUnitID, t.ToScheduleID, t.ToUnitID,
			t.AgentID, t.ActorID, t.PriceDelta.StringFixed(2), t.Remarks), nil
	}
	return "", fmt.Errorf("queue: malformed %q event", e.Kind)
}
