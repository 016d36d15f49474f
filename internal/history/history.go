// Package history keeps the append-only audit trail of the inventory
// engine: allocation, remittance and transfer events.  Entries are never
// rewritten or removed.
package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/ticket-inventory/internal/model"
)

// ErrDuplicateEvent is returned when an event id has already been written.
var ErrDuplicateEvent = errors.New("history: duplicate event id")

// Store persists history events.  Append methods are called while the
// affected schedules are locked, so an append failure aborts the batch
// that produced the event.
type Store interface {
	AppendAllocation(ctx context.Context, ev model.AllocationEvent) error
	// AppendAllocations writes all events or none of them.
	AppendAllocations(ctx context.Context, evs []model.AllocationEvent) error
	AppendRemittance(ctx context.Context, ev model.RemittanceEvent) error
	AppendTransfer(ctx context.Context, ev model.TransferEvent) error

	// Allocations returns the allocation events of a schedule, oldest first.
	Allocations(ctx context.Context, scheduleID uint64) ([]model.AllocationEvent, error)
	// Remittances returns the remittance events of a schedule, oldest first.
	Remittances(ctx context.Context, scheduleID uint64) ([]model.RemittanceEvent, error)
	// Transfers returns the transfers touching a schedule on either side,
	// oldest first.
	Transfers(ctx context.Context, scheduleID uint64) ([]model.TransferEvent, error)
}

// Kind names the type of event carried by an Envelope.
type Kind string

const (
	KindAllocation Kind = "allocation"
	KindRemittance Kind = "remittance"
	KindTransfer   Kind = "transfer"
)

// Envelope carries exactly one committed event to a Publisher.
type Envelope struct {
	Kind       Kind
	Allocation *model.AllocationEvent
	Remittance *model.RemittanceEvent
	Transfer   *model.TransferEvent
}

// Publisher receives events after their batch has been committed.
// Publishing is best effort; failures never undo a committed batch.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Recorder bundles what every service needs to produce history: the store,
// an optional publisher, a clock and an id source.
type Recorder struct {
	store Store
	pub   Publisher
	log   *slog.Logger
	now   func() time.Time
}

// NewRecorder returns a Recorder.  pub may be nil; a nil logger means
// slog.Default().
func NewRecorder(store Store, pub Publisher, logger *slog.Logger) *Recorder {
	if store == nil {
		panic("nil history store passed to NewRecorder")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, pub: pub, log: logger, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock replaces the clock used to timestamp events.
func (r *Recorder) SetClock(now func() time.Time) { r.now = now }

// Store returns the underlying store.
func (r *Recorder) Store() Store { return r.store }

// Now returns the current event timestamp.
func (r *Recorder) Now() time.Time { return r.now() }

// NewID returns a fresh event id.
func (r *Recorder) NewID() string { return uuid.NewString() }

// Publish forwards a committed event to the publisher, logging failures.
func (r *Recorder) Publish(ctx context.Context, env Envelope) {
	if r.pub == nil {
		return
	}
	if err := r.pub.Publish(ctx, env); err != nil {
		r.log.Warn("history: publish failed", slog.String("kind", string(env.Kind)), slog.Any("error", err))
	}
}
