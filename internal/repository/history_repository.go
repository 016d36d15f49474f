package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticket-inventory/internal/history"
	"github.com/iliyamo/ticket-inventory/internal/model"
	"github.com/iliyamo/ticket-inventory/internal/rangecodec"
)

// Schema creates the three append-only history tables.  Control number
// sets are stored in compressed notation; seq preserves insertion order.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS allocation_events (
		seq         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		id          CHAR(36)        NOT NULL UNIQUE,
		schedule_id BIGINT UNSIGNED NOT NULL,
		type        VARCHAR(16)     NOT NULL,
		unit_ids    TEXT            NOT NULL,
		agent_id    BIGINT UNSIGNED NOT NULL,
		actor_id    BIGINT UNSIGNED NOT NULL,
		created_at  DATETIME(6)     NOT NULL,
		INDEX idx_allocation_schedule (schedule_id, seq)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS remittance_events (
		seq                 BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		id                  CHAR(36)        NOT NULL UNIQUE,
		schedule_id         BIGINT UNSIGNED NOT NULL,
		direction           VARCHAR(16)     NOT NULL,
		sold_ids            TEXT            NOT NULL,
		lost_ids            TEXT            NOT NULL,
		discounted_ids      TEXT            NOT NULL,
		discount_percentage DECIMAL(7,4)    NULL,
		commission_fee      DECIMAL(14,2)   NOT NULL,
		gross_sales         DECIMAL(14,2)   NOT NULL,
		discounts           DECIMAL(14,2)   NOT NULL,
		total_sales         DECIMAL(14,2)   NOT NULL,
		commission          DECIMAL(14,2)   NOT NULL,
		amount_due          DECIMAL(14,2)   NOT NULL,
		remarks             VARCHAR(512)    NOT NULL DEFAULT '',
		agent_id            BIGINT UNSIGNED NOT NULL,
		actor_id            BIGINT UNSIGNED NOT NULL,
		created_at          DATETIME(6)     NOT NULL,
		INDEX idx_remittance_schedule (schedule_id, seq)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS transfer_events (
		seq              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		id               CHAR(36)        NOT NULL UNIQUE,
		from_schedule_id BIGINT UNSIGNED NOT NULL,
		from_unit_id     INT             NOT NULL,
		to_schedule_id   BIGINT UNSIGNED NOT NULL,
		to_unit_id       INT             NOT NULL,
		agent_id         BIGINT UNSIGNED NOT NULL,
		price_delta      DECIMAL(14,2)   NOT NULL,
		remarks          VARCHAR(512)    NOT NULL DEFAULT '',
		actor_id         BIGINT UNSIGNED NOT NULL,
		created_at       DATETIME(6)     NOT NULL,
		INDEX idx_transfer_from (from_schedule_id, seq),
		INDEX idx_transfer_to (to_schedule_id, seq)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate applies Schema.  Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// HistoryRepo is the MySQL implementation of history.Store.  It only ever
// inserts and selects; there is no update or delete path.
type HistoryRepo struct {
	db *sql.DB
}

var _ history.Store = (*HistoryRepo)(nil)

// NewHistoryRepo returns a HistoryRepo bound to the given database.
func NewHistoryRepo(db *sql.DB) *HistoryRepo { return &HistoryRepo{db: db} }

// writeTimeout bounds every insert.  Appends run while the caller holds a
// schedule write lock, so a stalled database must not pin it indefinitely.
const writeTimeout = 5 * time.Second

const insertAllocation = `INSERT INTO allocation_events (id, schedule_id, type, unit_ids, agent_id, actor_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendAllocation(ctx context.Context, db execer, ev model.AllocationEvent) error {
	_, err := db.ExecContext(ctx, insertAllocation, ev.ID, ev.ScheduleID, string(ev.Type), rangecodec.Compress(ev.UnitIDs), ev.AgentID, ev.ActorID, ev.Timestamp.UTC())
	return insertErr(ev.ID, err)
}

func (r *HistoryRepo) AppendAllocation(ctx context.Context, ev model.AllocationEvent) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return appendAllocation(ctx, r.db, ev)
}

// AppendAllocations inserts evs in a single transaction.
func (r *HistoryRepo) AppendAllocations(ctx context.Context, evs []model.AllocationEvent) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, ev := range evs {
		if err := appendAllocation(ctx, tx, ev); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (r *HistoryRepo) AppendRemittance(ctx context.Context, ev model.RemittanceEvent) error {
	const q = `INSERT INTO remittance_events (id, schedule_id, direction, sold_ids, lost_ids, discounted_ids, discount_percentage,
		commission_fee, gross_sales, discounts, total_sales, commission, amount_due, remarks, agent_id, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var pct decimal.NullDecimal
	if ev.DiscountPercentage != nil {
		pct = decimal.NewNullDecimal(*ev.DiscountPercentage)
	}
	st := ev.Settlement
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, q,
		ev.ID, ev.ScheduleID, string(ev.Direction),
		rangecodec.Compress(ev.SoldIDs), rangecodec.Compress(ev.LostIDs), rangecodec.Compress(ev.DiscountedIDs), pct,
		ev.CommissionFee, st.GrossSales, st.Discounts, st.TotalSales, st.Commission, st.AmountDue,
		ev.Remarks, ev.AgentID, ev.ActorID, ev.Timestamp.UTC(),
	)
	return insertErr(ev.ID, err)
}

func (r *HistoryRepo) AppendTransfer(ctx context.Context, ev model.TransferEvent) error {
	const q = `INSERT INTO transfer_events (id, from_schedule_id, from_unit_id, to_schedule_id, to_unit_id, agent_id, price_delta, remarks, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, q, ev.ID, ev.FromScheduleID, ev.FromUnitID, ev.ToScheduleID, ev.ToUnitID, ev.AgentID, ev.PriceDelta, ev.Remarks, ev.ActorID, ev.Timestamp.UTC())
	return insertErr(ev.ID, err)
}

func (r *HistoryRepo) Allocations(ctx context.Context, scheduleID uint64) ([]model.AllocationEvent, error) {
	const q = `SELECT id, schedule_id, type, unit_ids, agent_id, actor_id, created_at FROM allocation_events WHERE schedule_id = ? ORDER BY seq`
	rows, err := r.db.QueryContext(ctx, q, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.AllocationEvent{}
	for rows.Next() {
		var (
			ev    model.AllocationEvent
			typ   string
			units string
		)
		if err := rows.Scan(&ev.ID, &ev.ScheduleID, &typ, &units, &ev.AgentID, &ev.ActorID, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.Type = model.AllocationType(typ)
		if ev.UnitIDs, err = rangecodec.Parse(units); err != nil {
			return nil, fmt.Errorf("allocation event %s: %w", ev.ID, err)
		}
		ev.Timestamp = ev.Timestamp.UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *HistoryRepo) Remittances(ctx context.Context, scheduleID uint64) ([]model.RemittanceEvent, error) {
	const q = `SELECT id, schedule_id, direction, sold_ids, lost_ids, discounted_ids, discount_percentage,
		commission_fee, gross_sales, discounts, total_sales, commission, amount_due, remarks, agent_id, actor_id, created_at
		FROM remittance_events WHERE schedule_id = ? ORDER BY seq`
	rows, err := r.db.QueryContext(ctx, q, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.RemittanceEvent{}
	for rows.Next() {
		var (
			ev                     model.RemittanceEvent
			dir                    string
			sold, lost, discounted string
			pct                    decimal.NullDecimal
		)
		st := &ev.Settlement
		if err := rows.Scan(&ev.ID, &ev.ScheduleID, &dir, &sold, &lost, &discounted, &pct,
			&ev.CommissionFee, &st.GrossSales, &st.Discounts, &st.TotalSales, &st.Commission, &st.AmountDue,
			&ev.Remarks, &ev.AgentID, &ev.ActorID, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.Direction = model.RemittanceDirection(dir)
		for _, f := range []struct {
			text string
			dst  *[]int
		}{{sold, &ev.SoldIDs}, {lost, &ev.LostIDs}, {discounted, &ev.DiscountedIDs}} {
			if *f.dst, err = rangecodec.Parse(f.text); err != nil {
				return nil, fmt.Errorf("remittance event %s: %w", ev.ID, err)
			}
		}
		if pct.Valid {
			p := pct.Decimal
			ev.DiscountPercentage = &p
		}
		ev.Timestamp = ev.Timestamp.UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *HistoryRepo) Transfers(ctx context.Context, scheduleID uint64) ([]model.TransferEvent, error) {
	const q = `SELECT id, from_schedule_id, from_unit_id, to_schedule_id, to_unit_id, agent_id, price_delta, remarks, actor_id, created_at
		FROM transfer_events WHERE from_schedule_id = ? OR to_schedule_id = ? ORDER BY seq`
	rows, err := r.db.QueryContext(ctx, q, scheduleID, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.TransferEvent{}
	for rows.Next() {
		var ev model.TransferEvent
		if err := rows.Scan(&ev.ID, &ev.FromScheduleID, &ev.FromUnitID, &ev.ToScheduleID, &ev.ToUnitID, &ev.AgentID,
			&ev.PriceDelta, &ev.Remarks, &ev.ActorID, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.Timestamp = ev.Timestamp.UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// insertErr maps unique-key violations to history.ErrDuplicateEvent.
func insertErr(id string, err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return fmt.Errorf("%w: %s", history.ErrDuplicateEvent, id)
	}
	// drivers other than MySQL only expose the message
	if msg := strings.ToLower(err.Error()); strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate") {
		return fmt.Errorf("%w: %s", history.ErrDuplicateEvent, id)
	}
	return err
}
