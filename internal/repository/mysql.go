package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/restaurant-reservation/internal/booking"
	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// MySQL error numbers the store reacts to.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// policyRowID is the primary key of the singleton policy row.  A fixed
// key turns concurrent default creation into a duplicate-key no-op.
const policyRowID = 1

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS restaurant_policy (
		id                     TINYINT UNSIGNED NOT NULL PRIMARY KEY,
		max_daily_capacity     INT NOT NULL,
		max_time_slot_capacity INT NOT NULL,
		advance_booking_days   INT NOT NULL,
		updated_at             DATETIME(6) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id          CHAR(36) NOT NULL PRIMARY KEY,
		owner_id    VARCHAR(64) NULL,
		name        VARCHAR(255) NOT NULL,
		guest_count INT NOT NULL,
		starts_at   DATETIME(6) NOT NULL,
		status      ENUM('PENDING','CONFIRMED','CANCELLED') NOT NULL DEFAULT 'CONFIRMED',
		created_at  DATETIME(6) NOT NULL,
		updated_at  DATETIME(6) NOT NULL,
		UNIQUE KEY uq_reservations_owner_start (owner_id, starts_at),
		KEY idx_reservations_status_start (status, starts_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

const (
	mysqlReservationCols = `id, owner_id, name, guest_count, starts_at, status, created_at, updated_at`
	mysqlPolicyCols      = `max_daily_capacity, max_time_slot_capacity, advance_booking_days, updated_at`
)

// MySQLStore persists reservations in MySQL/InnoDB.  Admission
// transactions run at READ COMMITTED so that every read after the policy
// row lock sees the latest commits; the lock itself provides the
// serialization.
type MySQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewMySQLStore returns a store bound to db.
func NewMySQLStore(db *sqlx.DB) *MySQLStore {
	return &MySQLStore{db: db, now: time.Now}
}

var _ booking.Store = (*MySQLStore)(nil)

// DB exposes the handle for health checks.
func (s *MySQLStore) DB() *sqlx.DB { return s.db }

// EnsureSchema creates the tables when they do not exist.
func (s *MySQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range mysqlSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Ping checks the connection.
func (s *MySQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *MySQLStore) SumConfirmedGuests(ctx context.Context, w booking.Window) (int, error) {
	return sumConfirmedSQL(ctx, s.db, w)
}

func (s *MySQLStore) CurrentPolicy(ctx context.Context) (model.Policy, bool, error) {
	var p model.Policy
	err := s.db.GetContext(ctx, &p, `SELECT `+mysqlPolicyCols+` FROM restaurant_policy WHERE id = ?`, policyRowID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Policy{}, false, nil
	}
	if err != nil {
		return model.Policy{}, false, mysqlError("read policy", err)
	}
	return p, true, nil
}

// WithinTx runs fn in a READ COMMITTED transaction.  The transaction is
// bound to ctx, so cancellation rolls it back.
func (s *MySQLStore) WithinTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mysqlError("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&mysqlTx{tx: tx, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mysqlError("commit", err)
	}
	committed = true
	return nil
}

// ListByOwner returns the owner's reservations ordered by start instant.
func (s *MySQLStore) ListByOwner(ctx context.Context, ownerID string) ([]model.Reservation, error) {
	out := make([]model.Reservation, 0)
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+mysqlReservationCols+` FROM reservations WHERE owner_id = ? ORDER BY starts_at, id`, ownerID)
	if err != nil {
		return nil, mysqlError("list reservations", err)
	}
	return out, nil
}

// GetByID returns the reservation with the given id or ErrNotFound.
func (s *MySQLStore) GetByID(ctx context.Context, id string) (model.Reservation, error) {
	var r model.Reservation
	err := s.db.GetContext(ctx, &r, `SELECT `+mysqlReservationCols+` FROM reservations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, ErrNotFound
	}
	if err != nil {
		return model.Reservation{}, mysqlError("get reservation", err)
	}
	return r, nil
}

// Cancel locks the reservation row and flips it to CANCELLED.
func (s *MySQLStore) Cancel(ctx context.Context, id, ownerID string, now time.Time) (model.Reservation, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return model.Reservation{}, mysqlError("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	r, err := lockReservationSQL(ctx, tx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if err := booking.CheckModifiable(r, ownerID, now); err != nil {
		return model.Reservation{}, err
	}

	r.Status = model.StatusCancelled
	r.UpdatedAt = now.UTC().Truncate(time.Microsecond)
	if _, err := tx.ExecContext(ctx, `UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`,
		r.Status, r.UpdatedAt, r.ID); err != nil {
		return model.Reservation{}, mysqlError("cancel reservation", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Reservation{}, mysqlError("commit", err)
	}
	committed = true
	return r, nil
}

// UpdatePolicy upserts the singleton policy row.
func (s *MySQLStore) UpdatePolicy(ctx context.Context, p model.Policy) (model.Policy, error) {
	p.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)
	const q = `INSERT INTO restaurant_policy (id, ` + mysqlPolicyCols + `) VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			max_daily_capacity = VALUES(max_daily_capacity),
			max_time_slot_capacity = VALUES(max_time_slot_capacity),
			advance_booking_days = VALUES(advance_booking_days),
			updated_at = VALUES(updated_at)`
	if _, err := s.db.ExecContext(ctx, q, policyRowID,
		p.MaxDailyCapacity, p.MaxTimeSlotCapacity, p.AdvanceBookingDays, p.UpdatedAt); err != nil {
		return model.Policy{}, mysqlError("update policy", err)
	}
	return p, nil
}

type mysqlTx struct {
	tx  *sqlx.Tx
	now func() time.Time
}

// LockPolicy selects the policy row FOR UPDATE.  When the row is missing
// it inserts the defaults and locks again; a concurrent creator makes the
// insert wait and then degrade to a no-op.
func (t *mysqlTx) LockPolicy(ctx context.Context) (model.Policy, error) {
	const sel = `SELECT ` + mysqlPolicyCols + ` FROM restaurant_policy WHERE id = ? FOR UPDATE`
	var p model.Policy
	err := t.tx.GetContext(ctx, &p, sel, policyRowID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Policy{}, mysqlError("lock policy", err)
	}

	d := booking.DefaultPolicy()
	const ins = `INSERT INTO restaurant_policy (id, ` + mysqlPolicyCols + `) VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE id = id`
	if _, err := t.tx.ExecContext(ctx, ins, policyRowID,
		d.MaxDailyCapacity, d.MaxTimeSlotCapacity, d.AdvanceBookingDays, t.now().UTC().Truncate(time.Microsecond)); err != nil {
		return model.Policy{}, mysqlError("create default policy", err)
	}
	if err := t.tx.GetContext(ctx, &p, sel, policyRowID); err != nil {
		return model.Policy{}, mysqlError("lock policy", err)
	}
	return p, nil
}

func (t *mysqlTx) SumConfirmedGuests(ctx context.Context, w booking.Window) (int, error) {
	return sumConfirmedSQL(ctx, t.tx, w)
}

func (t *mysqlTx) InsertReservation(ctx context.Context, r model.Reservation) error {
	const q = `INSERT INTO reservations (` + mysqlReservationCols + `)
		VALUES (:id, :owner_id, :name, :guest_count, :starts_at, :status, :created_at, :updated_at)`
	if _, err := t.tx.NamedExecContext(ctx, q, r); err != nil {
		return mysqlError("insert reservation", err)
	}
	return nil
}

func (t *mysqlTx) LockReservation(ctx context.Context, id string) (model.Reservation, error) {
	return lockReservationSQL(ctx, t.tx, id)
}

func (t *mysqlTx) UpdateReservation(ctx context.Context, r model.Reservation) error {
	const q = `UPDATE reservations
		SET name = :name, guest_count = :guest_count, starts_at = :starts_at, updated_at = :updated_at
		WHERE id = :id`
	res, err := t.tx.NamedExecContext(ctx, q, r)
	if err != nil {
		return mysqlError("update reservation", err)
	}
	// RowsAffected counts changed rows only, so zero is not proof of absence.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists bool
		if err := t.tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM reservations WHERE id = ?)`, r.ID); err != nil {
			return mysqlError("update reservation", err)
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

func lockReservationSQL(ctx context.Context, tx *sqlx.Tx, id string) (model.Reservation, error) {
	var r model.Reservation
	err := tx.GetContext(ctx, &r, `SELECT `+mysqlReservationCols+` FROM reservations WHERE id = ? FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, ErrNotFound
	}
	if err != nil {
		return model.Reservation{}, mysqlError("lock reservation", err)
	}
	return r, nil
}

func sumConfirmedSQL(ctx context.Context, q sqlx.QueryerContext, w booking.Window) (int, error) {
	const stmt = `SELECT COALESCE(SUM(guest_count), 0) FROM reservations
		WHERE status = ? AND starts_at >= ? AND starts_at < ?`
	var total int
	if err := sqlx.GetContext(ctx, q, &total, stmt, model.StatusConfirmed, w.Start.UTC(), w.End.UTC()); err != nil {
		return 0, mysqlError("sum guests", err)
	}
	return total, nil
}

// mysqlError classifies a driver error.  Duplicate keys become
// booking.ErrUniqueViolation; everything else coming out of the driver,
// lock wait timeouts and deadlocks included, is a storage fault.
func mysqlError(op string, err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrDuplicateEntry:
			return fmt.Errorf("%s: %w: %w", op, booking.ErrUniqueViolation, err)
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock:
			return booking.StorageFault(op, fmt.Errorf("transaction aborted (%d): %w", myErr.Number, err))
		}
	}
	return booking.StorageFault(op, err)
}
