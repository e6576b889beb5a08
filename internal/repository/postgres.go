package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iliyamo/restaurant-reservation/internal/booking"
	"github.com/iliyamo/restaurant-reservation/internal/model"
)

const (
	dialectPostgres = "postgres"

	tableReservations = "reservations"
	tablePolicy       = "restaurant_policy"

	colID                  = "id"
	colOwnerID             = "owner_id"
	colName                = "name"
	colGuestCount          = "guest_count"
	colStartsAt            = "starts_at"
	colStatus              = "status"
	colCreatedAt           = "created_at"
	colUpdatedAt           = "updated_at"
	colMaxDailyCapacity    = "max_daily_capacity"
	colMaxTimeSlotCapacity = "max_time_slot_capacity"
	colAdvanceBookingDays  = "advance_booking_days"
)

// SQLSTATE codes the store reacts to.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS restaurant_policy (
		id                     SMALLINT PRIMARY KEY CHECK (id = 1),
		max_daily_capacity     INTEGER NOT NULL,
		max_time_slot_capacity INTEGER NOT NULL,
		advance_booking_days   INTEGER NOT NULL,
		updated_at             TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id          TEXT PRIMARY KEY,
		owner_id    TEXT NULL,
		name        VARCHAR(255) NOT NULL,
		guest_count INTEGER NOT NULL,
		starts_at   TIMESTAMPTZ NOT NULL,
		status      TEXT NOT NULL DEFAULT 'CONFIRMED' CHECK (status IN ('PENDING', 'CONFIRMED', 'CANCELLED')),
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL,
		CONSTRAINT uq_reservations_owner_start UNIQUE (owner_id, starts_at)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_status_start ON reservations (status, starts_at)`,
}

var (
	reservationCols = []any{colID, colOwnerID, colName, colGuestCount, colStartsAt, colStatus, colCreatedAt, colUpdatedAt}
	policyCols      = []any{colMaxDailyCapacity, colMaxTimeSlotCapacity, colAdvanceBookingDays, colUpdatedAt}
)

// pgQuerier is the subset of pgxpool.Pool and pgx.Tx the store queries through.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists reservations in PostgreSQL through pgx.  Queries
// are built with goqu in prepared mode.
type PostgresStore struct {
	pool    *pgxpool.Pool
	builder goqu.DialectWrapper
	now     func() time.Time
}

// NewPostgresStore returns a store bound to pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, builder: goqu.Dialect(dialectPostgres), now: time.Now}
}

var _ booking.Store = (*PostgresStore)(nil)

// EnsureSchema creates the tables when they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) SumConfirmedGuests(ctx context.Context, w booking.Window) (int, error) {
	return s.sumConfirmed(ctx, s.pool, w)
}

func (s *PostgresStore) CurrentPolicy(ctx context.Context) (model.Policy, bool, error) {
	p, err := s.selectPolicy(ctx, s.pool, false)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Policy{}, false, nil
	}
	if err != nil {
		return model.Policy{}, false, pgError("read policy", err)
	}
	return p, true, nil
}

// WithinTx runs fn in a READ COMMITTED transaction bound to ctx.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return pgError("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err := fn(&postgresTx{store: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return pgError("commit", err)
	}
	committed = true
	return nil
}

// ListByOwner returns the owner's reservations ordered by start instant.
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]model.Reservation, error) {
	query, args, err := s.builder.From(tableReservations).
		Select(reservationCols...).
		Where(goqu.C(colOwnerID).Eq(ownerID)).
		Order(goqu.I(colStartsAt).Asc(), goqu.I(colID).Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pgError("list reservations", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Reservation])
	if err != nil {
		return nil, pgError("list reservations", err)
	}
	for i := range out {
		out[i] = utcReservation(out[i])
	}
	return out, nil
}

// GetByID returns the reservation with the given id or ErrNotFound.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (model.Reservation, error) {
	return s.getReservation(ctx, s.pool, id, false)
}

// Cancel locks the reservation row and flips it to CANCELLED.
func (s *PostgresStore) Cancel(ctx context.Context, id, ownerID string, now time.Time) (model.Reservation, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return model.Reservation{}, pgError("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	r, err := s.getReservation(ctx, tx, id, true)
	if err != nil {
		return model.Reservation{}, err
	}
	if err := booking.CheckModifiable(r, ownerID, now); err != nil {
		return model.Reservation{}, err
	}

	r.Status = model.StatusCancelled
	r.UpdatedAt = now.UTC().Truncate(time.Microsecond)
	query, args, err := s.builder.Update(tableReservations).
		Set(goqu.Record{colStatus: r.Status, colUpdatedAt: r.UpdatedAt}).
		Where(goqu.C(colID).Eq(r.ID)).
		Prepared(true).ToSQL()
	if err != nil {
		return model.Reservation{}, fmt.Errorf("build cancel query: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return model.Reservation{}, pgError("cancel reservation", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Reservation{}, pgError("commit", err)
	}
	committed = true
	return r, nil
}

// UpdatePolicy upserts the singleton policy row.
func (s *PostgresStore) UpdatePolicy(ctx context.Context, p model.Policy) (model.Policy, error) {
	p.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)
	query, args, err := s.builder.Insert(tablePolicy).
		Rows(policyRecord(p)).
		OnConflict(goqu.DoUpdate(colID, goqu.Record{
			colMaxDailyCapacity:    goqu.L("EXCLUDED." + colMaxDailyCapacity),
			colMaxTimeSlotCapacity: goqu.L("EXCLUDED." + colMaxTimeSlotCapacity),
			colAdvanceBookingDays:  goqu.L("EXCLUDED." + colAdvanceBookingDays),
			colUpdatedAt:           goqu.L("EXCLUDED." + colUpdatedAt),
		})).
		Prepared(true).ToSQL()
	if err != nil {
		return model.Policy{}, fmt.Errorf("build policy upsert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return model.Policy{}, pgError("update policy", err)
	}
	return p, nil
}

func (s *PostgresStore) sumConfirmed(ctx context.Context, q pgQuerier, w booking.Window) (int, error) {
	query, args, err := s.builder.From(tableReservations).
		Select(goqu.COALESCE(goqu.SUM(colGuestCount), 0)).
		Where(
			goqu.C(colStatus).Eq(model.StatusConfirmed),
			goqu.C(colStartsAt).Gte(w.Start.UTC()),
			goqu.C(colStartsAt).Lt(w.End.UTC()),
		).
		Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build sum query: %w", err)
	}
	var total int64
	if err := q.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, pgError("sum guests", err)
	}
	return int(total), nil
}

func (s *PostgresStore) policyQuery(forUpdate bool) (string, []any, error) {
	ds := s.builder.From(tablePolicy).
		Select(policyCols...).
		Where(goqu.C(colID).Eq(policyRowID))
	if forUpdate {
		ds = ds.ForUpdate(exp.Wait)
	}
	return ds.Prepared(true).ToSQL()
}

func (s *PostgresStore) selectPolicy(ctx context.Context, q pgQuerier, forUpdate bool) (model.Policy, error) {
	query, args, err := s.policyQuery(forUpdate)
	if err != nil {
		return model.Policy{}, fmt.Errorf("build policy query: %w", err)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return model.Policy{}, err
	}
	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[model.Policy])
	if err != nil {
		return model.Policy{}, err
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *PostgresStore) getReservation(ctx context.Context, q pgQuerier, id string, forUpdate bool) (model.Reservation, error) {
	ds := s.builder.From(tableReservations).
		Select(reservationCols...).
		Where(goqu.C(colID).Eq(id))
	if forUpdate {
		ds = ds.ForUpdate(exp.Wait)
	}
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return model.Reservation{}, fmt.Errorf("build reservation query: %w", err)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return model.Reservation{}, pgError("get reservation", err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[model.Reservation])
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Reservation{}, ErrNotFound
	}
	if err != nil {
		return model.Reservation{}, pgError("get reservation", err)
	}
	return utcReservation(r), nil
}

type postgresTx struct {
	store *PostgresStore
	tx    pgx.Tx
}

// LockPolicy selects the policy row FOR UPDATE, inserting the defaults
// with ON CONFLICT DO NOTHING first when it is missing.  The insert of a
// concurrent creator blocks on the primary key until that creator
// finishes, after which the locking select sees its row.
func (t *postgresTx) LockPolicy(ctx context.Context) (model.Policy, error) {
	p, err := t.store.selectPolicy(ctx, t.tx, true)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Policy{}, pgError("lock policy", err)
	}

	d := booking.DefaultPolicy()
	d.UpdatedAt = t.store.now().UTC().Truncate(time.Microsecond)
	query, args, err := t.store.builder.Insert(tablePolicy).
		Rows(policyRecord(d)).
		OnConflict(goqu.DoNothing()).
		Prepared(true).ToSQL()
	if err != nil {
		return model.Policy{}, fmt.Errorf("build default policy insert: %w", err)
	}
	if _, err := t.tx.Exec(ctx, query, args...); err != nil {
		return model.Policy{}, pgError("create default policy", err)
	}

	p, err = t.store.selectPolicy(ctx, t.tx, true)
	if err != nil {
		return model.Policy{}, pgError("lock policy", err)
	}
	return p, nil
}

func (t *postgresTx) SumConfirmedGuests(ctx context.Context, w booking.Window) (int, error) {
	return t.store.sumConfirmed(ctx, t.tx, w)
}

func (t *postgresTx) InsertReservation(ctx context.Context, r model.Reservation) error {
	query, args, err := t.store.builder.Insert(tableReservations).
		Rows(goqu.Record{
			colID:         r.ID,
			colOwnerID:    r.OwnerID,
			colName:       r.Name,
			colGuestCount: r.GuestCount,
			colStartsAt:   r.StartsAt.UTC(),
			colStatus:     r.Status,
			colCreatedAt:  r.CreatedAt.UTC(),
			colUpdatedAt:  r.UpdatedAt.UTC(),
		}).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := t.tx.Exec(ctx, query, args...); err != nil {
		return pgError("insert reservation", err)
	}
	return nil
}

func (t *postgresTx) LockReservation(ctx context.Context, id string) (model.Reservation, error) {
	return t.store.getReservation(ctx, t.tx, id, true)
}

func (t *postgresTx) UpdateReservation(ctx context.Context, r model.Reservation) error {
	query, args, err := t.store.builder.Update(tableReservations).
		Set(goqu.Record{
			colName:       r.Name,
			colGuestCount: r.GuestCount,
			colStartsAt:   r.StartsAt.UTC(),
			colUpdatedAt:  r.UpdatedAt.UTC(),
		}).
		Where(goqu.C(colID).Eq(r.ID)).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return pgError("update reservation", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func policyRecord(p model.Policy) goqu.Record {
	return goqu.Record{
		colID:                  policyRowID,
		colMaxDailyCapacity:    p.MaxDailyCapacity,
		colMaxTimeSlotCapacity: p.MaxTimeSlotCapacity,
		colAdvanceBookingDays:  p.AdvanceBookingDays,
		colUpdatedAt:           p.UpdatedAt,
	}
}

func utcReservation(r model.Reservation) model.Reservation {
	r.StartsAt = r.StartsAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r
}

// pgError classifies a pgx error by SQLSTATE.  Unique violations become
// booking.ErrUniqueViolation; serialization failures, deadlocks, lock
// timeouts and every other server or connection error are storage
// faults.
func pgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, booking.ErrUniqueViolation, err)
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable, pgQueryCanceled:
			return booking.StorageFault(op, fmt.Errorf("transaction aborted (%s): %w", pgErr.Code, err))
		}
	}
	return booking.StorageFault(op, err)
}
