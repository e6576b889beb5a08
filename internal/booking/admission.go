package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/restaurant-reservation/internal/logging"
	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// Controller is the single decision point for admitting reservations.
// It holds no mutable state; every decision is serialized through the
// store's policy row lock, so any number of Controllers in any number of
// processes may share one store.
type Controller struct {
	store       Store
	ledger      Ledger
	notifier    Notifier
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
	attempts    int
	backoff     time.Duration
	lockTimeout time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithLocation sets the restaurant zone used for day and slot windows.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) {
		if loc != nil {
			c.ledger = NewLedger(loc)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNotifier registers a post-commit observer.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithRetry sets how many times a submission is attempted when the store
// reports ErrStorageUnavailable, and the initial backoff between
// attempts.  The backoff doubles after each failure.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Controller) {
		if attempts < 1 {
			attempts = 1
		}
		if backoff < 0 {
			backoff = 0
		}
		c.attempts = attempts
		c.backoff = backoff
	}
}

// WithLockTimeout bounds each admission transaction, lock wait included.
// Zero disables the bound.
func WithLockTimeout(d time.Duration) Option {
	return func(c *Controller) { c.lockTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(c *Controller) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// NewController builds a controller over store.
func NewController(store Store, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		ledger:   NewLedger(time.UTC),
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
		attempts: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Location returns the restaurant zone.
func (c *Controller) Location() *time.Location { return c.ledger.Location() }

// Submit validates cand and, if every rule holds, persists it as a
// CONFIRMED reservation.  Rejections are returned as *AdmissionError;
// infrastructure faults match ErrStorageUnavailable and are retried
// according to WithRetry before being returned.
func (c *Controller) Submit(ctx context.Context, cand Candidate) (model.Reservation, error) {
	cand = cand.normalized()
	log := logging.With(ctx, c.logger, "component", "admission", "starts_at", cand.StartsAt, "guests", cand.GuestCount)

	if err := cand.Validate(c.now()); err != nil {
		log.Info("reservation rejected", "kind", err.Kind, "field", err.Field)
		return model.Reservation{}, err
	}

	res, err := c.retry(ctx, log, func() (model.Reservation, error) { return c.admit(ctx, cand) })
	if err != nil {
		return model.Reservation{}, err
	}
	log.Info("reservation admitted", "reservation_id", res.ID)
	c.notify(ctx, log, res)
	return res, nil
}

// retry runs attempt until it succeeds, fails for a reason that a retry
// cannot change, or the attempts configured by WithRetry are used up.
func (c *Controller) retry(ctx context.Context, log *slog.Logger, attempt func() (model.Reservation, error)) (model.Reservation, error) {
	delay := c.backoff
	var lastErr error
	for n := 1; n <= c.attempts; n++ {
		if err := ctx.Err(); err != nil {
			return model.Reservation{}, err
		}

		res, err := attempt()
		if err == nil {
			return res, nil
		}

		if IsClientError(err) {
			args := []any{"kind", ErrorKind(err)}
			if aErr, ok := AsAdmissionError(err); ok && aErr.IsCapacity() {
				args = append(args, "available", aErr.Available)
			}
			log.Info("reservation rejected", args...)
			return model.Reservation{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Reservation{}, ctxErr
		}
		if !IsRetryable(err) {
			log.Error("admission failed", "kind", ErrorKind(err), "error", err)
			return model.Reservation{}, err
		}

		lastErr = err
		log.Warn("admission attempt failed", "attempt", n, "error", err)
		if n < c.attempts {
			if err := sleep(ctx, delay); err != nil {
				return model.Reservation{}, err
			}
			delay *= 2
		}
	}
	log.Error("admission failed", "kind", KindStorageUnavailable, "attempts", c.attempts, "error", lastErr)
	return model.Reservation{}, lastErr
}

// admit runs one attempt: unlocked pre-check, then the locked decision.
func (c *Controller) admit(ctx context.Context, cand Candidate) (model.Reservation, error) {
	policy, err := c.currentPolicy(ctx)
	if err != nil {
		return model.Reservation{}, err
	}
	now := c.now()
	if aErr := validateAdvanceWindow(cand.StartsAt, policy.AdvanceBookingDays, BookingHorizon(policy, now, c.Location())); aErr != nil {
		return model.Reservation{}, aErr
	}
	if err := c.checkCapacity(ctx, c.store, policy, cand, false); err != nil {
		return model.Reservation{}, err
	}

	txCtx, cancel := c.txContext(ctx)
	defer cancel()

	var created model.Reservation
	err = c.store.WithinTx(txCtx, func(tx Tx) error {
		locked, err := tx.LockPolicy(txCtx)
		if err != nil {
			return StorageFault("lock policy", err)
		}

		// Time has passed while waiting for the lock.
		now := c.now()
		if aErr := validateStartsAt(cand.StartsAt, now); aErr != nil {
			return aErr
		}
		if aErr := validateAdvanceWindow(cand.StartsAt, locked.AdvanceBookingDays, BookingHorizon(locked, now, c.Location())); aErr != nil {
			return aErr
		}
		if err := c.checkCapacity(txCtx, tx, locked, cand, true); err != nil {
			return err
		}

		stamp := now.UTC().Truncate(time.Microsecond)
		r := model.Reservation{
			ID:         c.newID(),
			OwnerID:    cand.OwnerID,
			Name:       cand.Name,
			GuestCount: cand.GuestCount,
			StartsAt:   cand.StartsAt,
			Status:     model.StatusConfirmed,
			CreatedAt:  stamp,
			UpdatedAt:  stamp,
		}
		if err := tx.InsertReservation(txCtx, r); err != nil {
			if errors.Is(err, ErrUniqueViolation) {
				return duplicateBooking()
			}
			return StorageFault("insert reservation", err)
		}
		created = r
		return nil
	})
	if err != nil {
		return model.Reservation{}, c.txError(ctx, err)
	}
	return created, nil
}

// txContext applies the lock timeout configured by WithLockTimeout.
func (c *Controller) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.lockTimeout > 0 {
		return context.WithTimeout(ctx, c.lockTimeout)
	}
	return ctx, func() {}
}

// txError classifies the error a decision transaction ended with.
func (c *Controller) txError(ctx context.Context, err error) error {
	if IsClientError(err) {
		return err
	}
	if errors.Is(err, ErrUniqueViolation) {
		return duplicateBooking()
	}
	// The lock timeout expired while the caller is still waiting.
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return StorageFault("admission transaction", fmt.Errorf("lock timeout after %s: %w", c.lockTimeout, ErrStorageUnavailable))
	}
	return StorageFault("admission transaction", err)
}

// checkCapacity evaluates the daily then the slot limit against src.
// locked marks the authoritative check made under the policy lock.
func (c *Controller) checkCapacity(ctx context.Context, src LedgerSource, p model.Policy, cand Candidate, locked bool) error {
	loc := c.Location()

	daily, err := c.ledger.DailyLoad(ctx, src, cand.StartsAt)
	if err != nil {
		return StorageFault("daily load", err)
	}
	if daily+cand.GuestCount > p.MaxDailyCapacity {
		available := remaining(p.MaxDailyCapacity, daily)
		msg := fmt.Sprintf("Not enough capacity available for %s. Only %d spots remaining.",
			cand.StartsAt.In(loc).Format("January 02, 2006"), available)
		if locked {
			msg = fmt.Sprintf("Booking failed due to concurrent reservation. Only %d spots remaining for this date.", available)
		}
		aErr := reject(KindDailyCapacityExceeded, "guest_count", msg)
		aErr.Available = available
		return aErr
	}

	slot, err := c.ledger.TimeSlotLoad(ctx, src, cand.StartsAt)
	if err != nil {
		return StorageFault("time slot load", err)
	}
	if slot+cand.GuestCount > p.MaxTimeSlotCapacity {
		available := remaining(p.MaxTimeSlotCapacity, slot)
		msg := fmt.Sprintf("Not enough capacity available for the %s time slot. Only %d spots remaining.",
			SlotWindow(cand.StartsAt, loc).Start.Format("03:04 PM"), available)
		if locked {
			msg = fmt.Sprintf("Booking failed due to concurrent reservation. Only %d spots remaining for this time slot.", available)
		}
		aErr := reject(KindSlotCapacityExceeded, "guest_count", msg)
		aErr.Available = available
		return aErr
	}
	return nil
}

func duplicateBooking() *AdmissionError {
	return reject(KindDuplicateBooking, "starts_at", "You already have a reservation at this date and time.")
}

func (c *Controller) currentPolicy(ctx context.Context) (model.Policy, error) {
	p, found, err := c.store.CurrentPolicy(ctx)
	if err != nil {
		return model.Policy{}, StorageFault("read policy", err)
	}
	if !found {
		return DefaultPolicy(), nil
	}
	return p, nil
}

// Availability reports the ledger around at under the current policy.
// The answer is advisory: nothing is locked.
func (c *Controller) Availability(ctx context.Context, at time.Time) (Availability, model.Policy, error) {
	p, err := c.currentPolicy(ctx)
	if err != nil {
		return Availability{}, model.Policy{}, err
	}
	a, err := c.ledger.Availability(ctx, c.store, at, p.MaxDailyCapacity, p.MaxTimeSlotCapacity)
	if err != nil {
		return Availability{}, model.Policy{}, StorageFault("availability", err)
	}
	return a, p, nil
}

func (c *Controller) notify(ctx context.Context, log *slog.Logger, r model.Reservation) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.ReservationAdmitted(context.WithoutCancel(ctx), r); err != nil {
		log.Warn("reservation notification failed", "reservation_id", r.ID, "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
