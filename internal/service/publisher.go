// Package service holds outbound integrations driven by the admission
// controller.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/restaurant-reservation/internal/booking"
	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/queue"
)

// Publisher announces admitted reservations on RabbitMQ.  Each publish
// opens its own connection and the whole exchange, TCP connect and AMQP
// handshake included, is bounded by timeout.
type Publisher struct {
	url     string
	loc     *time.Location
	timeout time.Duration
	logger  *slog.Logger
	dial    func(ctx context.Context, url string) (*amqp.Connection, error)
}

var _ booking.Notifier = (*Publisher)(nil)

// NewPublisher returns a publisher for the broker at url.  loc is the
// restaurant zone used to render start times.
func NewPublisher(url string, loc *time.Location, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		url:     url,
		loc:     loc,
		timeout: 3 * time.Second,
		logger:  logger.With("component", "publisher"),
		dial:    dialBroker,
	}
}

// dialBroker is amqp.Dial with the connect and handshake deadline taken
// from ctx.
func dialBroker(ctx context.Context, url string) (*amqp.Connection, error) {
	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

// ReservationAdmitted publishes r to the reservation.confirmed queue as a
// persistent message.
func (p *Publisher) ReservationAdmitted(ctx context.Context, r model.Reservation) error {
	body, err := queue.NewReservationConfirmed(r, p.loc).Encode()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(ctx, p.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()
	// Channel and QueueDeclare take no context; closing the connection
	// unblocks them.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue.ReservationConfirmedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	msg := publishing(body, time.Now())
	if err := ch.PublishWithContext(ctx, "", queue.ReservationConfirmedQueue, false, false, msg); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	p.logger.Debug("reservation published", "reservation_id", r.ID)
	return nil
}

func publishing(body []byte, now time.Time) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now.UTC(),
		Body:         body,
	}
}
