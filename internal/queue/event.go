// Package queue defines the broker payloads and the background consumer
// that records confirmed reservations.
package queue

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// ReservationConfirmedQueue is the durable queue admitted reservations are
// published to.
const ReservationConfirmedQueue = "reservation.confirmed"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ReservationConfirmedEvent is published after a reservation commits.  It
// carries enough for downstream consumers to log or notify without
// querying the database.  Times are RFC3339; StartsAt is rendered in the
// restaurant zone.
type ReservationConfirmedEvent struct {
	ReservationID string  `json:"reservation_id"`
	OwnerID       *string `json:"owner_id,omitempty"`
	Name          string  `json:"name"`
	GuestCount    int     `json:"guest_count"`
	StartsAt      string  `json:"starts_at"`
	ConfirmedAt   string  `json:"confirmed_at"`
}

// NewReservationConfirmed builds the event for r.
func NewReservationConfirmed(r model.Reservation, loc *time.Location) ReservationConfirmedEvent {
	if loc == nil {
		loc = time.UTC
	}
	return ReservationConfirmedEvent{
		ReservationID: r.ID,
		OwnerID:       r.OwnerID,
		Name:          r.Name,
		GuestCount:    r.GuestCount,
		StartsAt:      r.StartsAt.In(loc).Format(time.RFC3339),
		ConfirmedAt:   r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Encode returns the wire form of ev.
func (ev ReservationConfirmedEvent) Encode() ([]byte, error) {
	return json.Marshal(ev)
}

// DecodeReservationConfirmed parses a message body.
func DecodeReservationConfirmed(body []byte) (ReservationConfirmedEvent, error) {
	var ev ReservationConfirmedEvent
	err := json.Unmarshal(body, &ev)
	return ev, err
}
