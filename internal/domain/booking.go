package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the booking lifecycle state as written by the upstream dispatch
// system. The value set is not under our control, so Status stays free-form
// and only the terminal states are enumerated.
type Status string

const (
	StatusCancelled Status = "Cancelled"
	StatusComplete  Status = "Complete"
	StatusCompleted Status = "Completed"
)

func (s Status) String() string { return string(s) }

// IsTerminal reports whether a booking in this status is ready to relay.
// "Complete" and "Completed" are both produced upstream and are treated as
// the same terminal state; neither spelling is rewritten.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusComplete, StatusCompleted:
		return true
	}
	return false
}

// TerminalStatuses returns the statuses that make a booking eligible for relay.
func TerminalStatuses() []Status {
	return []Status{StatusCancelled, StatusComplete, StatusCompleted}
}

// Booking is a single record in the remote booking collection. Every payload
// attribute besides ID and Status is optional; upstream writes them
// independently as the ride progresses, so each is nullable on its own.
type Booking struct {
	ID     string `json:"id"`
	Status Status `json:"status"`

	DriverID        *string  `json:"driverId"`
	DriverName      *string  `json:"driverName"`
	PassengerName   *string  `json:"passengerName"`
	PassengerPhone  *string  `json:"passengerPhone"`
	PassengerCount  *string  `json:"passengerCount"`
	PickupAddress   *string  `json:"pickupAddress"`
	DropoffAddress  *string  `json:"dropoffAddress"`
	PickupLat       *float64 `json:"pickupLat"`
	PickupLng       *float64 `json:"pickupLng"`
	DropoffLat      *float64 `json:"dropoffLat"`
	DropoffLng      *float64 `json:"dropoffLng"`
	Fare            *float64 `json:"fare"`
	PaymentMethod   *string  `json:"paymentMethod"`
	DriverRating    *float64 `json:"driverRating"`
	PassengerRating *float64 `json:"passengerRating"`
	RequestedAt     *string  `json:"requestedAt"`
	AcceptedAt      *string  `json:"acceptedAt"`
	CompletedAt     *string  `json:"completedAt"`
}

// Validate checks the minimal relay contract: an identifiable record.
func (b *Booking) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil booking", ErrInvalidRecord)
	}
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}
	return nil
}

// DecodeBooking parses a raw source value into a Booking. The id under which
// the value was stored wins over any id embedded in the payload; source keys
// are authoritative and immutable.
func DecodeBooking(id string, raw []byte) (*Booking, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload for %q", ErrInvalidRecord, id)
	}

	var b Booking
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	if strings.TrimSpace(id) != "" {
		b.ID = id
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}

	return &b, nil
}
