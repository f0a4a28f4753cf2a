package sink

import "github.com/businessweb01/dbmiddleware/internal/domain"

const (
	defaultPassengerCount = "1"
	defaultPaymentMethod  = "Cash"
)

// bookingPayload is the normalized wire format for the downstream sink. The
// sink contract is that no field is ever absent: optional text attributes are
// sent as explicit nulls, numeric attributes as 0, and the two defaults below
// are applied when upstream never set them.
type bookingPayload struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	DriverID       *string         `json:"driverId"`
	DriverName     *string         `json:"driverName"`
	PassengerName  *string         `json:"passengerName"`
	PassengerPhone *string         `json:"passengerPhone"`
	PassengerCount string          `json:"passengerCount"`
	PickupAddress  *string         `json:"pickupAddress"`
	DropoffAddress *string         `json:"dropoffAddress"`
	PickupLat      float64         `json:"pickupLat"`
	PickupLng      float64         `json:"pickupLng"`
	DropoffLat     float64         `json:"dropoffLat"`
	DropoffLng     float64         `json:"dropoffLng"`
	Fare           float64         `json:"fare"`
	PaymentMethod  string          `json:"paymentMethod"`
	RequestedAt    *string         `json:"requestedAt"`
	AcceptedAt     *string         `json:"acceptedAt"`
	CompletedAt    *string         `json:"completedAt"`
	Ratings        *ratingsPayload `json:"ratings"`
	Attempt        int             `json:"attempt"`
}

type ratingsPayload struct {
	Driver    *float64 `json:"driver"`
	Passenger *float64 `json:"passenger"`
}

func normalizePayload(b *domain.Booking, attempt int) bookingPayload {
	p := bookingPayload{
		ID:             b.ID,
		Status:         b.Status.String(),
		DriverID:       b.DriverID,
		DriverName:     b.DriverName,
		PassengerName:  b.PassengerName,
		PassengerPhone: b.PassengerPhone,
		PassengerCount: defaultPassengerCount,
		PickupAddress:  b.PickupAddress,
		DropoffAddress: b.DropoffAddress,
		PaymentMethod:  defaultPaymentMethod,
		RequestedAt:    b.RequestedAt,
		AcceptedAt:     b.AcceptedAt,
		CompletedAt:    b.CompletedAt,
		Attempt:        attempt,
	}

	if b.PassengerCount != nil && *b.PassengerCount != "" {
		p.PassengerCount = *b.PassengerCount
	}
	if b.PaymentMethod != nil && *b.PaymentMethod != "" {
		p.PaymentMethod = *b.PaymentMethod
	}
	if b.PickupLat != nil {
		p.PickupLat = *b.PickupLat
	}
	if b.PickupLng != nil {
		p.PickupLng = *b.PickupLng
	}
	if b.DropoffLat != nil {
		p.DropoffLat = *b.DropoffLat
	}
	if b.DropoffLng != nil {
		p.DropoffLng = *b.DropoffLng
	}
	if b.Fare != nil {
		p.Fare = *b.Fare
	}
	if b.DriverRating != nil || b.PassengerRating != nil {
		p.Ratings = &ratingsPayload{
			Driver:    b.DriverRating,
			Passenger: b.PassengerRating,
		}
	}

	return p
}
