package domain

import "time"

// DeliveryAttempt records a single sink delivery attempt for a booking.
type DeliveryAttempt struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	BookingID     string  `gorm:"type:varchar(255);not null"`
	AttemptNumber int     `gorm:"not null"`
	StatusCode    *int    `gorm:"type:int"`
	ResponseBody  *string `gorm:"type:text"`
	Error         *string `gorm:"type:text"`
	CreatedAt     time.Time
}
