package domain

import (
	"errors"
	"testing"
)

func TestStatusIsTerminal(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		status Status
		want   bool
	}{
		{name: "cancelled is terminal", status: StatusCancelled, want: true},
		{name: "complete is terminal", status: StatusComplete, want: true},
		{name: "completed is terminal", status: StatusCompleted, want: true},
		{name: "pending is not terminal", status: Status("Pending"), want: false},
		{name: "ongoing is not terminal", status: Status("Ongoing"), want: false},
		{name: "empty is not terminal", status: Status(""), want: false},
		{name: "case is significant", status: Status("completed"), want: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := tc.status.IsTerminal(); got != tc.want {
				t.Fatalf("IsTerminal() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDecodeBooking(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"status":"Completed","fare":120,"passengerName":"Ayşe"}`)

	b, err := DecodeBooking("B1", raw)
	if err != nil {
		t.Fatalf("DecodeBooking() error = %v", err)
	}

	if b.ID != "B1" {
		t.Fatalf("ID = %q, want %q", b.ID, "B1")
	}
	if b.Status != StatusCompleted {
		t.Fatalf("Status = %q, want %q", b.Status, StatusCompleted)
	}
	if b.Fare == nil || *b.Fare != 120 {
		t.Fatalf("Fare = %v, want 120", b.Fare)
	}
	if b.PassengerName == nil || *b.PassengerName != "Ayşe" {
		t.Fatalf("PassengerName = %v, want Ayşe", b.PassengerName)
	}
	if b.PaymentMethod != nil {
		t.Fatalf("PaymentMethod = %v, want nil", b.PaymentMethod)
	}
}

func TestDecodeBookingKeyWinsOverEmbeddedID(t *testing.T) {
	t.Parallel()

	b, err := DecodeBooking("B2", []byte(`{"id":"other","status":"Pending"}`))
	if err != nil {
		t.Fatalf("DecodeBooking() error = %v", err)
	}
	if b.ID != "B2" {
		t.Fatalf("ID = %q, want %q", b.ID, "B2")
	}
}

func TestDecodeBookingInvalid(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		id   string
		raw  []byte
	}{
		{name: "empty payload", id: "B1", raw: nil},
		{name: "malformed json", id: "B1", raw: []byte(`{not json`)},
		{name: "no id anywhere", id: "", raw: []byte(`{"status":"Completed"}`)},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := DecodeBooking(tc.id, tc.raw)
			if !errors.Is(err, ErrInvalidRecord) {
				t.Fatalf("DecodeBooking() error = %v, want ErrInvalidRecord", err)
			}
		})
	}
}
