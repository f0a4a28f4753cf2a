package domain

import "errors"

var (
	// ErrInvalidRecord marks a booking payload that cannot be relayed,
	// typically one without a usable id.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrNotFound marks a booking id that is absent from the source store.
	ErrNotFound = errors.New("not found")
)
