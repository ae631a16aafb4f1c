package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")

	// ErrDeliveryFailed is returned when both the primary retry budget and the
	// backup identity have been exhausted for a request.
	ErrDeliveryFailed = errors.New("delivery failed")
)
