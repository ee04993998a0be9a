package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidPosition    = errors.New("invalid position parameters")
	ErrInvalidThreshold   = errors.New("risk threshold must be positive")
	ErrInvariantViolation = errors.New("position invariant violated")
	ErrNoProductID        = errors.New("no product id for asset")
	ErrPriceUnavailable   = errors.New("price unavailable")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrLockHeld           = errors.New("lock already held")
	ErrOrderRejected      = errors.New("order rejected by exchange")
)
