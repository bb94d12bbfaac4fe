package ratelimit

import "errors"

// Sentinel kinds for rate limit errors.
var (
	ErrInvalidQuota    = errors.New("invalid rate limit quota")
	ErrUnknownStrategy = errors.New("unknown rate limit strategy")
)
