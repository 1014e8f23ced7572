package types

import "errors"

// Error classes. Every error returned by a state-changing operation wraps exactly one of these,
// so callers can branch on the class with errors.Is.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrAuthorization   = errors.New("authorization error")
	ErrLimitExceeded   = errors.New("limit exceeded")
	ErrExternalAdapter = errors.New("external adapter failure")
	ErrState           = errors.New("state error")
)
