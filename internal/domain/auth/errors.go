package auth

import "errors"

// ErrUnauthorized is the kind shared by every credential failure.
var ErrUnauthorized = errors.New("unauthorized")

// Sentinel kinds for auth errors. All of them match ErrUnauthorized via errors.Is.
var (
	ErrMissingCredential  = &kindError{msg: "missing API key"}
	ErrInvalidCredential  = &kindError{msg: "invalid API key"}
	ErrCredentialConflict = &kindError{msg: "conflicting API keys in header and query"}
	ErrEmptySecret        = errors.New("API key secret must not be empty")
)

type kindError struct{ msg string }

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == ErrUnauthorized }
