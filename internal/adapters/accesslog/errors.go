package accesslog

import "errors"

// Sentinel kinds for access log errors.
var (
	ErrUnknownSink = errors.New("unknown access log sink")
	ErrSinkConfig  = errors.New("invalid access log sink config")
	ErrSinkClosed  = errors.New("access log sink closed")
)
