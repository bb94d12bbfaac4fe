package service

import "errors"

// Sentinel kinds for service lifecycle errors.
var (
	ErrDataset    = errors.New("dataset unavailable")
	ErrStart      = errors.New("service start failed")
	ErrNotStarted = errors.New("service not started")
)
