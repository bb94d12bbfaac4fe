package dataset

import "errors"

// Sentinel kinds for dataset errors.
var (
	ErrLoad              = errors.New("load dataset failed")
	ErrEmptySource       = errors.New("dataset source is empty")
	ErrMissingNameColumn = errors.New("dataset has no fighter_name column")
	ErrDuplicateColumn   = errors.New("duplicate column")
	ErrRaggedRow         = errors.New("row width does not match header")
)
