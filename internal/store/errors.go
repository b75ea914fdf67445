package store

import "errors"

// ErrNotFound indicates a missing record.
var ErrNotFound = errors.New("record not found")
