package store

import "errors"

// ErrNotFound is returned when a lookup targets a row that does not exist.
var ErrNotFound = errors.New("not found")
