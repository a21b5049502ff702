package repositories

import "errors"

// ErrNotFound is returned when a requested row does not exist. Services
// translate it into their own not-found domain errors.
var ErrNotFound = errors.New("record not found")
