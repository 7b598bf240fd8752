// Package repository implements the slot and session stores on top of
// database/sql.  Every query is written to run unchanged on MySQL and
// SQLite.  The sentinel values below let higher layers such as the booking
// engine distinguish between failure scenarios without inspecting driver
// errors.
package repository

import "errors"

// ErrNotFound is returned when the requested slot or session does not
// exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a compare-and-set finds the row in a
// different status than expected, when a delete or update is blocked by
// the row's current state, or when the one-active-session-per-slot index
// rejects an insert.
var ErrConflict = errors.New("conflict")

// ErrInvalidTransition is returned when a caller asks for a transition
// whose source and target status are the same.  It indicates a
// programming error, not a race.
var ErrInvalidTransition = errors.New("invalid status transition")
