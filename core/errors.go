package core

import "errors"

var (
	// ErrEmptyIndividual indicates a blank individual id.
	ErrEmptyIndividual = errors.New("empty individual id")
	// ErrInvalidBadgeID indicates a badge id outside the allowed charset.
	ErrInvalidBadgeID = errors.New("invalid badge id")
	// ErrInvalidSchedule indicates a reset schedule that yields no boundary.
	ErrInvalidSchedule = errors.New("invalid reset schedule")
	// ErrInvalidProgress indicates a progress record with an illegal field combination.
	ErrInvalidProgress = errors.New("invalid progress record")
	// ErrUnknownBadge indicates a badge id missing from the catalog.
	ErrUnknownBadge = errors.New("unknown badge")
	// ErrZeroDelta indicates a points change of zero.
	ErrZeroDelta = errors.New("delta cannot be zero")
	// ErrOverflow indicates a points total would overflow int64.
	ErrOverflow = errors.New("integer overflow in AddSafe")
)
