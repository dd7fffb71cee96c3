package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrVersionConflict  = errors.New("session version conflict")
	ErrDuplicateCommand = errors.New("command already registered")
	ErrDispatcherClosed = errors.New("dispatcher is closed")
	ErrLaneSaturated    = errors.New("lane queue full")
	ErrUpdateTimeout    = errors.New("update processing timed out")
	ErrInvalidArgument  = errors.New("invalid argument")
)
