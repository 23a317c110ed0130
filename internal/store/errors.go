package store

import "errors"

var (
	ErrNotFound  = errors.New("store: not found")
	ErrConflict  = errors.New("store: conflict")
	ErrCycle     = errors.New("store: support edge would create a cycle")
	ErrImmutable = errors.New("store: belief is immutable")
	ErrInvalid   = errors.New("store: invalid record")
	ErrNotActive = errors.New("store: record is not active")
)
