// Package store defines the interface for database implementations persisting funding round configurations.
package store

import (
	"errors"
)

// DB defines the required methods to persist rounds. The in-memory table is always written after the durable
// store, so a failed write leaves both sides unchanged.
type DB interface {
	SaveRound(r Round) error
	RemoveRound(key string) error
	GetRounds() ([]Round, error)
}

// Errors returned
var (
	ErrRoundNotFound = errors.New("round was not found in store")
	ErrDataNotFound  = errors.New("data was not found in store")
)
