package db

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicate     = errors.New("duplicate key")
	ErrStaleState    = errors.New("conversation is no longer awaiting a decision")
	ErrRoundConflict = errors.New("appeal round already recorded")
)
