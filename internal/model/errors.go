package model

import (
	"errors"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrExists            = errors.New("already exists")
	ErrNotRunning        = errors.New("evaluation is not in progress")
	ErrAlreadyRunning    = errors.New("evaluation is already in progress")
	ErrInvalidType       = errors.New("evaluate type must be an integer between 1 and 4")
	ErrInvalidTransition = errors.New("invalid status transition")
)
