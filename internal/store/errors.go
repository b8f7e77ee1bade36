package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced machine or issue does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned when a required field is missing.
	ErrValidation = errors.New("validation failed")
	// ErrStorage wraps every failure of the underlying database.
	ErrStorage = errors.New("storage failure")
	// ErrConflict is returned when a timer update kept losing to concurrent writers.
	ErrConflict = errors.New("concurrent update")
)

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

func validationErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
