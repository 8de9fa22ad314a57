package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error taxonomy shared by the repository, services and bulk loader.
var (
	ErrValidation    = errors.New("validation failed")
	ErrConflict      = errors.New("translation key already exists")
	ErrNotFound      = errors.New("translation key not found")
	ErrConfiguration = errors.New("invalid configuration")
	ErrStore         = errors.New("store failure")
)

// ValidationError carries per-field messages for rejected input.
// It matches ErrValidation under errors.Is.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError from field → message pairs.
func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+": "+e.Fields[n])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StoreFailure wraps err as an ErrStore for operation op. A nil err or an
// error that already belongs to the taxonomy is returned unchanged.
func StoreFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrConflict, ErrNotFound, ErrValidation, ErrConfiguration, ErrStore} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}

// Configuration returns an ErrConfiguration carrying msg.
func Configuration(msg string) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, msg)
}
