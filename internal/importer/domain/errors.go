package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput        = errors.New("invalid_input")
	ErrUnresolvedReference = errors.New("unresolved_reference")
	ErrStateNotFound       = errors.New("import_state_not_found")
	ErrStateLocked         = errors.New("import_state_locked")
	ErrCritical            = errors.New("critical_store_failure")
)

// UnresolvedError lists every reference that is still missing.
type UnresolvedError struct {
	Missing []MissingReference
}

func (e *UnresolvedError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s %q not found", m.Key, m.Value))
	}
	return strings.Join(parts, "; ")
}

func (e *UnresolvedError) Unwrap() error {
	return ErrUnresolvedReference
}
