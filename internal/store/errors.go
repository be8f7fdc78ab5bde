package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrMedicineNotFound   = errors.New("medicine not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrValidation         = errors.New("validation failed")
	ErrCorruptState       = errors.New("corrupt store document")
	ErrUnsupportedSchema  = errors.New("unsupported store schema version")
)

// ValidationError reports every input field that failed its constraint,
// keyed by the field's JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// TransactionError explains why a sale was rejected. Reason is either
// ErrMedicineNotFound or ErrInsufficientStock.
type TransactionError struct {
	Reason     error
	MedicineID string
	Name       string
	Requested  int
	Available  int
}

func (e *TransactionError) Error() string {
	label := e.MedicineID
	if e.Name != "" {
		label = fmt.Sprintf("%s (%s)", e.Name, e.MedicineID)
	}
	if errors.Is(e.Reason, ErrInsufficientStock) {
		return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", label, e.Requested, e.Available)
	}
	return fmt.Sprintf("medicine %s no longer available", label)
}

func (e *TransactionError) Unwrap() error {
	return e.Reason
}
