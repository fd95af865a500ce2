package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels for errors.Is; the typed errors below unwrap to them.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("inventory conflict")
	ErrState      = errors.New("invalid state transition")
	ErrGateway    = errors.New("payment gateway failure")
)

// Conflict codes.
const (
	CodeSoldOut = "SOLD_OUT"
	CodeClosed  = "CLOSED"
	CodeMinStay = "MIN_STAY"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Entity string
	ID     interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(entity string, id interface{}) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError reports that capacity could not be reserved on Date.
type ConflictError struct {
	Code string
	Date time.Time
	Slot string
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("%s on %s", e.Code, e.Date.Format("2006-01-02"))
	if e.Slot != "" {
		msg += " at " + e.Slot
	}
	return msg
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

type StateError struct {
	From  string
	Event string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot apply %s to booking in status %s", e.Event, e.From)
}

func (e *StateError) Unwrap() error { return ErrState }

// GatewayError wraps a failure returned by the payment gateway.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("gateway %s failed", e.Op)
	}
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrGateway}
	}
	return []error{ErrGateway, e.Err}
}
