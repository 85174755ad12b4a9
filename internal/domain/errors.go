package domain

import (
	"errors"
	"fmt"
)

const (
	MaxTextLength    = 4096
	MaxCaptionLength = 1024
	MinPollAnswers   = 2
	MaxPollAnswers   = 10
)

var (
	ErrNotFound            = errors.New("not found")
	ErrMediaPreparation    = errors.New("media preparation failed")
	ErrStaleMediaReference = errors.New("stale media reference")
	ErrTransport           = errors.New("transport error")
	ErrCancelled           = errors.New("cancelled")
	ErrAlreadySending      = errors.New("message is already being sent")
	ErrAlreadyEditing      = errors.New("message is already being edited")
	ErrNotRetryable        = errors.New("message is not in error state")
)

// ValidationError rejects an intent before any side effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid intent: " + e.Message
	}
	return fmt.Sprintf("invalid intent: %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// TransportError carries the server error classification of a failed request.
type TransportError struct {
	Code int
	Type string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("transport error %d %s: %v", e.Code, e.Type, e.Err)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
