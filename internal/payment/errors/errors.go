package errors

import (
	"errors"
	"fmt"
	"strings"
)

type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

func IsValidationError(err error) bool {
	var validationError *ValidationError
	if errors.As(err, &validationError) {
		return true
	}
	return IsValidationErrors(err)
}

type ValidationErrors struct {
	Errors []error
}

func (ve *ValidationErrors) Error() string {
	errorMessages := make([]string, len(ve.Errors))
	for i, err := range ve.Errors {
		errorMessages[i] = err.Error()
	}
	return fmt.Sprintf("multiple validation errors: %s", strings.Join(errorMessages, "; "))
}

func (ve *ValidationErrors) Add(err error) {
	ve.Errors = append(ve.Errors, err)
}

// Err returns nil when nothing was collected, otherwise the aggregate itself.
func (ve *ValidationErrors) Err() error {
	if len(ve.Errors) == 0 {
		return nil
	}
	return ve
}

// Messages lists the individual messages, for API responses.
func (ve *ValidationErrors) Messages() []string {
	messages := make([]string, len(ve.Errors))
	for i, err := range ve.Errors {
		messages[i] = err.Error()
	}
	return messages
}

func IsValidationErrors(err error) bool {
	var validationErrors *ValidationErrors
	return errors.As(err, &validationErrors)
}

// FormatError means a numeric batch field would not fit its fixed width.
type FormatError struct {
	Field string
	Value string
	Width int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("batch field %s value %q exceeds width %d", e.Field, e.Value, e.Width)
}

func IsFormatError(err error) bool {
	var formatError *FormatError
	return errors.As(err, &formatError)
}

var (
	ErrEmptyBatch = errors.New("no payment authorizations for the requested date")
	ErrRunExists  = errors.New("batch file for this run already exists")

	ErrLinkNotFound    = errors.New("download link not found")
	ErrLinkExpired     = errors.New("download link has expired")
	ErrLinkAlreadyUsed = errors.New("download link has already been used")
	ErrFileMissing     = errors.New("batch file no longer exists")
)
