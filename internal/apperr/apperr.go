// Package apperr defines the error taxonomy shared across the service.
//
// ValidationError and NotFoundError are recoverable by the caller or an
// operator; ExternalServiceError signals a failed or malformed upstream
// response; ConfigurationError signals a deployment problem and is never
// recovered from at request time.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError reports invalid user input, e.g. a malformed camera-folder
// string or a folder with no matching survey submission.
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

// NotFoundError reports a missing entity, locally or on a collaborator
// (e.g. the asset-manager folder for a camera does not exist yet).
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// ExternalServiceError reports a failed call to a collaborator service.
// State writes that depend on the call must not have happened when one of
// these is returned.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// ConfigurationError reports an inconsistency between configuration and
// data, e.g. a metadata attribute referencing a field absent from the
// submission record.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return e.Msg }

func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(entity, key string) error {
	return &NotFoundError{Entity: entity, Key: key}
}

func External(service, op string, err error) error {
	return &ExternalServiceError{Service: service, Op: op, Err: err}
}

func Configuration(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
