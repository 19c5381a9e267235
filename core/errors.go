package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// ConfigError reports a setting the process cannot run without. It is fatal at startup.
type ConfigError struct {
	Key string
	Msg string
}

func NewConfigError(key, msg string) error {
	return &ConfigError{Key: key, Msg: msg}
}

func (err ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", err.Key, err.Msg)
}

func IsConfigError(err error) bool {
	_, ok := errors.Cause(err).(*ConfigError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
