// Package faults defines the error kinds shared by the profile fusion core
// and the simulation harness.
package faults

import (
	"errors"
	"fmt"
)

// Sentinels matched by errors.Is against the typed errors below.
var (
	ErrSchema        = errors.New("schema violation")
	ErrConfiguration = errors.New("invalid configuration")
	ErrExternalCall  = errors.New("external call failed")
)

// SchemaError reports a profile that is missing a schema pair, carries an
// unknown pair, or holds an out-of-range confidence or ill-typed value.
type SchemaError struct {
	Dimension string
	Field     string
	Reason    string
}

func (e *SchemaError) Error() string {
	switch {
	case e.Dimension == "":
		return fmt.Sprintf("schema: %s", e.Reason)
	case e.Field == "":
		return fmt.Sprintf("schema: %s: %s", e.Dimension, e.Reason)
	default:
		return fmt.Sprintf("schema: %s.%s: %s", e.Dimension, e.Field, e.Reason)
	}
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// Schemaf builds a SchemaError for a (dimension, field) pair.
func Schemaf(dimension, field, format string, args ...any) *SchemaError {
	return &SchemaError{Dimension: dimension, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConfigurationError is raised when a session is constructed with invalid
// settings.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Setting, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Configf builds a ConfigurationError for setting.
func Configf(setting, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Setting: setting, Reason: fmt.Sprintf(format, args...)}
}

// ExternalCallFailure wraps an error or timeout from a collaborator such as
// the extraction capability. Callers recover by skipping the step that
// depended on the call.
type ExternalCallFailure struct {
	Op  string
	Err error
}

func (e *ExternalCallFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalCallFailure) Unwrap() error { return e.Err }

func (e *ExternalCallFailure) Is(target error) bool { return target == ErrExternalCall }

// External wraps err as an ExternalCallFailure for op. A nil err stays nil.
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	var ext *ExternalCallFailure
	if errors.As(err, &ext) && ext.Op == op {
		return err
	}
	return &ExternalCallFailure{Op: op, Err: err}
}
