// Package errors defines the error taxonomy for the rotation scheduler.
// Only configuration-class errors propagate to callers; credential
// exhaustion is a normal steady state and is never represented here.
package errors

import (
	"errors"
	"fmt"
)

// SchedulerError is a typed error from the rotation scheduler.
type SchedulerError struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	CredentialID string `json:"credential_id,omitempty"`
	Err          error  `json:"-"`
}

// Error implements the error interface.
func (e *SchedulerError) Error() string {
	if e.CredentialID != "" {
		return fmt.Sprintf("[%s] %s (credential=%s)", e.Type, e.Message, e.CredentialID)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *SchedulerError) Unwrap() error {
	return e.Err
}

// Error types as constants for consistency.
const (
	TypeConfiguration     = "configuration_error"
	TypeUnknownCredential = "unknown_credential_error"
)

// NewConfigurationError creates a fatal startup-time error: the scheduler
// was constructed or used with an invalid credential set. Not retryable.
func NewConfigurationError(message string) *SchedulerError {
	return &SchedulerError{
		Type:    TypeConfiguration,
		Message: message,
	}
}

// NewUnknownCredentialError reports a usage record for an ID that was
// never configured. This indicates a caller bug, not a transient state.
func NewUnknownCredentialError(credentialID string) *SchedulerError {
	return &SchedulerError{
		Type:         TypeUnknownCredential,
		Message:      "credential is not configured",
		CredentialID: credentialID,
	}
}

// IsConfiguration reports whether err is a configuration-class error.
func IsConfiguration(err error) bool {
	var se *SchedulerError
	return errors.As(err, &se) && se.Type == TypeConfiguration
}

// IsUnknownCredential reports whether err names an unconfigured credential.
func IsUnknownCredential(err error) bool {
	var se *SchedulerError
	return errors.As(err, &se) && se.Type == TypeUnknownCredential
}
