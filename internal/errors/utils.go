package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context, creating a PagesmithError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *PagesmithError {
	if err == nil {
		return nil
	}

	// Keep the component and recoverability of an inner PagesmithError
	var te *PagesmithError
	if errors.As(err, &te) {
		return &PagesmithError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       te,
			Context:     te.Context,
			Component:   te.Component,
			Recoverable: te.Recoverable,
		}
	}

	return &PagesmithError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeTemplate,
	}
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, message string) *PagesmithError {
	return Wrap(err, ErrorTypeConfig, ErrCodeConfigInvalid, message)
}

// WrapValidation wraps an error as a validation error
func WrapValidation(err error, code, message string) *PagesmithError {
	return Wrap(err, ErrorTypeValidation, code, message)
}

// FromPanic converts a recovered panic value into an internal error.
func FromPanic(component string, recovered interface{}) *PagesmithError {
	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("%v", recovered)
	}
	return NewInternalError(ErrCodeInternalError, "panic recovered", err).
		WithComponent(component)
}
