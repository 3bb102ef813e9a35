// Package errors provides the structured error type shared by every pagesmith
// package. Each failure class the preview core can produce (circular plugin
// dependencies, initialization timeouts, invalid block tree edits, template
// stage failures) has a stable code so callers can branch with errors.Is or
// HasCode instead of matching on message text.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeDependency ErrorType = "dependency"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeBlock      ErrorType = "block"
	ErrorTypeTemplate   ErrorType = "template"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeCircularDependency = "ERR_CIRCULAR_DEPENDENCY"
	ErrCodeInitTimeout        = "ERR_INIT_TIMEOUT"
	ErrCodeInitFailed         = "ERR_INIT_FAILED"
	ErrCodeDependencyFailed   = "ERR_DEPENDENCY_FAILED"
	ErrCodeUnknownBlockType   = "ERR_UNKNOWN_BLOCK_TYPE"
	ErrCodeNotAContainer      = "ERR_NOT_A_CONTAINER"
	ErrCodeBlockNotFound      = "ERR_BLOCK_NOT_FOUND"
	ErrCodeInvalidTree        = "ERR_INVALID_TREE"
	ErrCodeTemplateStage      = "ERR_TEMPLATE_STAGE"
	ErrCodeConfigInvalid      = "ERR_CONFIG_INVALID"
	ErrCodeValidationFailed   = "ERR_VALIDATION_FAILED"
	ErrCodeInternalError      = "ERR_INTERNAL"
)

// PagesmithError is a structured error type with context.
type PagesmithError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	Recoverable bool
}

// Error implements the error interface.
func (e *PagesmithError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PagesmithError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison. Two PagesmithErrors match when they share
// both type and code, so a freshly built error can serve as a comparison target.
func (e *PagesmithError) Is(target error) bool {
	var t *PagesmithError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *PagesmithError) WithContext(key string, value interface{}) *PagesmithError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds component context.
func (e *PagesmithError) WithComponent(component string) *PagesmithError {
	e.Component = component

	return e
}

// Error creation functions

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *PagesmithError {
	return &PagesmithError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewDependencyError creates a dependency error.
func NewDependencyError(code, message string, cause error) *PagesmithError {
	return &PagesmithError{
		Type:    ErrorTypeDependency,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewBlockError creates a block tree error.
func NewBlockError(code, message string) *PagesmithError {
	return &PagesmithError{
		Type:        ErrorTypeBlock,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *PagesmithError {
	return &PagesmithError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *PagesmithError {
	return &PagesmithError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Helper functions for the failure classes of the preview core

// ErrCircularDependency reports a dependency cycle. The cycle path is kept in
// the "cycle" context key, first member repeated at the end.
func ErrCircularDependency(cycle []string) *PagesmithError {
	return NewDependencyError(
		ErrCodeCircularDependency,
		"circular dependency: "+strings.Join(cycle, " -> "),
		nil,
	).WithContext("cycle", cycle)
}

// ErrInitializationTimeout reports a capability whose init exceeded its budget.
func ErrInitializationTimeout(name string, timeout time.Duration) *PagesmithError {
	return &PagesmithError{
		Type:        ErrorTypeTimeout,
		Code:        ErrCodeInitTimeout,
		Message:     fmt.Sprintf("initialization of %s exceeded %s", name, timeout),
		Component:   name,
		Recoverable: true,
	}
}

// ErrInitFailed wraps the error returned by a capability's init function.
func ErrInitFailed(name string, cause error) *PagesmithError {
	err := NewDependencyError(ErrCodeInitFailed, "initialization failed", cause)
	err.Component = name
	err.Recoverable = true
	return err
}

// ErrDependencyFailed reports that name cannot start because dep is not ready.
func ErrDependencyFailed(name, dep, reason string) *PagesmithError {
	err := NewDependencyError(
		ErrCodeDependencyFailed,
		fmt.Sprintf("dependency %s %s", dep, reason),
		nil,
	).WithContext("dependency", dep)
	err.Component = name
	return err
}

// ErrUnknownBlockType reports a block type id with no registered descriptor.
func ErrUnknownBlockType(typeID string) *PagesmithError {
	return NewBlockError(ErrCodeUnknownBlockType, "unknown block type: "+typeID).
		WithContext("type_id", typeID)
}

// ErrNotAContainer reports an attempt to nest a block under a leaf block.
func ErrNotAContainer(blockID, typeID string) *PagesmithError {
	return NewBlockError(
		ErrCodeNotAContainer,
		fmt.Sprintf("block %s of type %s cannot hold children", blockID, typeID),
	).WithContext("block_id", blockID).WithContext("type_id", typeID)
}

// ErrBlockNotFound reports an unknown block instance id.
func ErrBlockNotFound(id string) *PagesmithError {
	return NewBlockError(ErrCodeBlockNotFound, "block not found: "+id).
		WithContext("block_id", id)
}

// ErrInvalidTree reports a structural violation of the block tree.
func ErrInvalidTree(message string) *PagesmithError {
	return NewBlockError(ErrCodeInvalidTree, message)
}

// ErrTemplateStage wraps a failure of the template expansion stage.
func ErrTemplateStage(cause error) *PagesmithError {
	return &PagesmithError{
		Type:        ErrorTypeTemplate,
		Code:        ErrCodeTemplateStage,
		Message:     "template expansion failed",
		Cause:       cause,
		Recoverable: true,
	}
}

// Error recovery and handling utilities

// HasCode reports whether any PagesmithError in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var te *PagesmithError
		if !errors.As(err, &te) {
			return false
		}
		if te.Code == code {
			return true
		}
		err = te.Cause
	}

	return false
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var te *PagesmithError
	if errors.As(err, &te) {
		return te.Recoverable
	}

	return false
}

// IsCircularDependency checks if an error reports a dependency cycle.
func IsCircularDependency(err error) bool {
	return HasCode(err, ErrCodeCircularDependency)
}

// IsTimeout checks if an error is an initialization timeout.
func IsTimeout(err error) bool {
	return HasCode(err, ErrCodeInitTimeout)
}

// CyclePath returns the cycle recorded on a circular dependency error.
func CyclePath(err error) []string {
	var te *PagesmithError
	if !errors.As(err, &te) {
		return nil
	}
	cycle, _ := te.Context["cycle"].([]string)
	return cycle
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs an error at a level that matches its type. Recoverable runtime
// failures become warnings so they never read as crashes of the preview loop.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var te *PagesmithError
	if !errors.As(err, &te) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch te.Type {
	case ErrorTypeTemplate, ErrorTypeTimeout, ErrorTypeValidation, ErrorTypeBlock:
		h.logger.Warn(ctx, te, "Recovered error",
			"type", te.Type,
			"code", te.Code,
			"component", te.Component)
	default:
		h.logger.Error(ctx, te, "Error occurred",
			"type", te.Type,
			"code", te.Code,
			"component", te.Component)
	}
}
