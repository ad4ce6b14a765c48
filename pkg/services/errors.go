// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest         = errors.New("invalid request")
	ErrInvalidSortField       = errors.New("invalid sort field")
	ErrInvalidSortOrder       = errors.New("invalid sort order")
	ErrInvalidStatus          = errors.New("invalid flow status")
	ErrInvalidScope           = errors.New("invalid flow scope")
	ErrInvalidTaskState       = errors.New("invalid task state")
	ErrInvalidInteraction     = errors.New("invalid interaction type")
	ErrEmptyTenantID          = errors.New("tenant ID cannot be empty")
	ErrEmptyUserID            = errors.New("user ID cannot be empty")
	ErrTenantScopeRequiresID  = errors.New("tenant-scoped flow requires a tenant ID")

	// Publishing Validation Errors (400 Bad Request).
	ErrFlowNameRequired    = errors.New("flow name is required")
	ErrTasksRequired       = errors.New("flow must have at least one task")
	ErrInvalidDependencies = errors.New("invalid task dependencies")
	ErrFlowNil             = errors.New("flow cannot be nil")
	ErrInvalidFlowConfig   = errors.New("invalid flow configuration")

	// Business Logic Conflicts (409 Conflict).
	ErrCannotModifyPublished   = errors.New("cannot modify published flow")
	ErrCannotModifyUnpublished = errors.New("cannot modify unpublished flow")
	ErrCannotDeletePublished   = errors.New("cannot delete published flow")
	ErrOverrideExists          = errors.New("override already exists for tenant")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidScope) ||
		errors.Is(err, ErrInvalidTaskState) ||
		errors.Is(err, ErrInvalidInteraction) ||
		errors.Is(err, ErrEmptyTenantID) ||
		errors.Is(err, ErrEmptyUserID) ||
		errors.Is(err, ErrTenantScopeRequiresID) ||
		errors.Is(err, ErrFlowNameRequired) ||
		errors.Is(err, ErrTasksRequired) ||
		errors.Is(err, ErrInvalidDependencies) ||
		errors.Is(err, ErrFlowNil) ||
		errors.Is(err, ErrInvalidFlowConfig)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCannotModifyPublished) ||
		errors.Is(err, ErrCannotModifyUnpublished) ||
		errors.Is(err, ErrCannotDeletePublished) ||
		errors.Is(err, ErrOverrideExists)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
