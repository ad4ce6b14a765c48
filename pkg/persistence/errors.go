// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
	"strings"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrFlowNotFound indicates a flow was not found by the given identifier.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrPublishedFlowNotFound indicates no published flow exists for the
	// given scope.
	ErrPublishedFlowNotFound = errors.New("published flow not found")

	// ErrDraftFlowNotFound indicates no draft flow exists for the given group.
	ErrDraftFlowNotFound = errors.New("draft flow not found")

	// ErrDraftAlreadyExists indicates a flow group already has a draft version.
	ErrDraftAlreadyExists = errors.New("draft flow already exists")

	// ErrInvalidFlowStatus indicates an invalid flow status was provided.
	ErrInvalidFlowStatus = errors.New("invalid flow status")

	// ErrOverrideNotFound indicates no override exists for the (flow, tenant) pair.
	ErrOverrideNotFound = errors.New("override not found")

	// ErrOverrideAlreadyExists indicates an override already exists for the
	// (flow, tenant) pair.
	ErrOverrideAlreadyExists = errors.New("override already exists")

	// ErrStatusNotFound indicates no task status row exists for the key.
	ErrStatusNotFound = errors.New("task status not found")

	// ErrInvalidSortField indicates a sort field outside the allowlist.
	ErrInvalidSortField = errors.New("invalid sort field")
)

// FlowError wraps flow-related errors with additional context.
type FlowError struct {
	Op          string // Operation being performed (e.g., "GetByID", "Save", "Publish")
	FlowID      string // Flow ID if applicable
	FlowGroupID string // Flow group ID if applicable
	Err         error  // Underlying error
	Message     string // Additional context message
}

func (e *FlowError) Error() string {
	target := e.FlowID
	if e.FlowGroupID != "" {
		target = fmt.Sprintf("group %s", e.FlowGroupID)
	}

	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for flow %s: %s (%v)", e.Op, target, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for flow %s: %v", e.Op, target, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for flow errors.
func (e *FlowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewFlowError creates a new flow error with context.
func NewFlowError(op, flowID string, err error) *FlowError {
	return &FlowError{
		Op:     op,
		FlowID: flowID,
		Err:    err,
	}
}

// NewFlowGroupError creates a new flow error for group operations.
func NewFlowGroupError(op, flowGroupID string, err error) *FlowError {
	return &FlowError{
		Op:          op,
		FlowGroupID: flowGroupID,
		Err:         err,
	}
}

// PartialResetError reports a reset that removed some rows before failing.
// Resets are idempotent per row, so retrying after a partial failure is
// safe; the error exists so the caller can tell "done" from "half done".
type PartialResetError struct {
	TenantID string
	UserID   string // empty for tenant-wide resets
	Removed  []string
	Failed   []string
	Err      error
}

func (e *PartialResetError) Error() string {
	scope := "tenant " + e.TenantID
	if e.UserID != "" {
		scope = fmt.Sprintf("user %s in tenant %s", e.UserID, e.TenantID)
	}

	return fmt.Sprintf("partial reset for %s: removed [%s], failed [%s]: %v",
		scope, strings.Join(e.Removed, ", "), strings.Join(e.Failed, ", "), e.Err)
}

func (e *PartialResetError) Unwrap() error {
	return e.Err
}

// IsFlowNotFound checks if an error indicates a flow was not found.
func IsFlowNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound)
}

// IsPublishedFlowNotFound checks if an error indicates a published flow was not found.
func IsPublishedFlowNotFound(err error) bool {
	return errors.Is(err, ErrPublishedFlowNotFound)
}

// IsDraftFlowNotFound checks if an error indicates a draft flow was not found.
func IsDraftFlowNotFound(err error) bool {
	return errors.Is(err, ErrDraftFlowNotFound)
}

// IsOverrideNotFound checks if an error indicates an override was not found.
func IsOverrideNotFound(err error) bool {
	return errors.Is(err, ErrOverrideNotFound)
}

// IsOverrideAlreadyExists checks if an error indicates a duplicate override.
func IsOverrideAlreadyExists(err error) bool {
	return errors.Is(err, ErrOverrideAlreadyExists)
}

// IsStatusNotFound checks if an error indicates a missing task status row.
func IsStatusNotFound(err error) bool {
	return errors.Is(err, ErrStatusNotFound)
}

// IsInvalidSortField checks if an error indicates a disallowed sort field.
func IsInvalidSortField(err error) bool {
	return errors.Is(err, ErrInvalidSortField)
}

// IsPartialReset checks if an error indicates a partially applied reset.
func IsPartialReset(err error) bool {
	var target *PartialResetError

	return errors.As(err, &target)
}
