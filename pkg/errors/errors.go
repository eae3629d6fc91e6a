package errors

import (
	"errors"
	"fmt"
	"time"
)

// ConnectionErrorKind classifies failures talking to a remote platform.
type ConnectionErrorKind string

const (
	Unreachable   ConnectionErrorKind = "unreachable"
	Unauthorized  ConnectionErrorKind = "unauthorized"
	Timeout       ConnectionErrorKind = "timeout"
	ProtocolError ConnectionErrorKind = "protocol_error"
)

// ConnectionError is returned by platform connectors.
type ConnectionError struct {
	Kind     ConnectionErrorKind
	Platform string
	Host     string
	Err      error
}

func NewConnectionError(kind ConnectionErrorKind, platform, host string, err error) *ConnectionError {
	return &ConnectionError{Kind: kind, Platform: platform, Host: host, Err: err}
}

func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("%s: %s connection failed", e.Kind, e.Platform)
	if e.Host != "" {
		msg = fmt.Sprintf("%s: %s connection to %q failed", e.Kind, e.Platform, e.Host)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient.
// Credentials rejected by the remote platform are never retried.
func (e *ConnectionError) Retryable() bool {
	return e.Kind == Unreachable || e.Kind == Timeout
}

func IsConnectionError(err error) bool {
	var e *ConnectionError
	return errors.As(err, &e)
}

// ConnectionErrorKindOf returns the kind of the wrapped ConnectionError, if any.
func ConnectionErrorKindOf(err error) (ConnectionErrorKind, bool) {
	var e *ConnectionError
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

type MalformedSelectionError struct {
	Token  string
	Reason string
}

func NewMalformedSelectionError(token, reason string) *MalformedSelectionError {
	return &MalformedSelectionError{Token: token, Reason: reason}
}

func (e *MalformedSelectionError) Error() string {
	return fmt.Sprintf("malformed selection %q: %s", e.Token, e.Reason)
}

func IsMalformedSelectionError(err error) bool {
	var e *MalformedSelectionError
	return errors.As(err, &e)
}

type OutOfRangeError struct {
	Ordinal int
	Max     int
}

func NewOutOfRangeError(ordinal, max int) *OutOfRangeError {
	return &OutOfRangeError{Ordinal: ordinal, Max: max}
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("vm %d is out of range [1, %d]", e.Ordinal, e.Max)
}

func IsOutOfRangeError(err error) bool {
	var e *OutOfRangeError
	return errors.As(err, &e)
}

type OutOfOrderTransitionError struct {
	Expected string
	Actual   string
}

func NewOutOfOrderTransitionError(expected, actual string) *OutOfOrderTransitionError {
	return &OutOfOrderTransitionError{Expected: expected, Actual: actual}
}

func (e *OutOfOrderTransitionError) Error() string {
	return fmt.Sprintf("transition requires phase %q but session is in %q", e.Expected, e.Actual)
}

func IsOutOfOrderTransitionError(err error) bool {
	var e *OutOfOrderTransitionError
	return errors.As(err, &e)
}

type PersistenceError struct {
	Path string
	Err  error
}

func NewPersistenceError(path string, err error) *PersistenceError {
	return &PersistenceError{Path: path, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func IsPersistenceError(err error) bool {
	var e *PersistenceError
	return errors.As(err, &e)
}

type CorruptDocumentError struct {
	Path string
	Err  error
}

func NewCorruptDocumentError(path string, err error) *CorruptDocumentError {
	return &CorruptDocumentError{Path: path, Err: err}
}

func (e *CorruptDocumentError) Error() string {
	return fmt.Sprintf("configuration document %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptDocumentError) Unwrap() error {
	return e.Err
}

func IsCorruptDocumentError(err error) bool {
	var e *CorruptDocumentError
	return errors.As(err, &e)
}

// UnresolvedOrdinalError means the inventory snapshot no longer holds an ordinal
// that was selected against it.
type UnresolvedOrdinalError struct {
	Ordinal       int
	InventorySize int
}

func NewUnresolvedOrdinalError(ordinal, inventorySize int) *UnresolvedOrdinalError {
	return &UnresolvedOrdinalError{Ordinal: ordinal, InventorySize: inventorySize}
}

func (e *UnresolvedOrdinalError) Error() string {
	return fmt.Sprintf("vm %d cannot be resolved against an inventory of %d vms", e.Ordinal, e.InventorySize)
}

func IsUnresolvedOrdinalError(err error) bool {
	var e *UnresolvedOrdinalError
	return errors.As(err, &e)
}

// MigrationStepFailure is the outcome of a single failed VM migration.
// It is folded into the run report and never aborts a run.
type MigrationStepFailure struct {
	VM     string
	Reason string
	Err    error
}

func NewMigrationStepFailure(vm, reason string, err error) *MigrationStepFailure {
	return &MigrationStepFailure{VM: vm, Reason: reason, Err: err}
}

func (e *MigrationStepFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("migration of %s failed: %s: %v", e.VM, e.Reason, e.Err)
	}
	return fmt.Sprintf("migration of %s failed: %s", e.VM, e.Reason)
}

func (e *MigrationStepFailure) Unwrap() error {
	return e.Err
}

func IsMigrationStepFailure(err error) bool {
	var e *MigrationStepFailure
	return errors.As(err, &e)
}

type ResourceNotFoundError struct {
	Kind string
	ID   string
}

func NewSessionNotFoundError(id string) *ResourceNotFoundError {
	return &ResourceNotFoundError{Kind: "session", ID: id}
}

func NewRunNotFoundError(id string) *ResourceNotFoundError {
	return &ResourceNotFoundError{Kind: "migration run", ID: id}
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func IsResourceNotFoundError(err error) bool {
	var e *ResourceNotFoundError
	return errors.As(err, &e)
}

type UnsupportedPlatformError struct {
	Platform string
	Role     string
}

func NewUnsupportedPlatformError(platform, role string) *UnsupportedPlatformError {
	return &UnsupportedPlatformError{Platform: platform, Role: role}
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("%s platform %q is not supported", e.Role, e.Platform)
}

func IsUnsupportedPlatformError(err error) bool {
	var e *UnsupportedPlatformError
	return errors.As(err, &e)
}

// MigrationInProgressError is returned when a session is asked to do anything
// destructive while its run is still dispatching.
type MigrationInProgressError struct {
	StartedAt time.Time
}

func NewMigrationInProgressError(startedAt time.Time) *MigrationInProgressError {
	return &MigrationInProgressError{StartedAt: startedAt}
}

func (e *MigrationInProgressError) Error() string {
	if e.StartedAt.IsZero() {
		return "session is busy with another transition"
	}
	return fmt.Sprintf("migration started at %s is still running", e.StartedAt.Format(time.RFC3339))
}

func IsMigrationInProgressError(err error) bool {
	var e *MigrationInProgressError
	return errors.As(err, &e)
}
