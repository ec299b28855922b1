package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for SegmentKeeper operations.
var (
	// ErrRuleNotRegistered indicates no active variant claims a rule key.
	ErrRuleNotRegistered = errors.New("rule not registered")

	// ErrDuplicateRuleKey indicates a second variant tried to claim an active rule key.
	ErrDuplicateRuleKey = errors.New("rule key already registered")

	// ErrRuleInstanceNotFound indicates a rule instance lookup by surrogate key failed.
	ErrRuleInstanceNotFound = errors.New("rule instance not found")

	// ErrResourceUnavailable indicates an external service (event history,
	// navigation registry, database) failed structurally.
	ErrResourceUnavailable = errors.New("resource unavailable")

	// ErrUnresolvableReference indicates a local reference could not be mapped
	// to or from its portable form because the target no longer exists.
	ErrUnresolvableReference = errors.New("unresolvable reference")

	// ErrUnsupportedClassName indicates a staged-model call for a class the
	// handler does not manage.
	ErrUnsupportedClassName = errors.New("unsupported class name")

	// ErrInvalidTypeSettings indicates a payload that exceeds limits or cannot
	// be stored.
	ErrInvalidTypeSettings = errors.New("invalid type settings")

	// ErrInvalidRecord indicates an export record that cannot be decoded.
	ErrInvalidRecord = errors.New("invalid export record")
)

// InvalidRuleError reports a rule configuration that cannot be resolved to a
// valid target. Key is a user-facing message key, not prose.
type InvalidRuleError struct {
	Key string
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid rule configuration: %s", e.Key)
}

// NewInvalidRuleError creates an InvalidRuleError for a message key.
func NewInvalidRuleError(key string) *InvalidRuleError {
	return &InvalidRuleError{Key: key}
}

// IsInvalidRule reports whether err carries an InvalidRuleError and returns its key.
func IsInvalidRule(err error) (string, bool) {
	var ire *InvalidRuleError
	if errors.As(err, &ire) {
		return ire.Key, true
	}
	return "", false
}

// Unavailable wraps err as ErrResourceUnavailable, keeping the cause inspectable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrResourceUnavailable, err)
}
