package errors

import "errors"

var (
	ErrNotFound = errors.New("trip not found")

	ErrDriverNotFound = errors.New("driver not found")

	ErrAssignmentNotFound = errors.New("active assignment not found")

	ErrAssignmentExists = errors.New("trip already has an active assignment")

	ErrLockNotFound = errors.New("lock not found")

	ErrLockContention = errors.New("resource is locked by another holder")

	ErrInvalidID = errors.New("invalid trip ID")
)
