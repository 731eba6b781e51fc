package service

import (
	"fmt"
	"net/http"

	apperrors "tripsync/pkg/errors"
	"tripsync/pkg/model"
)

type ResultCode string

const (
	CodeOK                ResultCode = "ok"
	CodeIdempotentReplay  ResultCode = "idempotentReplay"
	CodeLockContention    ResultCode = "lockContention"
	CodeVersionConflict   ResultCode = "versionConflict"
	CodeAlreadyTaken      ResultCode = "alreadyTaken"
	CodeNotFound          ResultCode = "notFound"
	CodeForbidden         ResultCode = "forbidden"
	CodeStorageError      ResultCode = "storageError"
	CodeValidation        ResultCode = "validation"
	CodeDriverUnavailable ResultCode = "driverUnavailable"
	CodeDriverNotVerified ResultCode = "driverNotVerified"
)

// Result is the outcome of a coordinator operation. Retryable marks outcomes
// a client may retry unchanged.
type Result struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	Code         ResultCode      `json:"code"`
	Retryable    bool            `json:"retryable"`
	TripID       int64           `json:"trip_id"`
	Version      int64           `json:"version,omitempty"`
	State        model.TripState `json:"state,omitempty"`
	CurrentState model.TripState `json:"current_state,omitempty"`

	Details map[string]any `json:"-"`
	Err     error          `json:"-"`
}

// resultError carries a failed Result out of a transaction so it rolls back.
type resultError struct {
	result Result
}

func (e *resultError) Error() string {
	return fmt.Sprintf("%s: %s", e.result.Code, e.result.Message)
}

func reject(result Result) error {
	return &resultError{result: result}
}

// AppError maps a failed result onto the API error taxonomy. Successful
// results map to nil.
func (r Result) AppError() *apperrors.AppError {
	if r.Success {
		return nil
	}

	var appErr *apperrors.AppError
	switch r.Code {
	case CodeLockContention:
		appErr = apperrors.LockContention(r.Message)
	case CodeVersionConflict:
		appErr = apperrors.VersionConflict(r.Message, r.Version)
	case CodeAlreadyTaken:
		appErr = apperrors.AlreadyTaken(r.Message, string(r.CurrentState))
	case CodeNotFound:
		appErr = apperrors.New(apperrors.CodeNotFound, r.Message, http.StatusNotFound)
	case CodeForbidden:
		appErr = apperrors.Forbidden(r.Message)
	case CodeValidation:
		appErr = apperrors.Validation(r.Message, nil)
	case CodeDriverUnavailable:
		appErr = apperrors.DriverUnavailable(r.Message)
	case CodeDriverNotVerified:
		appErr = apperrors.DriverNotVerified(r.Message)
	default:
		appErr = apperrors.Storage("Failed to process trip operation", r.Err)
	}
	if len(r.Details) > 0 {
		appErr.WithDetails(r.Details)
	}
	return appErr.WithDetails(map[string]any{"trip_id": r.TripID})
}

func okResult(tripID int64, message string, update model.VersionedUpdate) Result {
	return Result{
		Success: true,
		Message: message,
		Code:    CodeOK,
		TripID:  tripID,
		Version: update.Version,
		State:   update.State,
	}
}

func replayResult(trip *model.TripRequest) Result {
	return Result{
		Success: true,
		Message: "Operation already applied",
		Code:    CodeIdempotentReplay,
		TripID:  trip.ID,
		Version: trip.Version,
		State:   trip.State,
	}
}

func lockContentionResult(tripID int64) Result {
	return Result{
		Message:   "Trip is being processed by another actor, retry shortly",
		Code:      CodeLockContention,
		Retryable: true,
		TripID:    tripID,
	}
}

func versionConflictResult(tripID int64, current model.VersionedUpdate) Result {
	return Result{
		Message:      "Trip was modified concurrently",
		Code:         CodeVersionConflict,
		Retryable:    true,
		TripID:       tripID,
		Version:      current.Version,
		CurrentState: current.State,
	}
}

func alreadyTakenResult(trip *model.TripRequest, message string) Result {
	return Result{
		Message:      message,
		Code:         CodeAlreadyTaken,
		TripID:       trip.ID,
		Version:      trip.Version,
		CurrentState: trip.State,
	}
}

func rejectedResult(tripID int64, code ResultCode, message string) Result {
	return Result{
		Message: message,
		Code:    code,
		TripID:  tripID,
	}
}

func validationResult(tripID int64, err error, details map[string]any) Result {
	return Result{
		Message: err.Error(),
		Code:    CodeValidation,
		TripID:  tripID,
		Details: details,
		Err:     err,
	}
}

func storageErrorResult(tripID int64, err error) Result {
	return Result{
		Message:   "Storage failure, retry later",
		Code:      CodeStorageError,
		Retryable: true,
		TripID:    tripID,
		Err:       err,
	}
}
