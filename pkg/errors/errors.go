package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

var (
	// ErrBatchNotFound matches any BatchNotFoundError via errors.Is
	ErrBatchNotFound = stderrors.New("batch not found")
	// ErrRebuildInProgress matches any RebuildInProgressError via errors.Is
	ErrRebuildInProgress = stderrors.New("cluster rebuild already in progress")
)

// HTTPConvertible is implemented by every error in this package.
type HTTPConvertible interface {
	ToHTTPError() *httperror.HTTPError
}

// DecodeError means a byte stream could not be read as a table with either
// the primary or the fallback encoding.
type DecodeError struct {
	Format string
	Err    error
}

func NewDecodeError(format string, err error) *DecodeError {
	return &DecodeError{Format: format, Err: err}
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unable to decode %s input", e.Format)
	}
	return fmt.Sprintf("unable to decode %s input: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity, e.Error()).AddMetaValue("format", e.Format)
}

// StorageError wraps a failed read or write against the row, batch or cache
// tables.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage failure during %s", e.Op)
	}
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ToHTTPError hides the driver error from callers; it is logged where it
// happens.
func (e *StorageError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to %s", e.Op)
}

type BatchNotFoundError struct {
	BatchID string
}

func NewBatchNotFound(batchID string) *BatchNotFoundError {
	return &BatchNotFoundError{BatchID: batchID}
}

func (e *BatchNotFoundError) Error() string {
	return fmt.Sprintf("batch %s not found", e.BatchID)
}

func (e *BatchNotFoundError) Is(target error) bool {
	return target == ErrBatchNotFound
}

func (e *BatchNotFoundError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusNotFound, e.Error()).AddMetaValue("batch_id", e.BatchID)
}

type RebuildInProgressError struct {
	BatchID string
}

func NewRebuildInProgress(batchID string) *RebuildInProgressError {
	return &RebuildInProgressError{BatchID: batchID}
}

func (e *RebuildInProgressError) Error() string {
	return fmt.Sprintf("cluster rebuild already in progress for batch %s", e.BatchID)
}

func (e *RebuildInProgressError) Is(target error) bool {
	return target == ErrRebuildInProgress
}

func (e *RebuildInProgressError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).AddMetaValue("batch_id", e.BatchID)
}

func IsDecodeError(err error) bool {
	var target *DecodeError
	return stderrors.As(err, &target)
}

func IsStorageError(err error) bool {
	var target *StorageError
	return stderrors.As(err, &target)
}

func IsBatchNotFound(err error) bool {
	return stderrors.Is(err, ErrBatchNotFound)
}

func IsRebuildInProgress(err error) bool {
	return stderrors.Is(err, ErrRebuildInProgress)
}

// ToHTTPError converts domain errors to httperror values and leaves
// everything else untouched.
func ToHTTPError(err error) error {
	if err == nil {
		return nil
	}
	var convertible HTTPConvertible
	if stderrors.As(err, &convertible) {
		return convertible.ToHTTPError()
	}
	return err
}
