package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		check      func(error) bool
		wantStatus int
	}{
		{
			name:       "decode",
			err:        NewDecodeError("csv", stderrors.New("bad quote")),
			check:      IsDecodeError,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "storage",
			err:        NewStorageError("insert records", stderrors.New("disk full")),
			check:      IsStorageError,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "batch not found",
			err:        NewBatchNotFound("b1"),
			check:      IsBatchNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "rebuild in progress",
			err:        NewRebuildInProgress("b1"),
			check:      IsRebuildInProgress,
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(wrapped))

			converted := ToHTTPError(wrapped)
			assert.True(t, httperror.IsHTTPError(converted))
			assert.Equal(t, tt.wantStatus, httperror.GetStatusCode(converted))
		})
	}
}

func TestSentinels(t *testing.T) {
	assert.ErrorIs(t, NewBatchNotFound("x"), ErrBatchNotFound)
	assert.ErrorIs(t, NewRebuildInProgress("x"), ErrRebuildInProgress)
	assert.NotErrorIs(t, NewBatchNotFound("x"), ErrRebuildInProgress)
}

func TestStorageErrorHidesCause(t *testing.T) {
	err := NewStorageError("read clusters", stderrors.New("pq: password authentication failed"))
	assert.Contains(t, err.Error(), "password")
	assert.NotContains(t, err.ToHTTPError().Error(), "password")
}

func TestToHTTPError_PassThrough(t *testing.T) {
	plain := stderrors.New("plain")
	assert.Same(t, plain, ToHTTPError(plain))
	assert.NoError(t, ToHTTPError(nil))
}
