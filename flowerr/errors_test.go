package flowerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlowErrorUnwrap(t *testing.T) {
	fe := New("DataError", CategoryData, ErrData, "path not found").WithOperation("b")
	assert.True(t, errors.Is(fe, ErrData))
	assert.Equal(t, "DataError[b]: path not found", fe.Error())
}

func TestIsRetryableClassification(t *testing.T) {
	assert.True(t, IsRetryable(ErrNetwork))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.False(t, IsRetryable(ErrValidation))
	assert.True(t, IsTerminal(ErrRateLimit))
}

func TestApiErrorRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{200, false},
		{404, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
		{400, false},
	}
	for _, tc := range tests {
		ae := &ApiError{Status: tc.status}
		assert.Equalf(t, tc.want, ae.Retryable(), "status %d", tc.status)
	}
}
