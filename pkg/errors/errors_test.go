package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetadataFor(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		details   bool
	}{
		{CodeValidation, http.StatusBadRequest, false, true},
		{CodeUnauthorized, http.StatusUnauthorized, false, false},
		{CodeNotFound, http.StatusNotFound, false, false},
		{CodeStateConflict, http.StatusConflict, false, true},
		{CodeIdempotency, http.StatusConflict, false, true},
		{CodeRateLimit, http.StatusTooManyRequests, true, false},
		{CodeDependency, http.StatusServiceUnavailable, true, true},
		{CodeGateway, http.StatusBadGateway, true, false},
		{"SOMETHING_UNKNOWN", http.StatusInternalServerError, true, false},
	}
	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		require.Equal(t, tt.status, meta.HTTPStatus, "code %s", tt.code)
		require.Equal(t, tt.retryable, meta.Retryable, "code %s", tt.code)
		require.Equal(t, tt.details, meta.DetailsAllowed, "code %s", tt.code)
		require.NotEmpty(t, meta.PublicMessage, "code %s", tt.code)
	}
}

func TestWrapPreservesCauseAndDetails(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Wrap(CodeGateway, cause, "verify transaction").WithDetails(map[string]any{"reference": "sw_1"})

	require.ErrorIs(t, err, cause)
	require.Equal(t, "GATEWAY_ERROR: verify transaction", err.Error())
	require.Equal(t, map[string]any{"reference": "sw_1"}, err.Details())
}

func TestNilErrorAccessors(t *testing.T) {
	var e *Error
	require.Equal(t, CodeInternal, e.Code())
	require.Empty(t, e.Message())
	require.Nil(t, e.Details())
	require.Nil(t, e.WithDetails("ignored"))
}

func TestAsAndIsCodeFollowWrappedChain(t *testing.T) {
	outer := fmt.Errorf("reconcile: %w", New(CodeStateConflict, "subscription already active"))

	typed := As(outer)
	require.NotNil(t, typed)
	require.Equal(t, "subscription already active", typed.Message())
	require.True(t, IsCode(outer, CodeStateConflict))
	require.False(t, IsCode(outer, CodeNotFound))
	require.False(t, IsCode(stdErrors.New("plain"), CodeInternal))
	require.Nil(t, As(nil))
}
