package errors

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "error with cause",
			err: Wrap(KindUpstream, "sunarp.submit", "portal returned unexpected shape",
				errors.New("status 503")),
			contains: []string{"[upstream:sunarp.submit]", "portal returned unexpected shape", "status 503"},
		},
		{
			name:     "error without cause",
			err:      New(KindValidation, "normalize", "unknown services"),
			contains: []string{"[validation:normalize]", "unknown services"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()
			for _, substr := range tt.contains {
				if !strings.Contains(errStr, substr) {
					t.Errorf("error string %q does not contain %q", errStr, substr)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := Wrap(KindUpstream, "test", "wrapped", originalErr)

	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Unwrap should return the original error")
	}
}

func TestIsKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     Kind
		expected bool
	}{
		{
			name:     "direct error kind match",
			err:      New(KindTimeout, "test", "message"),
			kind:     KindTimeout,
			expected: true,
		},
		{
			name:     "wrapped error kind match",
			err:      Wrap(KindChallenge, "test", "message", errors.New("cause")),
			kind:     KindChallenge,
			expected: true,
		},
		{
			name:     "error kind mismatch",
			err:      New(KindValidation, "test", "message"),
			kind:     KindTimeout,
			expected: false,
		},
		{
			name:     "non-typed error",
			err:      errors.New("plain error"),
			kind:     KindValidation,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsKind(tt.err, tt.kind)
			if result != tt.expected {
				t.Errorf("IsKind() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", New(KindValidation, "op", "bad"), http.StatusBadRequest},
		{"timeout", New(KindTimeout, "op", "slow"), http.StatusGatewayTimeout},
		{"upstream", New(KindUpstream, "op", "broken"), http.StatusBadGateway},
		{"not found", New(KindNotFound, "op", "missing"), http.StatusNotFound},
		{"pinned status wins", New(KindUpstream, "op", "teapot").WithStatus(http.StatusTeapot), http.StatusTeapot},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.expected {
				t.Errorf("HTTPStatus() = %d, expected %d", got, tt.expected)
			}
		})
	}
}
