package errors

import (
	"errors"
	"fmt"
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
			err: Wrap(KindConfig, "load", "failed to load config",
				errors.New("file not found")),
			contains: []string{"[config:load]", "failed to load config", "file not found"},
		},
		{
			name:     "error without cause",
			err:      New(KindInvalidInput, "validate", "invalid file type"),
			contains: []string{"[invalid_input:validate]", "invalid file type"},
		},
		{
			name:     "upstream error",
			err:      Upstream("recognize", 403, "forbidden"),
			contains: []string{"[upstream:recognize]", "403", "forbidden"},
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
	wrappedErr := Wrap(KindConfig, "test", "wrapped", originalErr)

	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Unwrap should return the original error")
	}
}

func TestWrapKeepsTypedError(t *testing.T) {
	inner := New(KindRateLimited, "recognize", "API rate limit exceeded")
	outer := Wrap(KindProcessing, "handler", "ignored", fmt.Errorf("ctx: %w", inner))
	if outer != inner {
		t.Fatalf("Wrap should return the typed error already in the chain")
	}
	if Wrap(KindConfig, "op", "msg", nil) != nil {
		t.Fatal("Wrap(nil) should be nil")
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
			err:      New(KindConfig, "test", "message"),
			kind:     KindConfig,
			expected: true,
		},
		{
			name:     "wrapped error kind match",
			err:      fmt.Errorf("outer: %w", Wrap(KindUpstreamTransport, "test", "message", errors.New("cause"))),
			kind:     KindUpstreamTransport,
			expected: true,
		},
		{
			name:     "error kind mismatch",
			err:      New(KindConfig, "test", "message"),
			kind:     KindStorage,
			expected: false,
		},
		{
			name:     "non-typed error",
			err:      errors.New("plain error"),
			kind:     KindConfig,
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

func TestDetail(t *testing.T) {
	if got := Detail(New(KindRateLimited, "op", "API rate limit exceeded")); got != "API rate limit exceeded" {
		t.Errorf("unexpected detail: %q", got)
	}
	got := Detail(Wrap(KindInvalidInput, "decode", "Invalid image", errors.New("unexpected EOF")))
	if got != "Invalid image: unexpected EOF" {
		t.Errorf("unexpected detail: %q", got)
	}
	if got := Detail(errors.New("plain")); got != "plain" {
		t.Errorf("unexpected detail: %q", got)
	}
	if got := Detail(nil); got != "" {
		t.Errorf("nil detail should be empty, got %q", got)
	}
}
