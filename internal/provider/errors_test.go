package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{
			name: "tagged transient",
			err:  Transient("anthropic", errors.New("429")),
			want: KindTransient,
		},
		{
			name: "tagged permanent",
			err:  Permanent("anthropic", errors.New("401")),
			want: KindPermanent,
		},
		{
			name: "tagged timeout",
			err:  Timeout("anthropic", errors.New("deadline")),
			want: KindTimeout,
		},
		{
			name: "wrapped tagged error keeps its kind",
			err:  fmt.Errorf("assignment 3: %w", Permanent("anthropic", errors.New("401"))),
			want: KindPermanent,
		},
		{
			name: "deadline exceeded maps to timeout",
			err:  context.DeadlineExceeded,
			want: KindTimeout,
		},
		{
			name: "wrapped deadline maps to timeout",
			err:  fmt.Errorf("call: %w", context.DeadlineExceeded),
			want: KindTimeout,
		},
		{
			name: "unknown error defaults to transient",
			err:  errors.New("connection reset"),
			want: KindTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(Permanent("x", errors.New("nope"))) {
		t.Error("permanent errors must not be retryable")
	}
	if !Retryable(Transient("x", errors.New("blip"))) {
		t.Error("transient errors must be retryable")
	}
	if !Retryable(Timeout("x", errors.New("slow"))) {
		t.Error("timeouts must be retryable")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Transient("anthropic", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}
	var pe *Error
	if !errors.As(err, &pe) || pe.Provider != "anthropic" {
		t.Errorf("errors.As failed or lost provider: %+v", pe)
	}
}
