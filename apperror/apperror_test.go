package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("edit message: %w", Forbidden("mutability window expired"))

	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected wrapped forbidden error to match ErrForbidden")
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("forbidden error must not match ErrNotFound")
	}
	if KindOf(err) != KindForbidden {
		t.Errorf("expected kind %q, got %q", KindForbidden, KindOf(err))
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{Transport("dial", errors.New("connection refused")), true},
		{Validation("text is required"), false},
		{NotFound("message %s", "m1"), false},
		{Upload("rejected", nil), false},
		{errors.New("plain"), false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Errorf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Upload("store attachment", errors.New("bucket missing"))
	if err.Error() != "store attachment: bucket missing" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, ErrUpload) {
		t.Errorf("expected upload kind")
	}
}
