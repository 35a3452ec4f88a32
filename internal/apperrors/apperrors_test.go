package apperrors

import (
	"errors"
	"testing"
)

func TestExitCodes(t *testing.T) {
	cases := []struct {
		err  *Error
		code int
	}{
		{ErrConfig("bad"), 2},
		{ErrKillSwitch("tripped"), 3},
		{ErrReconciliation("mismatch"), 4},
		{ErrWrongStrategy("nwl_p4"), 5},
		{ErrOPGAllPhase("opg"), 6},
	}
	for _, c := range cases {
		if c.err.ExitCode() != c.code {
			t.Fatalf("expected exit code %d, got %d", c.code, c.err.ExitCode())
		}
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(KindReconciliation, "reconcile failed", cause)
	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
	var target *Error
	if !errors.As(wrapped, &target) {
		t.Fatalf("expected errors.As to match *Error")
	}
	if target.ExitCode() != 4 {
		t.Fatalf("expected exit code 4, got %d", target.ExitCode())
	}
}
