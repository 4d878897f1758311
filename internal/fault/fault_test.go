package fault_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/reliefmesh/reliefmesh-go/internal/fault"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want fault.Code
	}{
		{"direct fault", fault.NotFound(fault.ReasonRequestNotFound, "no such request"), fault.CodeNotFound},
		{"wrapped fault", fmt.Errorf("attach: %w", fault.InvalidState(fault.ReasonDuplicateResponder, "dup")), fault.CodeInvalidState},
		{"plain error", errors.New("boom"), fault.CodeInternal},
		{"nil-safe internal", fault.Internal(errors.New("db down")), fault.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fault.CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithDetails(t *testing.T) {
	f := fault.InsufficientStock("requested 100, have 80").
		With("available", 80).
		With("requested", 100)

	if f.Details["available"] != 80 {
		t.Errorf("detail available = %v, want 80", f.Details["available"])
	}
	if f.Reason != fault.ReasonInsufficientStock {
		t.Errorf("reason = %q", f.Reason)
	}
}

func TestInternalPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	f := fault.Internal(cause)

	if !errors.Is(f, cause) {
		t.Error("Internal fault should unwrap to its cause")
	}
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("dispatch: %w", fault.InvalidState(fault.ReasonNotAccepted, "status is pending"))
	f := fault.As(wrapped)
	if f == nil {
		t.Fatal("As() returned nil for wrapped fault")
	}
	if f.Reason != fault.ReasonNotAccepted {
		t.Errorf("reason = %q, want %q", f.Reason, fault.ReasonNotAccepted)
	}
	if fault.As(errors.New("plain")) != nil {
		t.Error("As() should return nil for non-fault errors")
	}
}
