package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream failed")

// TestCircuitBreaker_OpensAfterThreshold verifies the circuit opens after the
// configured number of consecutive failures and rejects calls with ErrOpen.
func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Call(ctx, func() error { return errUpstream }); !errors.Is(err, errUpstream) {
			t.Fatalf("Call %d error = %v, want errUpstream", i, err)
		}
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want StateOpen", got)
	}

	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Call while open error = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn was invoked while circuit open, want rejected")
	}
}

// TestCircuitBreaker_FailureCountResetsOnSuccess verifies that a success
// between failures keeps the circuit closed.
func TestCircuitBreaker_FailureCountResetsOnSuccess(t *testing.T) {
	cb := New(Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})
	ctx := context.Background()

	cb.Call(ctx, func() error { return errUpstream })
	cb.Call(ctx, func() error { return nil })
	cb.Call(ctx, func() error { return errUpstream })

	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want StateClosed after interleaved success", got)
	}
}

// TestCircuitBreaker_HalfOpenRecovery verifies the open -> half-open -> closed
// sequence after the cool-down elapses and probes succeed.
func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond})
	ctx := context.Background()

	cb.Call(ctx, func() error { return errUpstream })
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want StateOpen", got)
	}

	time.Sleep(20 * time.Millisecond)

	if err := cb.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("first probe error = %v, want nil", err)
	}
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("State() after first probe = %v, want StateHalfOpen", got)
	}
	if err := cb.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("second probe error = %v, want nil", err)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("State() after second probe = %v, want StateClosed", got)
	}
}

// TestCircuitBreaker_HalfOpenFailureReopens verifies a failed probe sends the
// circuit straight back to open.
func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond})
	ctx := context.Background()

	cb.Call(ctx, func() error { return errUpstream })
	time.Sleep(20 * time.Millisecond)

	if err := cb.Call(ctx, func() error { return errUpstream }); !errors.Is(err, errUpstream) {
		t.Fatalf("probe error = %v, want errUpstream", err)
	}
	if got := cb.State(); got != StateOpen {
		t.Errorf("State() after failed probe = %v, want StateOpen", got)
	}
}

// TestCircuitBreaker_ContextCancelled verifies a cancelled context short
// circuits before fn runs and does not count as a failure.
func TestCircuitBreaker_ContextCancelled(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Call error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("fn was invoked with cancelled context, want skipped")
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want StateClosed", got)
	}
}

// TestCircuitBreaker_StateChangeCallback verifies transitions are reported in
// order.
func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	type transition struct{ from, to State }
	var got []transition
	cb := New(Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          10 * time.Millisecond,
		OnStateChange:    func(from, to State) { got = append(got, transition{from, to}) },
	})
	ctx := context.Background()

	cb.Call(ctx, func() error { return errUpstream })
	time.Sleep(20 * time.Millisecond)
	cb.Call(ctx, func() error { return nil })

	want := []transition{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, got[i], want[i])
		}
	}
}

// TestState_String verifies state labels used in metrics and logs.
func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
