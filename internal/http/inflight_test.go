package http

import (
	"context"
	"testing"
	"time"
)

func TestInFlightTracker_CountAndWait(t *testing.T) {
	tracker := &InFlightTracker{}

	if got := tracker.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}

	tracker.Increment()
	tracker.Increment()
	if got := tracker.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}

	tracker.Decrement()
	if got := tracker.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}

	tracker.Decrement()
	if got := tracker.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

func TestInFlightTracker_WaitForZero(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := tracker.WaitForZero(ctx, 5*time.Millisecond); err == nil {
		t.Error("WaitForZero() error = nil with one in-flight request, want deadline exceeded")
	}

	tracker.Decrement()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel2()
	if err := tracker.WaitForZero(ctx2, 5*time.Millisecond); err != nil {
		t.Errorf("WaitForZero() error = %v after drain, want nil", err)
	}
}

func TestInFlightTracker_WaitReleasesDuringDrain(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	go func() {
		time.Sleep(20 * time.Millisecond)
		tracker.Decrement()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	if err := tracker.WaitForZero(ctx, 5*time.Millisecond); err != nil {
		t.Fatalf("WaitForZero() error = %v, want nil once count drains", err)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Error("WaitForZero() returned before the count drained")
	}
}
