package retry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chaos-framework/chaos-orchestrator/pkg/cerrors"
)

func TestTimesWait(t *testing.T) {
	model := Times(5).Wait(2 * time.Second)

	if model.Attempts() != 5 {
		t.Errorf("expected retry=5, got %d", model.Attempts())
	}
	if model.DelayFor(0) != 2*time.Second {
		t.Errorf("expected delay=2s, got %s", model.DelayFor(0))
	}
	if model.DelayFor(3) != 2*time.Second {
		t.Errorf("expected fixed delay=2s, got %s", model.DelayFor(3))
	}
}

func TestExponentialBackoff(t *testing.T) {
	model := Times(4).ExponentialBackoff(100 * time.Millisecond)

	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	for attempt, want := range expected {
		if got := model.DelayFor(uint(attempt)); got != want {
			t.Errorf("attempt %d: expected delay=%s, got %s", attempt, want, got)
		}
	}
}

func TestTry_ActionSucceedsImmediately(t *testing.T) {
	model := Times(3).Wait(time.Hour)

	calls := 0
	start := time.Now()
	err := model.Try(func(attempt uint) error {
		calls++
		return nil
	})
	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	// success must not pay the inter-attempt delay
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected immediate return, took %s", elapsed)
	}
}

func TestTry_ActionFailsThenSucceeds(t *testing.T) {
	model := Times(3).Wait(0)

	calls := 0
	err := model.Try(func(attempt uint) error {
		calls++
		if attempt < 1 {
			return errors.New("fail")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestTry_ActionAlwaysFails(t *testing.T) {
	model := Times(4).Wait(0)

	calls := 0
	wantErr := errors.New("persistent failure")
	err := model.Try(func(attempt uint) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected %v, got %v", wantErr, err)
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestTry_AttemptNumbersAscend(t *testing.T) {
	model := Times(3).Wait(0)

	var seen []uint
	_ = model.Try(func(attempt uint) error {
		seen = append(seen, attempt)
		return fmt.Errorf("fail %d", attempt)
	})
	for i, attempt := range seen {
		if attempt != uint(i) {
			t.Errorf("expected attempt %d at position %d, got %d", i, i, attempt)
		}
	}
}

func TestTry_BreakOnStopsRetrying(t *testing.T) {
	model := Times(5).Wait(0).BreakOn(func(err error) bool {
		return cerrors.IsType(err, cerrors.ErrorTypeInvalidArgument)
	})

	calls := 0
	err := model.Try(func(attempt uint) error {
		calls++
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidArgument, Reason: "bad input"}
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestTry_NilAction(t *testing.T) {
	if err := Times(3).Try(nil); err == nil {
		t.Error("expected error for nil action, got nil")
	}
}

func TestTry_ZeroAttempts(t *testing.T) {
	calls := 0
	_ = Times(0).Try(func(attempt uint) error {
		calls++
		return nil
	})
	if calls != 0 {
		t.Errorf("expected 0 calls, got %d", calls)
	}
}
