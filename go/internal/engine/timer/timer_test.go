package timer

import (
	"errors"
	"testing"
	"time"

	"github.com/trivium-live/trivium/go/internal/models"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTimer(durationSec int) *models.Timer {
	tm := &models.Timer{GameID: "g1"}
	Reset(tm, durationSec, t0)
	return tm
}

func TestStartStopResume(t *testing.T) {
	tm := newTimer(60)

	if err := Start(tm, "org", t0); err != nil {
		t.Fatalf("start: %v", err)
	}
	if tm.ManagedBy != "org" {
		t.Fatalf("manager = %q, want org", tm.ManagedBy)
	}

	if err := Stop(tm, t0.Add(10*time.Second)); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if tm.RemainingSec != 50 {
		t.Fatalf("frozen remaining = %d, want 50", tm.RemainingSec)
	}
	// Frozen value holds regardless of wall time.
	if got := Remaining(tm, t0.Add(time.Hour)); got != 50 {
		t.Fatalf("remaining while stopped = %d, want 50", got)
	}

	if err := Start(tm, "org", t0.Add(20*time.Second)); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := Remaining(tm, t0.Add(25*time.Second)); got != 45 {
		t.Fatalf("remaining after resume = %d, want 45", got)
	}
}

func TestIllegalTransitions(t *testing.T) {
	tm := newTimer(30)
	if err := Stop(tm, t0); !errors.Is(err, ErrTransition) {
		t.Fatalf("stop from RESET: %v", err)
	}
	_ = Start(tm, "org", t0)
	if err := Start(tm, "org", t0); !errors.Is(err, ErrTransition) {
		t.Fatalf("start from START: %v", err)
	}
}

func TestEndIsExactlyOnce(t *testing.T) {
	tm := newTimer(30)
	_ = Start(tm, "org", t0)

	if err := End(tm, "other", t0); !errors.Is(err, ErrNotManager) {
		t.Fatalf("end by non-manager: %v", err)
	}
	if err := End(tm, "org", t0.Add(5*time.Second)); err != nil {
		t.Fatalf("end: %v", err)
	}
	if tm.RemainingSec != 0 || tm.Authorized {
		t.Fatal("end did not zero the countdown")
	}
	if err := End(tm, "org", t0.Add(6*time.Second)); !errors.Is(err, ErrTransition) {
		t.Fatalf("second end: %v", err)
	}
}

func TestResetRecoversAnyStatus(t *testing.T) {
	tm := newTimer(30)
	_ = Start(tm, "org", t0)
	_ = End(tm, "org", t0)

	Reset(tm, 45, t0.Add(time.Minute))
	if tm.Status != models.TimerStatusReset || tm.RemainingSec != 45 {
		t.Fatalf("reset left status=%s remaining=%d", tm.Status, tm.RemainingSec)
	}
	if tm.Authorized || tm.ManagedBy != "" {
		t.Fatal("reset did not clear authorization and manager")
	}
}

func TestRemainingClampsToZero(t *testing.T) {
	tm := newTimer(10)
	_ = Start(tm, "org", t0)
	if got := Remaining(tm, t0.Add(time.Minute)); got != 0 {
		t.Fatalf("remaining past deadline = %d, want 0", got)
	}
}

func TestForwardCountsUp(t *testing.T) {
	tm := newTimer(0)
	tm.Forward = true
	_ = Start(tm, "org", t0)

	if got := Remaining(tm, t0.Add(42*time.Second)); got != 42 {
		t.Fatalf("forward elapsed = %d, want 42", got)
	}
	if _, ok := tm.Deadline(); ok {
		t.Fatal("forward timer reported a deadline")
	}
	if Expired(tm, t0.Add(time.Hour)) {
		t.Fatal("forward timer expired")
	}
}

func TestExpired(t *testing.T) {
	tm := newTimer(10)
	if Expired(tm, t0.Add(time.Hour)) {
		t.Fatal("non-running timer expired")
	}
	_ = Start(tm, "org", t0)
	if Expired(tm, t0.Add(9*time.Second)) {
		t.Fatal("expired before deadline")
	}
	if !Expired(tm, t0.Add(10*time.Second)) {
		t.Fatal("not expired at deadline")
	}
}
