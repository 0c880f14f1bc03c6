package buzzer

import (
	"testing"
	"time"
)

func TestBuzzKeepsRaceOrder(t *testing.T) {
	b := New()
	for _, p := range []string{"p1", "p2", "p3"} {
		if !Buzz(b, p) {
			t.Fatalf("buzz %s rejected", p)
		}
	}
	head, ok := Head(b)
	if !ok || head != "p1" {
		t.Fatalf("head = %q, want p1", head)
	}
}

func TestDuplicateBuzzIsNoOp(t *testing.T) {
	b := New()
	Buzz(b, "p1")
	Buzz(b, "p2")
	if Buzz(b, "p1") {
		t.Fatal("duplicate buzz accepted")
	}
	if len(b.Buzzed) != 2 {
		t.Fatalf("queue length %d, want 2", len(b.Buzzed))
	}
}

func TestCancelPromotesNext(t *testing.T) {
	b := New()
	Buzz(b, "p1")
	Buzz(b, "p2")

	if !Cancel(b, "p1", 0, time.Now()) {
		t.Fatal("cancel rejected")
	}
	head, ok := Head(b)
	if !ok || head != "p2" {
		t.Fatalf("head = %q, want p2", head)
	}
	if Cancel(b, "p1", 0, time.Now()) {
		t.Fatal("cancelled a player who was not queued")
	}
}

func TestEligibleLockoutUntilNextReveal(t *testing.T) {
	b := New()
	Buzz(b, "p1")
	Cancel(b, "p1", 1, time.Now())

	if Eligible(b, "p1", 1) {
		t.Fatal("eligible at the clue index the cancel happened on")
	}
	if !Eligible(b, "p1", 2) {
		t.Fatal("still locked out after the next reveal")
	}
	if !Eligible(b, "p2", 0) {
		t.Fatal("never-cancelled player not eligible")
	}
}

func TestEligibleMostRecentCancellationWins(t *testing.T) {
	b := New()
	Buzz(b, "p1")
	Cancel(b, "p1", 0, time.Now())
	Buzz(b, "p1")
	Cancel(b, "p1", 2, time.Now())

	if Eligible(b, "p1", 1) {
		t.Fatal("earlier cancellation should not readmit the player")
	}
	if !Eligible(b, "p1", 3) {
		t.Fatal("not eligible past the latest cancellation")
	}
}

func TestRebuzzGoesToBack(t *testing.T) {
	b := New()
	Buzz(b, "p1")
	Buzz(b, "p2")
	Cancel(b, "p1", 0, time.Now())
	Buzz(b, "p1")

	if got := b.Buzzed[len(b.Buzzed)-1]; got != "p1" {
		t.Fatalf("re-buzzed player at %q, want back of queue", got)
	}
}

func TestClearKeepsCancellations(t *testing.T) {
	b := New()
	Buzz(b, "p1")
	Cancel(b, "p1", 0, time.Now())
	Buzz(b, "p2")

	Clear(b)

	if _, ok := Head(b); ok {
		t.Fatal("queue not empty after clear")
	}
	if len(b.Canceled) != 1 {
		t.Fatalf("cancellations %d, want 1", len(b.Canceled))
	}
	if Eligible(b, "p1", 0) {
		t.Fatal("clear wiped the lockout")
	}
}
