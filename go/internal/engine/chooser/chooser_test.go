package chooser

import (
	"testing"

	"github.com/google/uuid"
	"github.com/trivium-live/trivium/go/internal/models"
)

func teamIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

func TestInitOrderIsIdempotent(t *testing.T) {
	teams := teamIDs(4)
	c := &models.Chooser{GameID: uuid.New()}

	InitOrder(c, teams, 42)
	if !c.Initialized() {
		t.Fatal("chooser not initialized")
	}
	first := append([]uuid.UUID{}, c.Order...)

	// A different seed must not reshuffle an initialized rotation.
	InitOrder(c, teams, 7)
	for i := range first {
		if c.Order[i] != first[i] {
			t.Fatalf("order changed on second init at %d", i)
		}
	}
}

func TestInitOrderDeterministicSeed(t *testing.T) {
	teams := teamIDs(5)
	a := &models.Chooser{}
	b := &models.Chooser{}
	InitOrder(a, teams, 99)
	InitOrder(b, teams, 99)
	for i := range a.Order {
		if a.Order[i] != b.Order[i] {
			t.Fatalf("same seed produced different orders at %d", i)
		}
	}
}

func TestCurrentRequiresInit(t *testing.T) {
	c := &models.Chooser{}
	if _, err := Current(c); err == nil {
		t.Fatal("expected error on uninitialized chooser")
	}
	if err := ResetIndex(c); err == nil {
		t.Fatal("expected error on uninitialized chooser")
	}
}

func TestAdvanceWrapsAround(t *testing.T) {
	teams := teamIDs(3)
	c := &models.Chooser{}
	InitOrder(c, teams, 1)

	seen := map[uuid.UUID]bool{}
	cur, _ := Current(c)
	seen[cur] = true
	for i := 0; i < 3; i++ {
		if !Advance(c, nil) {
			t.Fatal("advance failed")
		}
		cur, _ = Current(c)
		seen[cur] = true
	}
	if len(seen) != 3 {
		t.Fatalf("rotation visited %d teams, want 3", len(seen))
	}
}

func TestAdvanceSkipsExcluded(t *testing.T) {
	teams := teamIDs(3)
	c := &models.Chooser{}
	InitOrder(c, teams, 1)

	excluded := map[uuid.UUID]bool{c.Order[1]: true}
	if !Advance(c, func(id uuid.UUID) bool { return excluded[id] }) {
		t.Fatal("advance failed")
	}
	cur, _ := Current(c)
	if cur != c.Order[2] {
		t.Fatalf("got %s, want the team after the excluded one", cur)
	}
}

func TestAdvanceAllSkipped(t *testing.T) {
	teams := teamIDs(2)
	c := &models.Chooser{}
	InitOrder(c, teams, 1)

	if Advance(c, func(uuid.UUID) bool { return true }) {
		t.Fatal("advance succeeded with every team skipped")
	}
	// Cursor must not move when nobody is eligible.
	cur, _ := Current(c)
	if cur != c.Order[0] {
		t.Fatal("cursor moved despite failed advance")
	}
}

func TestSetIndexBounds(t *testing.T) {
	c := &models.Chooser{}
	InitOrder(c, teamIDs(2), 1)
	if err := SetIndex(c, 1); err != nil {
		t.Fatalf("SetIndex(1): %v", err)
	}
	if err := SetIndex(c, 2); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}
