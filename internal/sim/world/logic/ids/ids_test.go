package ids

import "testing"

func TestEntityRoundTrip(t *testing.T) {
	id := Entity(PrefixUnit, 120, 3)
	if id != "U120.3" {
		t.Fatalf("id=%q", id)
	}
	prefix, tick, seq, ok := ParseEntity(id)
	if !ok || prefix != PrefixUnit || tick != 120 || seq != 3 {
		t.Fatalf("unexpected parse: prefix=%c tick=%d seq=%d ok=%v", prefix, tick, seq, ok)
	}
}

func TestParseEntityRejectsInvalid(t *testing.T) {
	for _, id := range []string{"", "U1", "U1-2", "Ux.1", "U1.y"} {
		if _, _, _, ok := ParseEntity(id); ok {
			t.Fatalf("expected invalid: %q", id)
		}
	}
}

func TestAllocatorIsDeterministicPerTick(t *testing.T) {
	a := NewAllocator(7)
	b := NewAllocator(7)
	for i := 0; i < 3; i++ {
		if x, y := a.Next(PrefixBuilding), b.Next(PrefixBuilding); x != y {
			t.Fatalf("allocators diverged: %q vs %q", x, y)
		}
	}
	if got := a.Next(PrefixUnit); got != "U7.4" {
		t.Fatalf("next=%q", got)
	}
}
