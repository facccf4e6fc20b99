package buffer

import "testing"

func TestRingKeepsNewestEntries(t *testing.T) {
	ring := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		ring.Add(i)
	}

	got := ring.List()
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestRingLastLimitsFromNewest(t *testing.T) {
	ring := NewRing[string](4)
	ring.Add("a")
	ring.Add("b")
	ring.Add("c")

	got := ring.Last(2)
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("expected [b c], got %v", got)
	}
	if all := ring.Last(10); len(all) != 3 {
		t.Fatalf("expected 3 entries for oversized limit, got %d", len(all))
	}
}

func TestRingZeroSizeFallsBackToOne(t *testing.T) {
	ring := NewRing[int](0)
	ring.Add(1)
	ring.Add(2)
	if ring.Cap() != 1 || ring.Len() != 1 {
		t.Fatalf("expected cap 1 len 1, got cap %d len %d", ring.Cap(), ring.Len())
	}
	if got := ring.List(); got[0] != 2 {
		t.Fatalf("expected newest entry 2, got %d", got[0])
	}
}
