package topology

import "testing"

func TestNeighborAndReverse(t *testing.T) {
	top := New()
	top.Set(map[string]map[Direction]string{
		"h": {Right: "a"},
		"a": {Left: "h"},
	})

	n, ok := top.Neighbor("h", Right)
	if !ok || n != "a" {
		t.Fatalf("expected h.right == a, got %q ok=%v", n, ok)
	}

	reverse := top.ReverseEdges("a")
	if len(reverse) != 1 || reverse[0].Self != "h" || reverse[0].Dir != Right {
		t.Fatalf("unexpected reverse edges: %+v", reverse)
	}
}

func TestNeighborReverseSymmetricIncludesSelf(t *testing.T) {
	top := New()
	top.Set(map[string]map[Direction]string{
		"h": {Right: "a"},
		"a": {Left: "h"},
	})

	n, ok := top.Neighbor("h", Right)
	if !ok {
		t.Fatal("expected neighbor")
	}
	back, ok := top.Neighbor(n, Opposite(Right))
	if !ok || back != "h" {
		t.Fatalf("symmetric round trip should return to self, got %q", back)
	}
}

func TestHitTestThreshold(t *testing.T) {
	bounds := Bounds{Width: 1920, Height: 1080}

	if _, _, ok := HitTest(10, 500, bounds, 10); !ok {
		t.Fatal("expected hit exactly at threshold")
	}
	if _, _, ok := HitTest(11, 500, bounds, 10); ok {
		t.Fatal("expected no hit one px beyond threshold")
	}
}

func TestHitTestCornerTieBreaksHorizontal(t *testing.T) {
	bounds := Bounds{Width: 1920, Height: 1080}

	// Top-left corner, equal overshoot on both axes.
	dir, _, ok := HitTest(0, 0, bounds, 10)
	if !ok {
		t.Fatal("expected corner hit")
	}
	if dir != Left {
		t.Fatalf("expected tie to favor horizontal (left), got %s", dir)
	}
}

func TestHitTestCornerLargerOvershootWins(t *testing.T) {
	bounds := Bounds{Width: 1920, Height: 1080}

	// y is further past the threshold than x, so Top should win even
	// though x is also within range.
	dir, _, ok := HitTest(8, 0, bounds, 10)
	if !ok {
		t.Fatal("expected corner hit")
	}
	if dir != Top {
		t.Fatalf("expected larger vertical overshoot to win, got %s", dir)
	}
}

func TestEntryPointProportional(t *testing.T) {
	remote := Bounds{Width: 1920, Height: 1080}

	x, y := EntryPoint(Left, 0.5, remote)
	if x != 0 {
		t.Fatalf("entering left edge should place x at 0, got %d", x)
	}
	if y != 539 {
		t.Fatalf("expected proportional y ~539, got %d", y)
	}
}

func TestEntryPointTopBottom(t *testing.T) {
	remote := Bounds{Width: 1920, Height: 1080}

	x, y := EntryPoint(Top, 0.0, remote)
	if y != 0 || x != 0 {
		t.Fatalf("entering top at ratio 0 should land at (0,0), got (%d,%d)", x, y)
	}

	x, y = EntryPoint(Bottom, 1.0, remote)
	if y != remote.Height-1 || x != remote.Width-1 {
		t.Fatalf("entering bottom at ratio 1 should land at (%d,%d), got (%d,%d)", remote.Width-1, remote.Height-1, x, y)
	}
}

func TestSetEdgeClearsOldReverse(t *testing.T) {
	top := New()
	top.SetEdge("h", Right, "a")
	top.SetEdge("h", Right, "b")

	if len(top.ReverseEdges("a")) != 0 {
		t.Fatal("expected stale reverse edge to a to be removed")
	}
	if n, _ := top.Neighbor("h", Right); n != "b" {
		t.Fatalf("expected h.right == b, got %q", n)
	}
}

func TestParseDirection(t *testing.T) {
	if _, err := ParseDirection("left"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseDirection("diagonal"); err == nil {
		t.Fatal("expected error for invalid direction")
	}
}
