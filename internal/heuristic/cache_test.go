package heuristic

import "testing"

func TestFIFOCache_EvictsOldestFirst(t *testing.T) {
	c := newFIFOCache(2)
	a, b, d := &Result{}, &Result{}, &Result{}

	c.put("a", a)
	c.put("b", b)
	c.put("c", d)

	if _, ok := c.get("a"); ok {
		t.Error("expected oldest entry to be evicted")
	}
	if got, ok := c.get("b"); !ok || got != b {
		t.Error("expected second entry to survive")
	}
	if got, ok := c.get("c"); !ok || got != d {
		t.Error("expected newest entry to be present")
	}
	if c.len() != 2 {
		t.Errorf("expected 2 entries, got %d", c.len())
	}
}

func TestFIFOCache_RePutKeepsEvictionPosition(t *testing.T) {
	c := newFIFOCache(2)
	a1, a2, b, d := &Result{}, &Result{}, &Result{}, &Result{}

	c.put("a", a1)
	c.put("b", b)
	c.put("a", a2) // replaces value, still the oldest

	if got, _ := c.get("a"); got != a2 {
		t.Error("expected re-put to replace the value")
	}

	c.put("c", d)
	if _, ok := c.get("a"); ok {
		t.Error("expected re-put entry to keep its original eviction position")
	}
}

func TestFIFOCache_ZeroCapacityStoresNothing(t *testing.T) {
	c := newFIFOCache(0)
	c.put("a", &Result{})
	if c.len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.len())
	}
}
