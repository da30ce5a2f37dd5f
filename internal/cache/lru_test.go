package cache

import (
	"fmt"
	"testing"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string, string](3, 0, nil)
	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("c", "3")

	// Touch "a" so "b" becomes the eviction candidate.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}

	c.Put("d", "4")

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("%s should still be cached", key)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len = %d, want 3", c.Len())
	}
}

func TestLRUSizeBound(t *testing.T) {
	sizeOf := func(v string) int64 { return int64(len(v)) }
	c := NewLRU[string, string](0, 10, sizeOf)

	c.Put("a", "aaaa") // 4
	c.Put("b", "bbbb") // 8
	c.Put("c", "cccc") // 12 -> evicts a

	if _, ok := c.Get("a"); ok {
		t.Error("a should have been evicted by the size bound")
	}
	if c.Size() != 8 {
		t.Errorf("Size = %d, want 8", c.Size())
	}

	// Replacing a value adjusts the accounted size.
	c.Put("b", "bb")
	if c.Size() != 6 {
		t.Errorf("Size after replace = %d, want 6", c.Size())
	}
}

func TestLRUOversizedValueEvictsEverything(t *testing.T) {
	sizeOf := func(v string) int64 { return int64(len(v)) }
	c := NewLRU[string, string](0, 4, sizeOf)

	c.Put("a", "aa")
	c.Put("big", "xxxxxxxx")

	// The oversized entry cannot fit either; the cache ends empty rather
	// than permanently over budget.
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
	if c.Size() != 0 {
		t.Errorf("Size = %d, want 0", c.Size())
	}
}

func TestLRURemoveAndClear(t *testing.T) {
	c := NewLRU[string, int](0, 0, nil)
	c.Put("x", 1)
	c.Put("y", 2)

	if !c.Remove("x") {
		t.Error("Remove(x) should report presence")
	}
	if c.Remove("x") {
		t.Error("second Remove(x) should report absence")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", c.Len())
	}
}

func TestLRUStats(t *testing.T) {
	c := NewLRU[string, int](0, 0, nil)
	c.Put("x", 1)

	c.Get("x")
	c.Get("x")
	c.Get("missing")

	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 2 hits 1 miss", stats)
	}
}

func TestLRUExportImport(t *testing.T) {
	c := NewLRU[string, int](0, 0, nil)
	for i := 0; i < 5; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
	}

	snapshot := c.Export()
	if len(snapshot) != 5 {
		t.Fatalf("Export len = %d, want 5", len(snapshot))
	}

	restored := NewLRU[string, int](0, 0, nil)
	restored.Import(snapshot)
	for i := 0; i < 5; i++ {
		v, ok := restored.Get(fmt.Sprintf("k%d", i))
		if !ok || v != i {
			t.Errorf("restored k%d = %v, %v", i, v, ok)
		}
	}
}

func TestLRUKeysOrderedByRecency(t *testing.T) {
	c := NewLRU[string, int](0, 0, nil)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	c.Get("a")

	keys := c.Keys()
	if len(keys) != 3 || keys[0] != "a" {
		t.Errorf("Keys = %v, want a first", keys)
	}
	if keys[2] != "b" {
		t.Errorf("Keys = %v, want b last", keys)
	}
}
