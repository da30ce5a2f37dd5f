package diskcache_test

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/CodeSense/internal/adapter/diskcache"
)

func TestDiskCacheRoundTrip(t *testing.T) {
	c, err := diskcache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := c.Set(ctx, "hover:/src/a.go:3:7", []byte("func a()"), time.Minute); err != nil {
		t.Fatal(err)
	}
	val, found, err := c.Get(ctx, "hover:/src/a.go:3:7")
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(val) != "func a()" {
		t.Fatalf("got %q, %v", val, found)
	}
}

func TestDiskCacheMiss(t *testing.T) {
	c, err := diskcache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, found, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected miss")
	}
}

func TestDiskCacheExpiry(t *testing.T) {
	c, err := diskcache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := c.Set(ctx, "short", []byte("v"), time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	_, found, err := c.Get(ctx, "short")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected expired entry to miss")
	}
}

func TestDiskCacheDelete(t *testing.T) {
	c, err := diskcache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), 0)
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Fatal("expected miss after delete")
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal("deleting an absent key should not error")
	}
}

func TestDiskCacheSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c1, err := diskcache.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := c1.Set(ctx, "persist", []byte("payload"), time.Hour); err != nil {
		t.Fatal(err)
	}

	c2, err := diskcache.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	val, found, err := c2.Get(ctx, "persist")
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(val) != "payload" {
		t.Fatalf("got %q, %v", val, found)
	}
}
